package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bridgeguard"

// Ingest holds the pipeline collectors. A nil *Ingest is valid and records
// nothing.
type Ingest struct {
	requests           *prometheus.CounterVec   // by source and outcome
	classifierDuration *prometheus.HistogramVec // by outcome
	statusTransitions  *prometheus.CounterVec   // by new status
	healthIndex        *prometheus.GaugeVec     // by bridge
}

func NewIngest(reg prometheus.Registerer) (*Ingest, error) {
	m := &Ingest{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Sensor readings processed by the ingest pipeline",
		}, []string{"source", "outcome"}),
		classifierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "request_duration_seconds",
			Help:      "Classifier round-trip duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "assessments_total",
			Help:      "Bridge assessments committed, by resulting status",
		}, []string{"status"}),
		healthIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "health_index",
			Help:      "Latest committed health index per bridge",
		}, []string{"bridge"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.requests, m.classifierDuration, m.statusTransitions, m.healthIndex} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Ingest) ObserveRequest(source, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(source, outcome).Inc()
}

func (m *Ingest) ObserveClassifier(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.classifierDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Ingest) ObserveAssessment(bridgeID, status string, healthIndex int) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
	m.healthIndex.WithLabelValues(bridgeID).Set(float64(healthIndex))
}
