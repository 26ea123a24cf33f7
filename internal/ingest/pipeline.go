package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bridgeguard-backend/internal/bridge"
	"bridgeguard-backend/internal/classifier"
	"bridgeguard-backend/internal/metrics"
)

const (
	DefaultEventSubject = "bridge.assessed"
	defaultStoreTimeout = 5 * time.Second
)

type BridgeStore interface {
	// FindBridge returns bridge.ErrNotFound when no bridge has the id.
	FindBridge(ctx context.Context, id string) (bridge.Bridge, error)
	SaveBridge(ctx context.Context, b bridge.Bridge) (bridge.Bridge, error)
}

type SensorLogStore interface {
	SaveSensorLog(ctx context.Context, log bridge.SensorLog) (bridge.SensorLog, error)
}

type MLOutputStore interface {
	SaveMLOutput(ctx context.Context, out bridge.MLOutput) (bridge.MLOutput, error)
}

type Classifier interface {
	Classify(ctx context.Context, features classifier.Features) (classifier.Assessment, error)
}

type Publisher interface {
	Publish(subject string, payload any) error
}

// Pipeline turns one sensor reading into a persisted raw log, a persisted
// classification and a bridge status update, in that order. Concurrent
// ingests for the same bridge are not serialized; the last bridge write wins.
type Pipeline struct {
	Bridges    BridgeStore
	SensorLogs SensorLogStore
	MLOutputs  MLOutputStore
	Classifier Classifier

	Events       Publisher
	EventSubject string
	Metrics      *metrics.Ingest
	Logger       *slog.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

func NewPipeline(bridges BridgeStore, logs SensorLogStore, outputs MLOutputStore, clf Classifier) *Pipeline {
	return &Pipeline{
		Bridges:    bridges,
		SensorLogs: logs,
		MLOutputs:  outputs,
		Classifier: clf,
	}
}

// Ingest runs the pipeline for a single reading. Once validation passes the
// run is detached from ctx cancellation so a dropped caller cannot interrupt
// it between commit points. Each store call and the classifier call carry
// their own deadlines.
func (p *Pipeline) Ingest(ctx context.Context, reading Reading) (Result, error) {
	source := Source(ctx)
	res, err := p.ingest(context.WithoutCancel(ctx), reading)
	p.Metrics.ObserveRequest(source, outcome(err))
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context, reading Reading) (Result, error) {
	logger := p.logger()
	if err := reading.Validate(); err != nil {
		return Result{}, err
	}
	bridgeID := strings.TrimSpace(reading.BridgeID)

	b, err := p.findBridge(ctx, bridgeID)
	if err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: bridge %q: %w", ErrNotFound, bridgeID, err)
		}
		logger.Error("bridge lookup failed", slog.String("bridge_id", bridgeID), slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("%w: find bridge %q: %w", ErrStorage, bridgeID, err)
	}

	sensorLog, err := p.saveSensorLog(ctx, bridge.SensorLog{
		BridgeID:          b.ID,
		StrainMicrostrain: *reading.StrainMicrostrain,
		VibrationMs2:      *reading.VibrationMs2,
		TemperatureC:      *reading.TemperatureC,
		HumidityPercent:   copyFloat(reading.HumidityPercent),
		CreatedAt:         p.now(),
	})
	if err != nil {
		logger.Error("sensor log write failed", slog.String("bridge_id", b.ID), slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("%w: save sensor log: %w", ErrStorage, err)
	}

	started := time.Now()
	assessment, err := p.Classifier.Classify(ctx, featuresFrom(sensorLog))
	p.Metrics.ObserveClassifier(time.Since(started), err == nil)
	if err != nil {
		// The raw log stays committed; only the derived state is missing.
		logger.Warn("classification failed",
			slog.String("bridge_id", b.ID),
			slog.String("sensor_log_id", sensorLog.ID),
			slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("%w: sensor log %s: %w", ErrClassifierUnavailable, sensorLog.ID, err)
	}

	output, err := p.saveMLOutput(ctx, bridge.MLOutput{
		SensorLogID:       sensorLog.ID,
		HealthIndex:       assessment.HealthIndex,
		HealthState:       assessment.HealthState,
		RecommendedAction: assessment.RecommendedAction,
		Confidence:        assessment.Confidence,
		CreatedAt:         p.now(),
	})
	if err != nil {
		logger.Error("ml output write failed", slog.String("sensor_log_id", sensorLog.ID), slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("%w: save ml output: %w", ErrStorage, err)
	}

	b.Assess(output, p.now())
	if _, err := p.saveBridge(ctx, b); err != nil {
		logger.Error("bridge update failed",
			slog.String("bridge_id", b.ID),
			slog.String("ml_output_id", output.ID),
			slog.String("error", err.Error()))
		return Result{}, fmt.Errorf("%w: update bridge %q: %w", ErrStorage, b.ID, err)
	}
	p.Metrics.ObserveAssessment(b.ID, string(b.Status), output.HealthIndex)

	res := Result{
		LogID:             sensorLog.ID,
		MLOutputID:        output.ID,
		BridgeID:          b.ID,
		HealthIndex:       output.HealthIndex,
		HealthState:       output.HealthState,
		RecommendedAction: output.RecommendedAction,
		Status:            b.Status,
		Confidence:        output.Confidence,
	}
	logger.Info("bridge assessed",
		slog.String("bridge_id", b.ID),
		slog.String("sensor_log_id", sensorLog.ID),
		slog.String("status", string(b.Status)),
		slog.Int("health_index", output.HealthIndex))
	p.publish(res)
	return res, nil
}

func (p *Pipeline) findBridge(ctx context.Context, id string) (bridge.Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout())
	defer cancel()
	return p.Bridges.FindBridge(ctx, id)
}

func (p *Pipeline) saveSensorLog(ctx context.Context, log bridge.SensorLog) (bridge.SensorLog, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout())
	defer cancel()
	return p.SensorLogs.SaveSensorLog(ctx, log)
}

func (p *Pipeline) saveMLOutput(ctx context.Context, out bridge.MLOutput) (bridge.MLOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout())
	defer cancel()
	return p.MLOutputs.SaveMLOutput(ctx, out)
}

func (p *Pipeline) saveBridge(ctx context.Context, b bridge.Bridge) (bridge.Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, p.storeTimeout())
	defer cancel()
	return p.Bridges.SaveBridge(ctx, b)
}

func (p *Pipeline) publish(res Result) {
	if p.Events == nil {
		return
	}
	subject := p.EventSubject
	if subject == "" {
		subject = DefaultEventSubject
	}
	if err := p.Events.Publish(subject, res); err != nil {
		p.logger().Warn("assessment event not published",
			slog.String("subject", subject),
			slog.String("bridge_id", res.BridgeID),
			slog.String("error", err.Error()))
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pipeline) storeTimeout() time.Duration {
	if p.StoreTimeout > 0 {
		return p.StoreTimeout
	}
	return defaultStoreTimeout
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
