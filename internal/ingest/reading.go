package ingest

import (
	"context"
	"fmt"
	"math"
	"strings"

	"bridgeguard-backend/internal/bridge"
	"bridgeguard-backend/internal/classifier"
)

// Reading is the inbound payload shared by every transport. Numeric fields
// are pointers so that an absent value is never mistaken for zero.
type Reading struct {
	BridgeID          string   `json:"bridgeId"`
	StrainMicrostrain *float64 `json:"strainMicrostrain"`
	VibrationMs2      *float64 `json:"vibrationMs2"`
	TemperatureC      *float64 `json:"temperatureC"`
	HumidityPercent   *float64 `json:"humidityPercent,omitempty"`
}

func (r Reading) Validate() error {
	if strings.TrimSpace(r.BridgeID) == "" {
		return fmt.Errorf("%w: bridgeId is required", ErrValidation)
	}
	required := []struct {
		name  string
		value *float64
	}{
		{"strainMicrostrain", r.StrainMicrostrain},
		{"vibrationMs2", r.VibrationMs2},
		{"temperatureC", r.TemperatureC},
	}
	for _, f := range required {
		if f.value == nil {
			return fmt.Errorf("%w: %s is required", ErrValidation, f.name)
		}
		if !finite(*f.value) {
			return fmt.Errorf("%w: %s must be a finite number", ErrValidation, f.name)
		}
	}
	if r.HumidityPercent != nil && !finite(*r.HumidityPercent) {
		return fmt.Errorf("%w: humidityPercent must be a finite number", ErrValidation)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Result summarizes a committed ingest.
type Result struct {
	LogID             string        `json:"logId"`
	MLOutputID        string        `json:"mlOutputId"`
	BridgeID          string        `json:"bridgeId"`
	HealthIndex       int           `json:"healthIndex"`
	HealthState       string        `json:"healthState"`
	RecommendedAction string        `json:"recommendedAction"`
	Status            bridge.Status `json:"status"`
	Confidence        *float64      `json:"confidence,omitempty"`
}

func featuresFrom(log bridge.SensorLog) classifier.Features {
	return classifier.Features{
		Strain:      log.StrainMicrostrain,
		Vibration:   log.VibrationMs2,
		Temperature: log.TemperatureC,
		Humidity:    log.HumidityPercent,
	}
}

type sourceKey struct{}

// WithSource tags ctx with the transport that delivered a reading.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// Source reports the transport recorded by WithSource, or "direct".
func Source(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "direct"
}
