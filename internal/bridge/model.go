package bridge

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("bridge not found")

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Bridge is the monitored structure. Status and HealthIndex are only ever
// written from the latest MLOutput.
type Bridge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	HealthIndex *int      `json:"healthIndex"`
	Location    Location  `json:"location"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type SensorLog struct {
	ID                string    `json:"id"`
	BridgeID          string    `json:"bridgeId"`
	StrainMicrostrain float64   `json:"strainMicrostrain"`
	VibrationMs2      float64   `json:"vibrationMs2"`
	TemperatureC      float64   `json:"temperatureC"`
	HumidityPercent   *float64  `json:"humidityPercent,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type MLOutput struct {
	ID                string    `json:"id"`
	SensorLogID       string    `json:"sensorLogId"`
	HealthIndex       int       `json:"healthIndex"`
	HealthState       string    `json:"healthState"`
	RecommendedAction string    `json:"recommendedAction"`
	Confidence        *float64  `json:"confidence,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Assess applies a classification result to the bridge.
func (b *Bridge) Assess(out MLOutput, now time.Time) {
	idx := out.HealthIndex
	b.Status = MapStatus(out.HealthState)
	b.HealthIndex = &idx
	b.UpdatedAt = now
}
