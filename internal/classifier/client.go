package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "http://localhost:8000/predict"
	DefaultTimeout  = 5 * time.Second

	maxResponseBytes = 1 << 20
)

// ErrUnavailable covers every way a classification can fail: transport
// errors, timeouts, non-2xx responses and unusable bodies.
var ErrUnavailable = errors.New("classifier unavailable")

// Features is the request body expected by the model server. Humidity is
// left out entirely when the reading did not carry it.
type Features struct {
	Strain      float64  `json:"Strain_microstrain"`
	Vibration   float64  `json:"Vibration_ms2"`
	Temperature float64  `json:"Temperature_C"`
	Humidity    *float64 `json:"Humidity_percent,omitempty"`
}

type Assessment struct {
	HealthIndex       int
	HealthState       string
	RecommendedAction string
	Confidence        *float64
}

type response struct {
	HealthIndex       *float64 `json:"healthIndex"`
	HealthState       string   `json:"healthState"`
	RecommendedAction string   `json:"recommendedAction"`
	Confidence        *float64 `json:"confidence"`
}

type Client struct {
	Endpoint string
	Client   *http.Client
}

func New(endpoint string, timeout time.Duration) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

// Classify sends exactly one request. It never retries.
func (c *Client) Classify(ctx context.Context, features Features) (Assessment, error) {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	payload, err := json.Marshal(features)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: encode features: %w", ErrUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Assessment{}, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
	return decodeAssessment(body)
}

func decodeAssessment(body []byte) (Assessment, error) {
	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return Assessment{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	if out.HealthIndex == nil {
		return Assessment{}, fmt.Errorf("%w: response missing healthIndex", ErrUnavailable)
	}
	// The model server reports score*100 as a float; the fraction is dropped.
	raw := *out.HealthIndex
	if raw < 0 || raw > 100 {
		return Assessment{}, fmt.Errorf("%w: healthIndex %v out of range", ErrUnavailable, raw)
	}
	return Assessment{
		HealthIndex:       int(math.Trunc(raw)),
		HealthState:       out.HealthState,
		RecommendedAction: out.RecommendedAction,
		Confidence:        out.Confidence,
	}, nil
}
