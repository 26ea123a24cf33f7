package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySuccess(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"healthIndex":82,"healthState":"Good","recommendedAction":"Routine inspection","confidence":0.91}`))
	}))
	defer srv.Close()

	humidity := 55.0
	client := New(srv.URL, time.Second)
	got, err := client.Classify(context.Background(), Features{Strain: 120.5, Vibration: 0.8, Temperature: 22.1, Humidity: &humidity})
	require.NoError(t, err)

	assert.Equal(t, 82, got.HealthIndex)
	assert.Equal(t, "Good", got.HealthState)
	assert.Equal(t, "Routine inspection", got.RecommendedAction)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.91, *got.Confidence, 1e-9)

	assert.Equal(t, 120.5, body["Strain_microstrain"])
	assert.Equal(t, 0.8, body["Vibration_ms2"])
	assert.Equal(t, 22.1, body["Temperature_C"])
	assert.Equal(t, 55.0, body["Humidity_percent"])
}

func TestClassifyOmitsAbsentHumidity(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"healthIndex":40,"healthState":"FAIR","recommendedAction":""}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Classify(context.Background(), Features{Strain: 1, Vibration: 2, Temperature: 3})
	require.NoError(t, err)
	_, present := body["Humidity_percent"]
	assert.False(t, present, "humidity must not be sent when absent")
}

func TestClassifyTruncatesFloatIndex(t *testing.T) {
	cases := []struct {
		payload string
		want    int
	}{
		{`{"healthIndex":67.6,"healthState":"GOOD","recommendedAction":""}`, 67},
		{`{"healthIndex":82.7,"healthState":"Good","recommendedAction":""}`, 82},
		{`{"healthIndex":99.99,"healthState":"Excellent","recommendedAction":""}`, 99},
		{`{"healthIndex":0.4,"healthState":"Critical","recommendedAction":""}`, 0},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(tc.payload))
		}))
		got, err := New(srv.URL, time.Second).Classify(context.Background(), Features{})
		srv.Close()
		require.NoError(t, err, tc.payload)
		assert.Equal(t, tc.want, got.HealthIndex, tc.payload)
		assert.Nil(t, got.Confidence)
	}
}

func TestClassifyFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{name: "server error", status: http.StatusInternalServerError, payload: `{"error":"boom"}`},
		{name: "client error", status: http.StatusBadRequest, payload: `{}`},
		{name: "malformed body", status: http.StatusOK, payload: `{"healthIndex":`},
		{name: "not json", status: http.StatusOK, payload: `<html>oops</html>`},
		{name: "missing index", status: http.StatusOK, payload: `{"healthState":"GOOD"}`},
		{name: "index too high", status: http.StatusOK, payload: `{"healthIndex":140,"healthState":"GOOD"}`},
		{name: "index negative", status: http.StatusOK, payload: `{"healthIndex":-3,"healthState":"ERROR DATA"}`},
		{name: "index just above range", status: http.StatusOK, payload: `{"healthIndex":100.4,"healthState":"GOOD"}`},
		{name: "index wrong type", status: http.StatusOK, payload: `{"healthIndex":"82","healthState":"GOOD"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).Classify(context.Background(), Features{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestClassifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).Classify(context.Background(), Features{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClassifyConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Classify(context.Background(), Features{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClassifySendsSingleRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Classify(context.Background(), Features{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New("", 0)
	assert.Equal(t, DefaultEndpoint, c.Endpoint)
	assert.Equal(t, DefaultTimeout, c.Client.Timeout)
}
