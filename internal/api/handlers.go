package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bridgeguard-backend/internal/ingest"
)

const maxBodyBytes = 1 << 20

type Ingester interface {
	Ingest(ctx context.Context, reading ingest.Reading) (ingest.Result, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Ingester Ingester
	// Store is optional; when set /health reports storage reachability.
	Store   Pinger
	Timeout time.Duration
	Logger  *slog.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Route("/api/bridgeHealth", func(r chi.Router) {
		r.Post("/ingest", h.handleIngest)
	})
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: read body: %w", ingest.ErrValidation, err))
		return
	}
	// Same decoding as the NATS and MQTT transports: unknown fields are
	// ignored, trailing data is not.
	reading, err := ingest.DecodeReading(body)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Ingester.Ingest(ingest.WithSource(r.Context(), "http"), reading)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			h.logger().Error("ingest failed",
				slog.String("bridge_id", reading.BridgeID),
				slog.String("code", ingest.Code(err)),
				slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "message": "storage unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return 5 * time.Second
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrClassifierUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ingest.Failure(err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
