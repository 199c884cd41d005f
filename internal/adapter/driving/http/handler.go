// Package httphandler is the HTTP driving adapter serving the pool's JSON
// status and control surface.
package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/quotapool/internal/application"
)

// ProbeFunc performs one cheap remote call bound to the given key secret.
// Supplied by the composition root; nil disables the probe endpoint.
type ProbeFunc func(ctx context.Context, apiKey string) error

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	pool      *application.KeyPool
	executor  *application.Executor
	probe     ProbeFunc
	probeCost int
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	pool *application.KeyPool,
	executor *application.Executor,
	probe ProbeFunc,
	probeCost int,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		pool:      pool,
		executor:  executor,
		probe:     probe,
		probeCost: probeCost,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/keys", h.ListKeys)
	mux.HandleFunc("POST /api/v1/keys/rotate", h.Rotate)
	mux.HandleFunc("POST /api/v1/keys/{index}/enable", h.EnableKey)
	mux.HandleFunc("POST /api/v1/keys/{index}/disable", h.DisableKey)
	mux.HandleFunc("POST /api/v1/probe", h.Probe)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListKeys returns the per-key quota status snapshot.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.pool.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to read pool status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]KeyStatusResponse, 0, len(statuses))
	for _, status := range statuses {
		resp = append(resp, toKeyStatusResponse(status))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Rotate manually rotates the pool to the next usable key. With ?force=true,
// keys over the emergency threshold become eligible, trading a risk of hard
// quota failure for availability.
func (h *Handler) Rotate(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	rotated, err := h.pool.Rotate(r.Context(), force)
	if err != nil {
		h.logger.Error("rotation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !rotated {
		writeError(w, http.StatusConflict, "no usable key available")
		return
	}

	writeJSON(w, http.StatusOK, RotateResponse{
		Rotated:     true,
		ActiveIndex: h.pool.ActiveIndex(),
	})
}

// EnableKey re-enables a key that was disabled after being rejected or by an
// operator.
func (h *Handler) EnableKey(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// DisableKey manually excludes a key from selection until re-enabled.
func (h *Handler) DisableKey(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// setActive is the shared implementation of the enable/disable endpoints.
func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key index")
		return
	}

	if err := h.pool.SetActive(r.Context(), index, active); err != nil {
		if errors.Is(err, application.ErrUnknownKey) {
			writeError(w, http.StatusNotFound, "unknown key index")
			return
		}
		h.logger.Error("failed to change key activation", "index", index, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, KeyActivationResponse{Index: index, IsActive: active})
}

// Probe runs one credential probe through the executor, charging its
// configured cost. Pool exhaustion maps to 503; a non-retryable upstream
// failure maps to 502.
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	if h.probe == nil {
		writeError(w, http.StatusServiceUnavailable, "probe not configured")
		return
	}

	err := h.executor.Do(r.Context(), h.probeCost, h.probe)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ProbeResponse{Status: "ok", ActiveIndex: h.pool.ActiveIndex()})
	case errors.Is(err, application.ErrPoolExhausted),
		errors.Is(err, application.ErrNoKeysConfigured):
		h.logger.Error("probe found no usable key", "error", err)
		writeError(w, http.StatusServiceUnavailable, "key pool exhausted")
	default:
		h.logger.Error("probe failed", "error", err)
		writeError(w, http.StatusBadGateway, "probe failed")
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
