package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/quotapool/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// KeyStatusResponse is the JSON representation of one pool entry. It carries
// the display identifier, never the key secret.
type KeyStatusResponse struct {
	Index          int    `json:"index"`
	Identifier     string `json:"identifier"`
	QuotaUsed      int    `json:"quota_used"`
	QuotaRemaining int    `json:"quota_remaining"`
	IsActive       bool   `json:"is_active"`
	ErrorCount     int    `json:"error_count"`
	LastUsed       string `json:"last_used,omitempty"`
	Current        bool   `json:"current"`
}

// RotateResponse is the JSON body returned by a successful manual rotation.
type RotateResponse struct {
	Rotated     bool `json:"rotated"`
	ActiveIndex int  `json:"active_index"`
}

// KeyActivationResponse is the JSON body returned by the enable/disable endpoints.
type KeyActivationResponse struct {
	Index    int  `json:"index"`
	IsActive bool `json:"is_active"`
}

// ProbeResponse is the JSON body returned by a successful probe.
type ProbeResponse struct {
	Status      string `json:"status"`
	ActiveIndex int    `json:"active_index"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// toKeyStatusResponse converts a domain KeyStatus to its JSON representation.
func toKeyStatusResponse(status model.KeyStatus) KeyStatusResponse {
	lastUsed := ""
	if !status.LastUsed.IsZero() {
		lastUsed = status.LastUsed.UTC().Format(time.RFC3339)
	}

	return KeyStatusResponse{
		Index:          status.Index,
		Identifier:     status.Identifier,
		QuotaUsed:      status.QuotaUsed,
		QuotaRemaining: status.QuotaRemaining,
		IsActive:       status.IsActive,
		ErrorCount:     status.ErrorCount,
		LastUsed:       lastUsed,
		Current:        status.Current,
	}
}
