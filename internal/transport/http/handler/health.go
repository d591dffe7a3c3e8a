package handler

import (
	"net/http"
	"time"
)

// ReadinessReporter exposes the messaging collaborator's connection state.
type ReadinessReporter interface {
	Ready() (bool, time.Time)
}

// HealthHandler handles liveness and readiness endpoints.
type HealthHandler struct {
	readiness ReadinessReporter
}

func NewHealthHandler(readiness ReadinessReporter) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Ready reports 503 until the WhatsApp session is connected; the intake
// still accepts registrations before that, but no OTP can arrive yet.
func (h *HealthHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	if h.readiness == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":        "not_ready",
			"whatsappReady": false,
		})
		return
	}
	ready, connectedAt := h.readiness.Ready()
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":        "not_ready",
			"whatsappReady": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"whatsappReady": true,
		"connectedAt":   connectedAt.Format(time.RFC3339),
	})
}
