package handler

import (
	"net/http"
)

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func() bool

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks map[string]ReadyCheck
}

// NewHealthHandler creates a new health handler. Each named check must pass
// for the console to be ready.
func NewHealthHandler(checks map[string]ReadyCheck) *HealthHandler {
	return &HealthHandler{
		checks: checks,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.checks {
		if !check() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": name + " not ready",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
