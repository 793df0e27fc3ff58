package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Check reports whether a backing service is reachable.
type Check func(ctx context.Context) error

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Ping answers "ping" unconditionally and "ready" only when every check passes.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		for name, check := range h.checks {
			if err := check(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "readiness check failed", "check", name, "err", err)
				writeError(w, http.StatusServiceUnavailable, name+" unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ready"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
