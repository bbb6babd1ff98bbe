package api

import (
	"context"
	"net/http"
	"time"

	"github.com/eloquentai/eloquent-chat/internal/log"
)

const readyTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthHandler struct {
	db      Pinger
	version string
	logger  log.Logger
}

// health handles GET /health: process liveness only.
func (h *healthHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	}, h.logger)
}

// ready handles GET /ready: liveness plus a database round trip.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}
