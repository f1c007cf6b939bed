package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragstore/ragstore/internal/log"
)

// healthHandler serves liveness and readiness probes. Probes sit outside the
// middleware stack so rate limiting and auth never interfere with them.
type healthHandler struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// info describes the service for unauthenticated discovery.
func (h *healthHandler) info(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"service": "ragstore",
			"version": version,
			"api":     "/api/v1",
		}, h.logger)
	}
}

// liveness reports that the process is alive.
func (h *healthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// readiness reports whether the database is reachable.
func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		WriteError(w, http.StatusServiceUnavailable, "not_ready", "database pool not configured", h.logger)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "not_ready", "database not ready", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}
