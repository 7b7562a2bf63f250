package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/isdelr/keeper-notes-be/internal/monitoring"
	"github.com/rs/zerolog/hlog"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and readiness routes.
type HealthHandler struct {
	db        Pinger
	cache     Pinger
	hostStats func(ctx context.Context) (monitoring.HostStats, error)
}

// NewHealthHandler creates a new HealthHandler. A nil cache reports the
// cache as disabled.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, hostStats: monitoring.CollectHostStats}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status   string                `json:"status"`
	Database string                `json:"database"`
	Cache    string                `json:"cache"`
	Host     *monitoring.HostStats `json:"host,omitempty"`
}

// Test confirms the API is up.
func (h *HealthHandler) Test(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Backend is working!"})
}

// Health checks storage and the note cache and reports host statistics.
// Only storage failures make the service unavailable; without the cache
// notes are served from the database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Cache: "disabled"}
	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Database health check failed")
		resp.Status, resp.Database = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.cache != nil {
		resp.Cache = "ok"
		if err := h.cache.PingContext(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Cache health check failed")
			resp.Status, resp.Cache = "degraded", "unreachable"
		}
	}

	if stats, err := h.hostStats(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Could not collect host stats")
	} else {
		resp.Host = &stats
	}

	WriteJSON(w, status, resp)
}
