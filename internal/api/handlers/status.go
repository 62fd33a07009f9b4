package handlers

import (
	"net/http"

	"github.com/wonny/aegis-signal/internal/quota"
	"github.com/wonny/aegis-signal/internal/respcache"
)

// UpstreamStatus reports upstream budget and cache state; the market data client satisfies it
type UpstreamStatus interface {
	QuotaSnapshot() quota.Snapshot
	CacheStats() respcache.Stats
}

// StatusHandler handles operational endpoints
type StatusHandler struct {
	upstream UpstreamStatus
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(upstream UpstreamStatus) *StatusHandler {
	return &StatusHandler{upstream: upstream}
}

// GetQuota returns current quota usage
// GET /api/quota
func (h *StatusHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.upstream.QuotaSnapshot())
}

// GetCacheStats returns response cache counters
// GET /api/cache/stats
func (h *StatusHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.upstream.CacheStats())
}
