// Package http exposes coordinator introspection and control over HTTP.
package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/reqcoord/server/api"
	"github.com/compose-network/reqcoord/x/coordinator"
)

// Introspector is the coordinator surface the handler needs; any
// coordinator.Coordinator satisfies it regardless of its value type.
type Introspector interface {
	Stats() coordinator.StatsSnapshot
	CancelAll() int
	CancelByKey(key string) int
	ClearCache()
}

type Handler struct {
	coord Introspector
	log   zerolog.Logger
}

func NewHandler(coord Introspector, log zerolog.Logger) *Handler {
	return &Handler{
		coord: coord,
		log:   log.With().Str("component", "coordinator-http").Logger(),
	}
}

// RegisterMux binds gorilla/mux routes.
func (h *Handler) RegisterMux(r *mux.Router) {
	r.HandleFunc(routeStats, h.handleStats).Methods(http.MethodGet).Name(routeNameStats)
	r.HandleFunc(routeCancelAll, h.handleCancelAll).Methods(http.MethodPost).Name(routeNameCancelAll)
	r.HandleFunc(routeCancelByKey, h.handleCancelByKey).Methods(http.MethodPost).Name(routeNameCancelByKey)
	r.HandleFunc(routeCache, h.handleClearCache).Methods(http.MethodDelete).Name(routeNameClearCache)
}

type statsResponse struct {
	PendingCount    int            `json:"pending_count"`
	RunningCount    int            `json:"running_count"`
	QueuedCount     int            `json:"queued_count"`
	CacheSize       int            `json:"cache_size"`
	CountByPriority map[string]int `json:"count_by_priority"`
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.coord.Stats()

	counts := make(map[string]int, len(stats.CountByPriority))
	for p, n := range stats.CountByPriority {
		counts[p.String()] = n
	}
	apicommon.WriteJSON(w, http.StatusOK, statsResponse{
		PendingCount:    stats.PendingCount,
		RunningCount:    stats.RunningCount,
		QueuedCount:     stats.QueuedCount,
		CacheSize:       stats.CacheSize,
		CountByPriority: counts,
	})
}

func (h *Handler) handleCancelAll(w http.ResponseWriter, _ *http.Request) {
	cancelled := h.coord.CancelAll()
	h.log.Info().Int("cancelled", cancelled).Msg("cancel-all requested over HTTP")
	apicommon.WriteJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

func (h *Handler) handleCancelByKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if key == "" {
		apicommon.WriteError(w, r, http.StatusBadRequest, "missing_key", "dedup key is required", nil)
		return
	}

	cancelled := h.coord.CancelByKey(key)
	if cancelled == 0 {
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found", "no pending operation for key", nil)
		return
	}
	h.log.Info().Str("dedup_key", key).Msg("cancel-by-key requested over HTTP")
	apicommon.WriteJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

func (h *Handler) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	h.coord.ClearCache()
	apicommon.WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
