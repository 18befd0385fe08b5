package http

// Route patterns for the coordinator HTTP surface.
const (
	routeStats       = "/v1/coordinator/stats"
	routeCancelAll   = "/v1/coordinator/cancel"
	routeCancelByKey = "/v1/coordinator/cancel/{key}"
	routeCache       = "/v1/coordinator/cache"
)

// Route names for mux URL building.
const (
	routeNameStats       = "coordinator_stats"
	routeNameCancelAll   = "coordinator_cancel_all"
	routeNameCancelByKey = "coordinator_cancel_by_key"
	routeNameClearCache  = "coordinator_clear_cache"
)
