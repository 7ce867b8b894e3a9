package restapi

import (
	"net/http"
)

// SetRoutes registers the JSON API on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", api.configHandler)
	mux.HandleFunc("GET /api/schedule", api.scheduleHandler)
	mux.HandleFunc("GET /api/realtime", api.realtimeHandler)
	mux.HandleFunc("GET /api/alerts", api.alertsHandler)
	mux.HandleFunc("GET /api/status", api.statusHandler)
	mux.HandleFunc("GET /api/stops/nearby", api.nearbyStopsHandler)
	mux.HandleFunc("GET /api/shapes/{routeId}", api.shapesHandler)
	mux.HandleFunc("GET /healthz", api.healthHandler)
	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		api.sendNotFound(w, r, "endpoint not found")
	})
}

// Handler wraps next with the server-wide middleware chain. The metrics
// middleware sits directly on the mux so it can read the matched pattern.
func (api *RestAPI) Handler(next http.Handler) http.Handler {
	handler := MetricsHandler(api.Metrics)(next)
	handler = CompressionMiddleware(handler)
	handler = api.rateLimiter.Handler()(handler)
	handler = CacheControlMiddleware(api.Config.Env, handler)
	handler = CORSMiddleware(api.Config.CORSOrigin)(handler)
	handler = NewRequestLoggingMiddleware(api.logger())(handler)
	handler = RequestIDMiddleware(handler)
	return api.recoverPanic(handler)
}
