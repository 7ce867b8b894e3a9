package restapi

import (
	"log/slog"
	"time"

	"subwaylive.org/internal/app"
	"subwaylive.org/internal/clock"
)

// Paths that bypass the per-client rate limit.
var rateLimitExemptPaths = []string{"/healthz", "/metrics"}

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI creates a RestAPI with its per-client rate limiter.
func NewRestAPI(app *app.Application) *RestAPI {
	var c clock.Clock = clock.RealClock{}
	if app.Clock != nil {
		c = app.Clock
	}
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second, rateLimitExemptPaths, c),
	}
}

// Shutdown stops the rate limiter's cleanup goroutine.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}

func (api *RestAPI) logger() *slog.Logger {
	if api.Application != nil && api.Logger != nil {
		return api.Logger
	}
	return slog.Default()
}
