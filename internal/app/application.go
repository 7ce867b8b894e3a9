package app

import (
	"log/slog"

	"subwaylive.org/internal/appconf"
	"subwaylive.org/internal/clock"
	"subwaylive.org/internal/gtfs"
	"subwaylive.org/internal/metrics"
)

// Application holds the dependencies shared by HTTP handlers, helpers,
// and middleware.
type Application struct {
	Config      appconf.Config
	GtfsConfig  gtfs.Config
	Logger      *slog.Logger
	GtfsManager *gtfs.Manager
	Clock       clock.Clock
	Metrics     *metrics.Metrics
}
