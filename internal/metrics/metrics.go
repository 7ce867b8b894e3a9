// Package metrics provides Prometheus metrics for the subwaylive application.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values shared by feed and cache metrics.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultEmpty   = "empty"
	ResultSkipped = "superseded"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Upstream feed metrics
	FeedFetchTotal    *prometheus.CounterVec
	FeedFetchDuration *prometheus.HistogramVec

	// Cache metrics
	CacheRefreshTotal *prometheus.CounterVec
	CacheReadsTotal   *prometheus.CounterVec

	// Data volume gauges
	RealtimeTrips prometheus.Gauge
	ActiveAlerts  prometheus.Gauge
	ScheduleTrips prometheus.Gauge

	// logger for error reporting
	logger *slog.Logger
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subwaylive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subwaylive_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	feedFetchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subwaylive_feed_fetch_total",
			Help: "Upstream GTFS-RT fetch attempts by feed and result",
		},
		[]string{"feed", "result"},
	)

	feedFetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subwaylive_feed_fetch_duration_seconds",
			Help:    "Upstream GTFS-RT fetch latency, including decode",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"feed"},
	)

	cacheRefreshTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subwaylive_cache_refresh_total",
			Help: "Cache refresh attempts by cache and result",
		},
		[]string{"cache", "result"},
	)

	cacheReadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subwaylive_cache_reads_total",
			Help: "Cache reads by cache and whether the entry was fresh",
		},
		[]string{"cache", "fresh"},
	)

	realtimeTrips := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "subwaylive_realtime_trips",
		Help: "Number of trip statuses in the committed realtime snapshot",
	})

	activeAlerts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "subwaylive_active_alerts",
		Help: "Number of alerts in the committed alerts snapshot",
	})

	scheduleTrips := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "subwaylive_schedule_trips",
		Help: "Number of trips in the loaded static schedule",
	})

	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		feedFetchTotal,
		feedFetchDuration,
		cacheRefreshTotal,
		cacheReadsTotal,
		realtimeTrips,
		activeAlerts,
		scheduleTrips,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:            registry,
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		FeedFetchTotal:      feedFetchTotal,
		FeedFetchDuration:   feedFetchDuration,
		CacheRefreshTotal:   cacheRefreshTotal,
		CacheReadsTotal:     cacheReadsTotal,
		RealtimeTrips:       realtimeTrips,
		ActiveAlerts:        activeAlerts,
		ScheduleTrips:       scheduleTrips,
		logger:              logger,
	}
}

// ObserveFeedFetch records one upstream fetch. Safe to call on a nil receiver.
func (m *Metrics) ObserveFeedFetch(feedID string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.FeedFetchTotal.WithLabelValues(feedID, result).Inc()
	m.FeedFetchDuration.WithLabelValues(feedID).Observe(elapsed.Seconds())
}

// ObserveCacheRefresh records the outcome of a cache refresh attempt.
func (m *Metrics) ObserveCacheRefresh(cacheName, result string) {
	if m == nil {
		return
	}
	m.CacheRefreshTotal.WithLabelValues(cacheName, result).Inc()
}

// ObserveCacheRead records whether a read was served without a refresh.
func (m *Metrics) ObserveCacheRead(cacheName string, fresh bool) {
	if m == nil {
		return
	}
	label := "false"
	if fresh {
		label = "true"
	}
	m.CacheReadsTotal.WithLabelValues(cacheName, label).Inc()
}

// SetRealtimeTrips updates the committed realtime snapshot size.
func (m *Metrics) SetRealtimeTrips(n int) {
	if m == nil {
		return
	}
	m.RealtimeTrips.Set(float64(n))
}

// SetActiveAlerts updates the committed alerts snapshot size.
func (m *Metrics) SetActiveAlerts(n int) {
	if m == nil {
		return
	}
	m.ActiveAlerts.Set(float64(n))
}

// SetScheduleTrips updates the loaded schedule size.
func (m *Metrics) SetScheduleTrips(n int) {
	if m == nil {
		return
	}
	if m.logger != nil {
		m.logger.Debug("schedule size updated", slog.Int("trips", n))
	}
	m.ScheduleTrips.Set(float64(n))
}

// Handler serves this instance's registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	opts := promhttp.HandlerOpts{Registry: m.Registry}
	if m.logger != nil {
		opts.ErrorLog = slog.NewLogLogger(m.logger.Handler(), slog.LevelError)
	}
	return promhttp.HandlerFor(m.Registry, opts)
}
