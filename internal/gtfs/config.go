package gtfs

import (
	"strings"
	"time"

	"subwaylive.org/internal/appconf"
)

const mtaFeedBase = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/"

// Default cache and upstream timing.
const (
	DefaultRealtimeTTL     = 30 * time.Second
	DefaultAlertsTTL       = 60 * time.Second
	DefaultRealtimeTimeout = 5 * time.Second
	DefaultAlertsTimeout   = 10 * time.Second
	DefaultStatusHistory   = 20
)

// DefaultAlertsURL is the MTA subway service alerts feed.
const DefaultAlertsURL = mtaFeedBase + "camsys%2Fsubway-alerts"

// Configuration for a single line-partitioned GTFS-RT trip updates feed.
type RTFeedConfig struct {
	ID      string            `yaml:"id" validate:"required"`
	URL     string            `yaml:"url" validate:"required,url"`
	Headers map[string]string `yaml:"headers"`
	Enabled bool              `yaml:"enabled"`
}

// Config holds GTFS configuration for the manager.
type Config struct {
	// SchedulePath and GeometryPath are local files or http(s) URLs.
	SchedulePath          string
	GeometryPath          string
	StaticAuthHeaderKey   string
	StaticAuthHeaderValue string

	RTFeeds                 []RTFeedConfig
	AlertsURL               string
	RealTimeAuthHeaderKey   string
	RealTimeAuthHeaderValue string

	RealtimeTTL       time.Duration
	AlertsTTL         time.Duration
	RealtimeTimeout   time.Duration
	AlertsTimeout     time.Duration
	BackgroundRefresh bool
	StatusHistory     int

	Env     appconf.Environment
	Verbose bool
}

// DefaultRTFeeds returns the NYC subway line-group feeds. Each feed covers a
// disjoint set of lines.
func DefaultRTFeeds() []RTFeedConfig {
	suffixes := []struct{ id, path string }{
		{"1234567S", "nyct%2Fgtfs"},
		{"ACE", "nyct%2Fgtfs-ace"},
		{"BDFM", "nyct%2Fgtfs-bdfm"},
		{"G", "nyct%2Fgtfs-g"},
		{"JZ", "nyct%2Fgtfs-jz"},
		{"L", "nyct%2Fgtfs-l"},
		{"NQRW", "nyct%2Fgtfs-nqrw"},
		{"SIR", "nyct%2Fgtfs-si"},
	}
	feeds := make([]RTFeedConfig, 0, len(suffixes))
	for _, s := range suffixes {
		feeds = append(feeds, RTFeedConfig{
			ID:      s.id,
			URL:     mtaFeedBase + s.path,
			Enabled: true,
		})
	}
	return feeds
}

// withDefaults fills zero-valued timing fields.
func (config Config) withDefaults() Config {
	if config.RealtimeTTL <= 0 {
		config.RealtimeTTL = DefaultRealtimeTTL
	}
	if config.AlertsTTL <= 0 {
		config.AlertsTTL = DefaultAlertsTTL
	}
	if config.RealtimeTimeout <= 0 {
		config.RealtimeTimeout = DefaultRealtimeTimeout
	}
	if config.AlertsTimeout <= 0 {
		config.AlertsTimeout = DefaultAlertsTimeout
	}
	if config.StatusHistory <= 0 {
		config.StatusHistory = DefaultStatusHistory
	}
	return config
}

// enabledFeeds returns only the enabled feeds that have a URL configured.
func (config Config) enabledFeeds() []RTFeedConfig {
	var feeds []RTFeedConfig
	for _, feed := range config.RTFeeds {
		if feed.Enabled && feed.URL != "" {
			feeds = append(feeds, feed)
		}
	}
	return feeds
}

// headersFor merges the shared realtime auth header with a feed's own headers.
// Feed headers win.
func (config Config) headersFor(feed RTFeedConfig) map[string]string {
	headers := make(map[string]string, len(feed.Headers)+1)
	if config.RealTimeAuthHeaderKey != "" && config.RealTimeAuthHeaderValue != "" {
		headers[config.RealTimeAuthHeaderKey] = config.RealTimeAuthHeaderValue
	}
	for k, v := range feed.Headers {
		headers[k] = v
	}
	return headers
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
