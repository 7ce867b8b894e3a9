package models

import (
	"time"

	"subwaylive.org/internal/cache"
	"subwaylive.org/internal/gtfs"
)

// Health states reported by /healthz.
const (
	HealthOK          = "ok"
	HealthStarting    = "starting"
	HealthUnavailable = "unavailable"
)

type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type StatusResponse struct {
	Now     time.Time         `json:"now"`
	Env     string            `json:"env"`
	Build   BuildInfo         `json:"build"`
	Static  gtfs.StaticStatus `json:"static"`
	Caches  []cache.Status    `json:"caches"`
	Feeds   []gtfs.FeedStatus `json:"feeds"`
	Enabled []string          `json:"enabledFeeds"`
}

// BuildInfo is stamped at link time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}
