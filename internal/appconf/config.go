// Package appconf holds the HTTP server configuration and the optional YAML
// configuration file loader.
package appconf

import "time"

// Defaults for the HTTP surface.
const (
	DefaultPort         = 3000
	DefaultRateLimit    = 100
	DefaultCORSOrigin   = "*"
	DefaultUIDir        = "./public"
	DefaultTimezone     = "America/New_York"
	DefaultWindowBefore = 600
	DefaultWindowAfter  = 1800
	MaxWindowSeconds    = 43200
	DefaultFakeNowEnv   = "SUBWAYLIVE_FAKE_NOW"
)

type Config struct {
	Port         int
	Env          Environment
	Verbose      bool
	RateLimit    int // requests per second per client IP
	CORSOrigin   string
	UIDir        string
	Timezone     string
	WindowBefore int // seconds
	WindowAfter  int // seconds
	FakeNowEnv   string
}

// WithDefaults fills zero fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = DefaultCORSOrigin
	}
	if c.UIDir == "" {
		c.UIDir = DefaultUIDir
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.WindowBefore <= 0 {
		c.WindowBefore = DefaultWindowBefore
	}
	if c.WindowAfter <= 0 {
		c.WindowAfter = DefaultWindowAfter
	}
	return c
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	return time.LoadLocation(name)
}
