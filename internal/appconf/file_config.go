package appconf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FeedEntry is one realtime feed in the configuration file.
type FeedEntry struct {
	ID      string            `yaml:"id" validate:"required"`
	URL     string            `yaml:"url" validate:"required,url"`
	Enabled *bool             `yaml:"enabled"`
	Headers map[string]string `yaml:"headers"`
}

// IsEnabled reports whether the feed is enabled; feeds are enabled unless
// explicitly turned off.
func (f FeedEntry) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// FileConfig mirrors the YAML configuration file.
type FileConfig struct {
	Port         int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Env          string `yaml:"env" validate:"omitempty,oneof=development dev test production prod"`
	Verbose      bool   `yaml:"verbose"`
	RateLimit    int    `yaml:"rate-limit" validate:"omitempty,gt=0"`
	CORSOrigin   string `yaml:"cors-origin"`
	UIDir        string `yaml:"ui-dir"`
	Timezone     string `yaml:"timezone" validate:"omitempty,timezone"`
	WindowBefore int    `yaml:"window-before" validate:"omitempty,min=0,max=43200"`
	WindowAfter  int    `yaml:"window-after" validate:"omitempty,min=0,max=43200"`

	SchedulePath string      `yaml:"schedule-path"`
	GeometryPath string      `yaml:"geometry-path"`
	Feeds        []FeedEntry `yaml:"feeds" validate:"omitempty,dive"`
	AlertsURL    string      `yaml:"alerts-url" validate:"omitempty,url"`

	StaticAuthHeaderKey     string `yaml:"static-auth-header-key"`
	StaticAuthHeaderValue   string `yaml:"static-auth-header-value"`
	RealTimeAuthHeaderKey   string `yaml:"realtime-auth-header-key"`
	RealTimeAuthHeaderValue string `yaml:"realtime-auth-header-value"`

	RealtimeTTL       time.Duration `yaml:"realtime-ttl" validate:"omitempty,gt=0"`
	AlertsTTL         time.Duration `yaml:"alerts-ttl" validate:"omitempty,gt=0"`
	RealtimeTimeout   time.Duration `yaml:"realtime-timeout" validate:"omitempty,gt=0"`
	AlertsTimeout     time.Duration `yaml:"alerts-timeout" validate:"omitempty,gt=0"`
	BackgroundRefresh bool          `yaml:"background-refresh"`
}

// GtfsConfigData carries the feed settings from the file. It is converted
// to a gtfs.Config by the caller.
type GtfsConfigData struct {
	SchedulePath            string
	GeometryPath            string
	Feeds                   []FeedEntry
	AlertsURL               string
	StaticAuthHeaderKey     string
	StaticAuthHeaderValue   string
	RealTimeAuthHeaderKey   string
	RealTimeAuthHeaderValue string
	RealtimeTTL             time.Duration
	AlertsTTL               time.Duration
	RealtimeTimeout         time.Duration
	AlertsTimeout           time.Duration
	BackgroundRefresh       bool
	Env                     Environment
	Verbose                 bool
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadFromFile reads and validates a YAML configuration file.
func LoadFromFile(path string) (*FileConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file %q: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	return ParseFileConfig(data)
}

// ParseFileConfig decodes and validates YAML configuration bytes. Unknown
// keys are rejected.
func ParseFileConfig(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and reports every violation.
func (cfg *FileConfig) Validate() error {
	err := configValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	problems := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

func (cfg *FileConfig) ToAppConfig() Config {
	return Config{
		Port:         cfg.Port,
		Env:          EnvFlagToEnvironment(cfg.Env),
		Verbose:      cfg.Verbose,
		RateLimit:    cfg.RateLimit,
		CORSOrigin:   cfg.CORSOrigin,
		UIDir:        cfg.UIDir,
		Timezone:     cfg.Timezone,
		WindowBefore: cfg.WindowBefore,
		WindowAfter:  cfg.WindowAfter,
	}
}

func (cfg *FileConfig) ToGtfsConfigData() GtfsConfigData {
	return GtfsConfigData{
		SchedulePath:            cfg.SchedulePath,
		GeometryPath:            cfg.GeometryPath,
		Feeds:                   cfg.Feeds,
		AlertsURL:               cfg.AlertsURL,
		StaticAuthHeaderKey:     cfg.StaticAuthHeaderKey,
		StaticAuthHeaderValue:   cfg.StaticAuthHeaderValue,
		RealTimeAuthHeaderKey:   cfg.RealTimeAuthHeaderKey,
		RealTimeAuthHeaderValue: cfg.RealTimeAuthHeaderValue,
		RealtimeTTL:             cfg.RealtimeTTL,
		AlertsTTL:               cfg.AlertsTTL,
		RealtimeTimeout:         cfg.RealtimeTimeout,
		AlertsTimeout:           cfg.AlertsTimeout,
		BackgroundRefresh:       cfg.BackgroundRefresh,
		Env:                     EnvFlagToEnvironment(cfg.Env),
		Verbose:                 cfg.Verbose,
	}
}
