package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"subwaylive.org/internal/app"
	"subwaylive.org/internal/appconf"
	"subwaylive.org/internal/buildinfo"
	"subwaylive.org/internal/clock"
	"subwaylive.org/internal/gtfs"
	"subwaylive.org/internal/logging"
	"subwaylive.org/internal/metrics"
	"subwaylive.org/internal/restapi"
	"subwaylive.org/internal/webui"
)

const (
	defaultSchedulePath = "data/subway_schedule.json"
	defaultGeometryPath = "data/subway_config.json"

	// Header the MTA feed endpoints read when an API key is configured.
	mtaAPIKeyHeader = "x-api-key"

	shutdownTimeout = 30 * time.Second
)

// ParseFeedList parses a comma separated list of ID=URL pairs.
func ParseFeedList(s string) ([]gtfs.RTFeedConfig, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []gtfs.RTFeedConfig{}, nil
	}

	var feeds []gtfs.RTFeedConfig
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, url, ok := strings.Cut(part, "=")
		id, url = strings.TrimSpace(id), strings.TrimSpace(url)
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("invalid feed %q: expected ID=URL", part)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate feed id %q", id)
		}
		seen[id] = true
		feeds = append(feeds, gtfs.RTFeedConfig{ID: id, URL: url, Enabled: true})
	}
	return feeds, nil
}

func defaultConfigs() (appconf.Config, gtfs.Config) {
	cfg := appconf.Config{Port: appconf.DefaultPort, Env: appconf.Development}.WithDefaults()
	cfg.FakeNowEnv = appconf.DefaultFakeNowEnv
	return cfg, gtfs.Config{
		SchedulePath:    defaultSchedulePath,
		GeometryPath:    defaultGeometryPath,
		RTFeeds:         gtfs.DefaultRTFeeds(),
		AlertsURL:       gtfs.DefaultAlertsURL,
		RealtimeTTL:     gtfs.DefaultRealtimeTTL,
		AlertsTTL:       gtfs.DefaultAlertsTTL,
		RealtimeTimeout: gtfs.DefaultRealtimeTimeout,
		AlertsTimeout:   gtfs.DefaultAlertsTimeout,
	}
}

// ParseFlags assembles the configuration from, lowest precedence first:
// built-in defaults, the YAML file named by -config, environment variables
// and explicitly set flags.
func ParseFlags(args []string, getenv func(string) string) (appconf.Config, gtfs.Config, error) {
	cfg, gtfsCfg := defaultConfigs()
	flagCfg, flagGtfs := defaultConfigs()

	var (
		configPath string
		envFlag    string
		feedsFlag  string
	)

	fs := flag.NewFlagSet("subwaylive", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	fs.IntVar(&flagCfg.Port, "port", flagCfg.Port, "API server port")
	fs.StringVar(&envFlag, "env", "development", "Environment (development|test|production)")
	fs.BoolVar(&flagCfg.Verbose, "verbose", false, "Enable debug logging")
	fs.IntVar(&flagCfg.RateLimit, "rate-limit", flagCfg.RateLimit, "Requests per second allowed per client IP")
	fs.StringVar(&flagCfg.CORSOrigin, "cors-origin", flagCfg.CORSOrigin, "Access-Control-Allow-Origin value")
	fs.StringVar(&flagCfg.UIDir, "ui-dir", flagCfg.UIDir, "Directory holding the static map UI")
	fs.StringVar(&flagCfg.Timezone, "timezone", flagCfg.Timezone, "IANA time zone of the schedule")
	fs.IntVar(&flagCfg.WindowBefore, "window-before", flagCfg.WindowBefore, "Default seconds of schedule before now")
	fs.IntVar(&flagCfg.WindowAfter, "window-after", flagCfg.WindowAfter, "Default seconds of schedule after now")
	fs.StringVar(&flagCfg.FakeNowEnv, "fake-now-env", flagCfg.FakeNowEnv, "Environment variable pinning the current time outside production")
	fs.StringVar(&flagGtfs.SchedulePath, "schedule", flagGtfs.SchedulePath, "Path or URL of the schedule artifact")
	fs.StringVar(&flagGtfs.GeometryPath, "geometry", flagGtfs.GeometryPath, "Path or URL of the route geometry artifact")
	fs.StringVar(&feedsFlag, "feeds", "", "Comma separated realtime feeds as ID=URL (replaces the defaults)")
	fs.StringVar(&flagGtfs.AlertsURL, "alerts-url", flagGtfs.AlertsURL, "Service alerts feed URL")
	fs.StringVar(&flagGtfs.RealTimeAuthHeaderKey, "realtime-auth-header-key", "", "Header name sent to realtime feeds")
	fs.StringVar(&flagGtfs.RealTimeAuthHeaderValue, "realtime-auth-header-value", "", "Header value sent to realtime feeds")
	fs.DurationVar(&flagGtfs.RealtimeTTL, "realtime-ttl", flagGtfs.RealtimeTTL, "Realtime cache freshness")
	fs.DurationVar(&flagGtfs.AlertsTTL, "alerts-ttl", flagGtfs.AlertsTTL, "Alerts cache freshness")
	fs.DurationVar(&flagGtfs.RealtimeTimeout, "realtime-timeout", flagGtfs.RealtimeTimeout, "Per-feed realtime fetch timeout")
	fs.DurationVar(&flagGtfs.AlertsTimeout, "alerts-timeout", flagGtfs.AlertsTimeout, "Alerts fetch timeout")
	fs.BoolVar(&flagGtfs.BackgroundRefresh, "background-refresh", false, "Refresh caches on a timer instead of only on demand")

	if err := fs.Parse(args); err != nil {
		return cfg, gtfsCfg, fmt.Errorf("failed to parse flags: %w", err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if configPath != "" {
		fileCfg, err := appconf.LoadFromFile(configPath)
		if err != nil {
			return cfg, gtfsCfg, err
		}
		applyFileConfig(&cfg, &gtfsCfg, fileCfg)
	}

	if err := applyEnv(&cfg, &gtfsCfg, getenv); err != nil {
		return cfg, gtfsCfg, err
	}

	if err := applyFlags(&cfg, &gtfsCfg, flagCfg, flagGtfs, set, envFlag, feedsFlag); err != nil {
		return cfg, gtfsCfg, err
	}

	if err := validateConfig(cfg, gtfsCfg); err != nil {
		return cfg, gtfsCfg, err
	}

	gtfsCfg.Env = cfg.Env
	gtfsCfg.Verbose = cfg.Verbose
	return cfg, gtfsCfg, nil
}

func applyFileConfig(cfg *appconf.Config, gtfsCfg *gtfs.Config, fileCfg *appconf.FileConfig) {
	fromFile := fileCfg.ToAppConfig()
	if fromFile.Port != 0 {
		cfg.Port = fromFile.Port
	}
	if fileCfg.Env != "" {
		cfg.Env = fromFile.Env
	}
	cfg.Verbose = cfg.Verbose || fromFile.Verbose
	if fromFile.RateLimit > 0 {
		cfg.RateLimit = fromFile.RateLimit
	}
	if fromFile.CORSOrigin != "" {
		cfg.CORSOrigin = fromFile.CORSOrigin
	}
	if fromFile.UIDir != "" {
		cfg.UIDir = fromFile.UIDir
	}
	if fromFile.Timezone != "" {
		cfg.Timezone = fromFile.Timezone
	}
	if fromFile.WindowBefore > 0 {
		cfg.WindowBefore = fromFile.WindowBefore
	}
	if fromFile.WindowAfter > 0 {
		cfg.WindowAfter = fromFile.WindowAfter
	}

	data := fileCfg.ToGtfsConfigData()
	if data.SchedulePath != "" {
		gtfsCfg.SchedulePath = data.SchedulePath
	}
	if data.GeometryPath != "" {
		gtfsCfg.GeometryPath = data.GeometryPath
	}
	if len(data.Feeds) > 0 {
		feeds := make([]gtfs.RTFeedConfig, 0, len(data.Feeds))
		for _, entry := range data.Feeds {
			feeds = append(feeds, gtfs.RTFeedConfig{
				ID:      entry.ID,
				URL:     entry.URL,
				Headers: entry.Headers,
				Enabled: entry.IsEnabled(),
			})
		}
		gtfsCfg.RTFeeds = feeds
	}
	if data.AlertsURL != "" {
		gtfsCfg.AlertsURL = data.AlertsURL
	}
	if data.StaticAuthHeaderKey != "" {
		gtfsCfg.StaticAuthHeaderKey = data.StaticAuthHeaderKey
		gtfsCfg.StaticAuthHeaderValue = data.StaticAuthHeaderValue
	}
	if data.RealTimeAuthHeaderKey != "" {
		gtfsCfg.RealTimeAuthHeaderKey = data.RealTimeAuthHeaderKey
		gtfsCfg.RealTimeAuthHeaderValue = data.RealTimeAuthHeaderValue
	}
	if data.RealtimeTTL > 0 {
		gtfsCfg.RealtimeTTL = data.RealtimeTTL
	}
	if data.AlertsTTL > 0 {
		gtfsCfg.AlertsTTL = data.AlertsTTL
	}
	if data.RealtimeTimeout > 0 {
		gtfsCfg.RealtimeTimeout = data.RealtimeTimeout
	}
	if data.AlertsTimeout > 0 {
		gtfsCfg.AlertsTimeout = data.AlertsTimeout
	}
	gtfsCfg.BackgroundRefresh = gtfsCfg.BackgroundRefresh || data.BackgroundRefresh
}

func applyEnv(cfg *appconf.Config, gtfsCfg *gtfs.Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(getenv("ENV")); v != "" {
		env, err := appconf.ParseEnvironment(v)
		if err != nil {
			return fmt.Errorf("invalid ENV: %w", err)
		}
		cfg.Env = env
	}
	if v := strings.TrimSpace(getenv("DEBUG")); v != "" {
		debug, err := strconv.ParseBool(v)
		// Any non-boolean value still counts as "set".
		cfg.Verbose = err != nil || debug
	}
	if v := strings.TrimSpace(getenv("MTA_API_KEY")); v != "" {
		gtfsCfg.RealTimeAuthHeaderKey = mtaAPIKeyHeader
		gtfsCfg.RealTimeAuthHeaderValue = v
	}
	return nil
}

func applyFlags(cfg *appconf.Config, gtfsCfg *gtfs.Config, flagCfg appconf.Config, flagGtfs gtfs.Config, set map[string]bool, envFlag, feedsFlag string) error {
	if set["port"] {
		cfg.Port = flagCfg.Port
	}
	if set["env"] {
		env, err := appconf.ParseEnvironment(envFlag)
		if err != nil {
			return fmt.Errorf("invalid -env: %w", err)
		}
		cfg.Env = env
	}
	if set["verbose"] {
		cfg.Verbose = flagCfg.Verbose
	}
	if set["rate-limit"] {
		cfg.RateLimit = flagCfg.RateLimit
	}
	if set["cors-origin"] {
		cfg.CORSOrigin = flagCfg.CORSOrigin
	}
	if set["ui-dir"] {
		cfg.UIDir = flagCfg.UIDir
	}
	if set["timezone"] {
		cfg.Timezone = flagCfg.Timezone
	}
	if set["window-before"] {
		cfg.WindowBefore = flagCfg.WindowBefore
	}
	if set["window-after"] {
		cfg.WindowAfter = flagCfg.WindowAfter
	}
	if set["fake-now-env"] {
		cfg.FakeNowEnv = flagCfg.FakeNowEnv
	}
	if set["schedule"] {
		gtfsCfg.SchedulePath = flagGtfs.SchedulePath
	}
	if set["geometry"] {
		gtfsCfg.GeometryPath = flagGtfs.GeometryPath
	}
	if set["feeds"] {
		feeds, err := ParseFeedList(feedsFlag)
		if err != nil {
			return err
		}
		gtfsCfg.RTFeeds = feeds
	}
	if set["alerts-url"] {
		gtfsCfg.AlertsURL = flagGtfs.AlertsURL
	}
	if set["realtime-auth-header-key"] {
		gtfsCfg.RealTimeAuthHeaderKey = flagGtfs.RealTimeAuthHeaderKey
	}
	if set["realtime-auth-header-value"] {
		gtfsCfg.RealTimeAuthHeaderValue = flagGtfs.RealTimeAuthHeaderValue
	}
	if set["realtime-ttl"] {
		gtfsCfg.RealtimeTTL = flagGtfs.RealtimeTTL
	}
	if set["alerts-ttl"] {
		gtfsCfg.AlertsTTL = flagGtfs.AlertsTTL
	}
	if set["realtime-timeout"] {
		gtfsCfg.RealtimeTimeout = flagGtfs.RealtimeTimeout
	}
	if set["alerts-timeout"] {
		gtfsCfg.AlertsTimeout = flagGtfs.AlertsTimeout
	}
	if set["background-refresh"] {
		gtfsCfg.BackgroundRefresh = flagGtfs.BackgroundRefresh
	}
	return nil
}

func validateConfig(cfg appconf.Config, gtfsCfg gtfs.Config) error {
	var errs []error
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Port))
	}
	if cfg.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("rate limit must be positive, got %d", cfg.RateLimit))
	}
	for name, v := range map[string]int{"window-before": cfg.WindowBefore, "window-after": cfg.WindowAfter} {
		if v < 0 || v > appconf.MaxWindowSeconds {
			errs = append(errs, fmt.Errorf("%s must be between 0 and %d, got %d", name, appconf.MaxWindowSeconds, v))
		}
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err))
	}
	if gtfsCfg.SchedulePath == "" {
		errs = append(errs, errors.New("schedule path is required"))
	}
	for name, d := range map[string]time.Duration{
		"realtime-ttl":     gtfsCfg.RealtimeTTL,
		"alerts-ttl":       gtfsCfg.AlertsTTL,
		"realtime-timeout": gtfsCfg.RealtimeTimeout,
		"alerts-timeout":   gtfsCfg.AlertsTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

func newLogger(cfg appconf.Config) *slog.Logger {
	if cfg.Env == appconf.Development && cfg.Verbose {
		return logging.NewTextLogger(os.Stdout, slog.LevelDebug)
	}
	return logging.NewStructuredLogger(os.Stdout, slog.LevelInfo)
}

// BuildApplication wires the logger, clock, metrics and GTFS manager. A
// missing static artifact is not fatal: the manager reports it through
// /healthz and the API answers 500 until a reload succeeds.
func BuildApplication(cfg appconf.Config, gtfsCfg gtfs.Config) (*app.Application, error) {
	logger := newLogger(cfg)

	location, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	// A pinned time only moves the schedule window; cache TTLs and feed
	// timestamps stay on the wall clock.
	var scheduleClock clock.Clock = clock.RealClock{}
	if cfg.FakeNowEnv != "" && cfg.Env != appconf.Production {
		scheduleClock, err = clock.FromEnvironment(cfg.FakeNowEnv, location)
		if err != nil {
			logger.Warn("ignoring pinned time", slog.String("error", err.Error()))
		}
		if ec, ok := scheduleClock.(*clock.EnvironmentClock); ok {
			logger.Info("schedule time pinned",
				slog.String("envVar", ec.Source()),
				slog.Time("now", ec.Now()))
		}
	}

	appMetrics := metrics.NewWithLogger(logger)

	manager, err := gtfs.InitGTFSManager(gtfsCfg, gtfs.ManagerOptions{
		Clock:         clock.RealClock{},
		ScheduleClock: scheduleClock,
		Location:      location,
		Logger:        logger,
		Metrics:       appMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GTFS manager: %w", err)
	}
	manager.Start()

	return &app.Application{
		Config:      cfg,
		GtfsConfig:  gtfsCfg,
		Logger:      logger,
		GtfsManager: manager,
		Clock:       clock.RealClock{},
		Metrics:     appMetrics,
	}, nil
}

// CreateServer builds the HTTP server with every route and middleware.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)
	ui := &webui.WebUI{Application: coreApp}

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	mux.Handle("GET /metrics", coreApp.Metrics.Handler())
	ui.SetWebUIRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Handler(mux),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run serves until ctx is cancelled, reloading the static artifacts on
// every value received from reload. Shutdown drains in-flight requests and
// then stops the rate limiter and the GTFS manager.
func Run(ctx context.Context, srv *http.Server, coreApp *app.Application, api *restapi.RestAPI, reload <-chan os.Signal) error {
	logger := logging.FromContext(ctx)
	if coreApp.Logger != nil {
		logger = coreApp.Logger.With(slog.String("component", "http_server"))
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "starting_server",
			slog.String("addr", srv.Addr),
			slog.String("env", coreApp.Config.Env.String()),
			slog.String("version", buildinfo.Version),
			slog.String("commit", buildinfo.ShortCommit()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serveErr:
			if err != nil {
				logging.LogError(logger, "server failed", err)
				runErr = err
			}
			break loop
		case sig, ok := <-reload:
			if !ok {
				reload = nil
				continue
			}
			logging.LogOperation(logger, "reloading_static_data", slog.String("signal", sig.String()))
			if err := coreApp.GtfsManager.ReloadStatic(context.WithoutCancel(ctx)); err != nil {
				logging.LogError(logger, "static reload failed", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logging.LogOperation(logger, "shutting_down_server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "graceful shutdown failed", err)
		if runErr == nil {
			runErr = err
		}
	}

	api.Shutdown()
	coreApp.GtfsManager.Shutdown()
	logging.LogOperation(logger, "server_stopped")
	return runErr
}
