package gtfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"subwaylive.org/internal/cache"
	"subwaylive.org/internal/clock"
	"subwaylive.org/internal/logging"
	"subwaylive.org/internal/metrics"
)

// ErrGeometryNotLoaded is returned when the route/shape artifact is unavailable.
var ErrGeometryNotLoaded = errors.New("route geometry not loaded")

// StaticData is one immutable generation of the static artifacts. A reload
// builds a new value and swaps the pointer; nothing here is mutated in place.
type StaticData struct {
	Schedule    *ScheduleIndex
	Geometry    *RouteGeometry
	Stops       *StopIndex
	ScheduleErr error
	GeometryErr error
	LoadedAt    time.Time
}

// StaticStatus summarizes the loaded static artifacts.
type StaticStatus struct {
	ScheduleLoaded  bool          `json:"scheduleLoaded"`
	ScheduleError   string        `json:"scheduleError,omitempty"`
	Routes          int           `json:"routes"`
	Trips           int           `json:"trips"`
	Stops           int           `json:"stops"`
	MissingStopRefs int           `json:"missingStopRefs"`
	GeometryLoaded  bool          `json:"geometryLoaded"`
	GeometryError   string        `json:"geometryError,omitempty"`
	Shapes          int           `json:"shapes"`
	Bounds          *RegionBounds `json:"bounds,omitempty"`
	LoadedAt        time.Time     `json:"loadedAt"`
}

// ManagerOptions are the optional collaborators of a Manager.
type ManagerOptions struct {
	// Clock drives cache freshness and feed status timestamps.
	Clock clock.Clock
	// ScheduleClock is "now" for the schedule window. Defaults to Clock.
	ScheduleClock clock.Clock
	Location      *time.Location
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Manager owns the static schedule and geometry, the realtime and alerts
// caches, and the per-feed status tracker.
type Manager struct {
	config        Config
	clock         clock.Clock
	scheduleClock clock.Clock
	location      *time.Location
	logger   *slog.Logger
	metrics  *metrics.Metrics

	static       atomic.Pointer[StaticData]
	reloadMutex  sync.Mutex
	tracker      *FeedStatusTracker
	realtimeFeed *RealtimeAggregator
	alertsFeed   *AlertsFetcher

	realtimeCache *cache.Gate[RealtimeTripStatus]
	alertsCache   *cache.Gate[Alert]

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// InitGTFSManager loads the static artifacts and wires the caches. A missing
// or malformed artifact does not fail initialization: it is logged and the
// endpoints that depend on it report it as not loaded.
func InitGTFSManager(config Config, opts ManagerOptions) (*Manager, error) {
	config = config.withDefaults()
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.ScheduleClock == nil {
		opts.ScheduleClock = opts.Clock
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	manager := &Manager{
		config:        config,
		clock:         opts.Clock,
		scheduleClock: opts.ScheduleClock,
		location:      opts.Location,
		logger:        opts.Logger.With(slog.String("component", "gtfs_manager")),
		metrics:       opts.Metrics,
		tracker:       NewFeedStatusTracker(config.StatusHistory),
		shutdownChan:  make(chan struct{}),
	}

	deps := FetchDeps{
		Tracker:  manager.tracker,
		Observer: opts.Metrics,
		Clock:    opts.Clock,
		Logger:   opts.Logger.With(slog.String("component", "gtfs_realtime")),
	}
	if opts.Metrics == nil {
		deps.Observer = nil
	}
	manager.realtimeFeed = NewRealtimeAggregator(config, deps)
	alertDeps := deps
	alertDeps.Logger = opts.Logger.With(slog.String("component", "gtfs_alerts"))
	manager.alertsFeed = NewAlertsFetcher(config, alertDeps)

	manager.realtimeCache = manager.newRealtimeGate(manager.realtimeFeed.Fetch)
	manager.alertsCache = manager.newAlertsGate(manager.alertsFeed.Fetch)

	if len(manager.realtimeFeed.Feeds()) == 0 {
		manager.logger.Warn("no realtime feeds enabled")
	}

	manager.static.Store(manager.loadStatic(nil))
	return manager, nil
}

func (manager *Manager) cacheOptions(name string, onCommit func(int)) []cache.Option {
	opts := []cache.Option{
		cache.WithClock(manager.clock),
		cache.WithLogger(manager.logger.With(slog.String("cache", name))),
		cache.WithCommitHook(onCommit),
	}
	if manager.metrics != nil {
		opts = append(opts, cache.WithObserver(manager.metrics))
	}
	return opts
}

func (manager *Manager) newRealtimeGate(fetch cache.FetchFunc[RealtimeTripStatus]) *cache.Gate[RealtimeTripStatus] {
	return cache.New("realtime", manager.config.RealtimeTTL, fetch,
		manager.cacheOptions("realtime", manager.metrics.SetRealtimeTrips)...)
}

func (manager *Manager) newAlertsGate(fetch cache.FetchFunc[Alert]) *cache.Gate[Alert] {
	return cache.New("alerts", manager.config.AlertsTTL, fetch,
		manager.cacheOptions("alerts", manager.metrics.SetActiveAlerts)...)
}

// loadStatic reads both artifacts. When an artifact fails to load and prev
// holds a good copy, the good copy is kept.
func (manager *Manager) loadStatic(prev *StaticData) *StaticData {
	next := &StaticData{LoadedAt: manager.clock.Now()}

	start := time.Now()
	schedule, err := LoadScheduleIndex(manager.config.SchedulePath, manager.config)
	switch {
	case err == nil:
		next.Schedule = schedule
		next.Stops = NewStopIndex(schedule.Stops())
		manager.metrics.SetScheduleTrips(schedule.TripCount())
		logging.LogOperation(manager.logger, "schedule_index_loaded",
			slog.String("source", manager.config.SchedulePath),
			slog.Int("routes", schedule.RouteCount()),
			slog.Int("trips", schedule.TripCount()),
			slog.Int("stops", schedule.StopCount()),
			slog.Duration("duration", time.Since(start)))
		if n := schedule.MissingStopRefs(); n > 0 {
			manager.logger.Warn("schedule references unknown stops",
				slog.Int("stop_times", n))
		}
	case prev != nil && prev.Schedule != nil:
		logging.LogError(manager.logger, "Failed to reload schedule, keeping previous index", err,
			slog.String("source", manager.config.SchedulePath))
		next.Schedule, next.Stops = prev.Schedule, prev.Stops
	default:
		logging.LogError(manager.logger, "Failed to load schedule artifact", err,
			slog.String("source", manager.config.SchedulePath))
		next.ScheduleErr = err
	}

	geometry, err := LoadRouteGeometry(manager.config.GeometryPath, manager.config)
	switch {
	case err == nil:
		next.Geometry = geometry
		logging.LogOperation(manager.logger, "route_geometry_loaded",
			slog.String("source", manager.config.GeometryPath),
			slog.Int("shapes", geometry.ShapeCount()))
	case prev != nil && prev.Geometry != nil:
		logging.LogError(manager.logger, "Failed to reload geometry, keeping previous copy", err,
			slog.String("source", manager.config.GeometryPath))
		next.Geometry = prev.Geometry
	default:
		logging.LogError(manager.logger, "Failed to load geometry artifact", err,
			slog.String("source", manager.config.GeometryPath))
		next.GeometryErr = err
	}

	return next
}

// ReloadStatic re-reads both artifacts and swaps them in atomically. Readers
// holding the previous generation keep a consistent view. It returns an error
// if either artifact failed to load.
func (manager *Manager) ReloadStatic(ctx context.Context) error {
	manager.reloadMutex.Lock()
	defer manager.reloadMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	prev := manager.static.Load()
	next := manager.loadStatic(prev)
	if err := ctx.Err(); err != nil {
		return err
	}
	manager.static.Store(next)

	var errs []error
	if next.Schedule == prev.Schedule && prev.Schedule != nil || next.ScheduleErr != nil {
		errs = append(errs, errors.New("schedule artifact not reloaded"))
	}
	if next.Geometry == prev.Geometry && prev.Geometry != nil || next.GeometryErr != nil {
		errs = append(errs, errors.New("geometry artifact not reloaded"))
	}
	return errors.Join(errs...)
}

func (manager *Manager) staticData() *StaticData {
	if data := manager.static.Load(); data != nil {
		return data
	}
	return &StaticData{ScheduleErr: ErrScheduleNotLoaded, GeometryErr: ErrGeometryNotLoaded}
}

// Schedule returns the loaded schedule or an error wrapping ErrScheduleNotLoaded.
func (manager *Manager) Schedule() (*ScheduleIndex, error) {
	data := manager.staticData()
	if data.Schedule == nil {
		if data.ScheduleErr != nil && !errors.Is(data.ScheduleErr, ErrScheduleNotLoaded) {
			return nil, fmt.Errorf("%w: %w", ErrScheduleNotLoaded, data.ScheduleErr)
		}
		return nil, ErrScheduleNotLoaded
	}
	return data.Schedule, nil
}

// Geometry returns the loaded geometry or an error wrapping ErrGeometryNotLoaded.
func (manager *Manager) Geometry() (*RouteGeometry, error) {
	data := manager.staticData()
	if data.Geometry == nil {
		if data.GeometryErr != nil && !errors.Is(data.GeometryErr, ErrGeometryNotLoaded) {
			return nil, fmt.Errorf("%w: %w", ErrGeometryNotLoaded, data.GeometryErr)
		}
		return nil, ErrGeometryNotLoaded
	}
	return data.Geometry, nil
}

// StopIndex returns the spatial index of the loaded schedule's stops.
func (manager *Manager) StopIndex() (*StopIndex, error) {
	data := manager.staticData()
	if data.Stops == nil {
		return nil, ErrScheduleNotLoaded
	}
	return data.Stops, nil
}

// IsHealthy reports whether the schedule is loaded.
func (manager *Manager) IsHealthy() bool {
	return manager.staticData().Schedule != nil
}

// Location returns the time zone of the service calendar.
func (manager *Manager) Location() *time.Location { return manager.location }

// Now returns the current time in the service calendar's time zone.
func (manager *Manager) Now() time.Time {
	return manager.scheduleClock.Now().In(manager.location)
}

// ScheduleWindow runs the window query at the current local time.
func (manager *Manager) ScheduleWindow(before, after int) (ScheduleWindow, *ScheduleIndex, error) {
	idx, err := manager.Schedule()
	if err != nil {
		return ScheduleWindow{}, nil, err
	}
	return QueryScheduleWindow(idx, manager.Now(), before, after), idx, nil
}

// Realtime returns the realtime cache entry, refreshing it when stale.
func (manager *Manager) Realtime(ctx context.Context) cache.Entry[RealtimeTripStatus] {
	return manager.realtimeCache.ReadThrough(ctx)
}

// Alerts returns the alerts cache entry, refreshing it when stale.
func (manager *Manager) Alerts(ctx context.Context) cache.Entry[Alert] {
	return manager.alertsCache.ReadThrough(ctx)
}

// PeekRealtime returns the committed realtime entry without fetching.
func (manager *Manager) PeekRealtime() cache.Entry[RealtimeTripStatus] {
	return manager.realtimeCache.Snapshot()
}

// PeekAlerts returns the committed alerts entry without fetching.
func (manager *Manager) PeekAlerts() cache.Entry[Alert] {
	return manager.alertsCache.Snapshot()
}

func (manager *Manager) CacheStatuses() []cache.Status {
	return []cache.Status{manager.realtimeCache.Status(), manager.alertsCache.Status()}
}

func (manager *Manager) FeedStatuses() []FeedStatus {
	return manager.tracker.Snapshot()
}

// RealtimeFeeds returns the enabled realtime feeds.
func (manager *Manager) RealtimeFeeds() []RTFeedConfig {
	return manager.realtimeFeed.Feeds()
}

func (manager *Manager) StaticStatus() StaticStatus {
	data := manager.staticData()
	status := StaticStatus{LoadedAt: data.LoadedAt}
	if data.Schedule != nil {
		status.ScheduleLoaded = true
		status.Routes = data.Schedule.RouteCount()
		status.Trips = data.Schedule.TripCount()
		status.Stops = data.Schedule.StopCount()
		status.MissingStopRefs = data.Schedule.MissingStopRefs()
	} else if data.ScheduleErr != nil {
		status.ScheduleError = data.ScheduleErr.Error()
	}
	if data.Geometry != nil {
		status.GeometryLoaded = true
		status.Shapes = data.Geometry.ShapeCount()
		status.Bounds = data.Geometry.Bounds()
	} else if data.GeometryErr != nil {
		status.GeometryError = data.GeometryErr.Error()
	}
	return status
}

// Start launches the background refreshers when enabled.
func (manager *Manager) Start() {
	if !manager.config.BackgroundRefresh {
		return
	}
	manager.wg.Add(2)
	go manager.refreshPeriodically("realtime", manager.config.RealtimeTTL, manager.config.RealtimeTimeout, manager.realtimeCache.Refresh)
	go manager.refreshPeriodically("alerts", manager.config.AlertsTTL, manager.config.AlertsTimeout, manager.alertsCache.Refresh)
}

// refreshPeriodically keeps a cache warm so request paths rarely wait on an
// upstream. The first refresh runs immediately.
func (manager *Manager) refreshPeriodically(name string, interval, timeout time.Duration, refresh func(context.Context) error) {
	defer manager.wg.Done()

	logger := manager.logger.With(slog.String("component", "cache_refresher"), slog.String("cache", name))

	run := func() {
		// Leave headroom over the fetch timeout for decoding and commit.
		ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
		ctx = logging.WithLogger(ctx, logger)
		defer cancel()
		if err := refresh(ctx); err != nil {
			logger.Debug("background refresh did not commit", slog.String("error", err.Error()))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-manager.shutdownChan:
			logging.LogOperation(logger, "shutting_down_cache_refresher")
			return
		}
	}
}

// Shutdown stops background refreshers and waits for them to exit.
func (manager *Manager) Shutdown() {
	manager.shutdownOnce.Do(func() {
		close(manager.shutdownChan)
	})
	manager.wg.Wait()
}
