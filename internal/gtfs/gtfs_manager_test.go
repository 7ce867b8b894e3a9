package gtfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"subwaylive.org/internal/appconf"
	"subwaylive.org/internal/clock"
)

type managerFixture struct {
	manager      *Manager
	clock        *clock.MockClock
	schedulePath string
	geometryPath string
}

func writeArtifacts(t *testing.T, schedule, geometry string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	schedulePath := filepath.Join(dir, "schedule.json")
	geometryPath := filepath.Join(dir, "routes.json")
	if schedule != "" {
		require.NoError(t, os.WriteFile(schedulePath, []byte(schedule), 0o600))
	}
	if geometry != "" {
		require.NoError(t, os.WriteFile(geometryPath, []byte(geometry), 0o600))
	}
	return schedulePath, geometryPath
}

func newManagerFixture(t *testing.T, schedule, geometry string) managerFixture {
	t.Helper()
	schedulePath, geometryPath := writeArtifacts(t, schedule, geometry)
	loc := nyc(t)
	// Monday 08:00 local.
	mockClock := clock.NewMockClock(time.Date(2025, 6, 2, 8, 0, 0, 0, loc))

	manager, err := InitGTFSManager(Config{
		SchedulePath: schedulePath,
		GeometryPath: geometryPath,
		RTFeeds:      []RTFeedConfig{},
		Env:          appconf.Test,
	}, ManagerOptions{Clock: mockClock, Location: loc})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	return managerFixture{
		manager:      manager,
		clock:        mockClock,
		schedulePath: schedulePath,
		geometryPath: geometryPath,
	}
}

func TestInitGTFSManager_LoadsArtifacts(t *testing.T) {
	f := newManagerFixture(t, testScheduleJSON, testGeometryJSON)

	assert.True(t, f.manager.IsHealthy())

	schedule, err := f.manager.Schedule()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "L"}, schedule.RouteIDs())

	geometry, err := f.manager.Geometry()
	require.NoError(t, err)
	assert.NotEmpty(t, geometry.Raw())

	stops, err := f.manager.StopIndex()
	require.NoError(t, err)
	assert.Equal(t, 6, stops.Len())

	status := f.manager.StaticStatus()
	assert.True(t, status.ScheduleLoaded)
	assert.True(t, status.GeometryLoaded)
	assert.Equal(t, 2, status.Routes)
	assert.Equal(t, 4, status.Trips)
	assert.Empty(t, status.ScheduleError)
}

func TestInitGTFSManager_MissingArtifacts(t *testing.T) {
	f := newManagerFixture(t, "", "")

	assert.False(t, f.manager.IsHealthy())

	_, err := f.manager.Schedule()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScheduleNotLoaded)

	_, err = f.manager.Geometry()
	assert.ErrorIs(t, err, ErrGeometryNotLoaded)

	_, _, err = f.manager.ScheduleWindow(DefaultWindowBefore, DefaultWindowAfter)
	assert.ErrorIs(t, err, ErrScheduleNotLoaded)

	status := f.manager.StaticStatus()
	assert.False(t, status.ScheduleLoaded)
	assert.NotEmpty(t, status.ScheduleError)
	assert.NotEmpty(t, status.GeometryError)
}

func TestInitGTFSManager_InvalidSchedule(t *testing.T) {
	f := newManagerFixture(t, `{"routes": {"A": [{"stops": []}]}}`, testGeometryJSON)

	assert.False(t, f.manager.IsHealthy())
	_, err := f.manager.Schedule()
	assert.ErrorIs(t, err, ErrScheduleNotLoaded)

	// Geometry loads independently of the schedule.
	_, err = f.manager.Geometry()
	assert.NoError(t, err)
}

func TestManager_ScheduleWindow(t *testing.T) {
	f := newManagerFixture(t, testScheduleJSON, testGeometryJSON)

	window, _, err := f.manager.ScheduleWindow(DefaultWindowBefore, DefaultWindowAfter)
	require.NoError(t, err)

	assert.Equal(t, ServiceWeekday, window.ServiceID)
	assert.Equal(t, 28800, window.SecondsSinceMidnight)
	require.Contains(t, window.Routes, "A")
	assert.Len(t, window.Routes["A"], 1)
	assert.NotContains(t, window.Routes, "L")

	// Saturday morning picks up the Saturday trip instead.
	f.clock.Set(time.Date(2025, 6, 7, 8, 0, 0, 0, f.manager.Location()))
	window, _, err = f.manager.ScheduleWindow(DefaultWindowBefore, DefaultWindowAfter)
	require.NoError(t, err)
	assert.Equal(t, ServiceSaturday, window.ServiceID)
	require.Len(t, window.Routes["A"], 1)
	assert.Equal(t, ServiceSaturday, window.Routes["A"][0].ServiceID)
}

func TestManager_ReloadStatic(t *testing.T) {
	f := newManagerFixture(t, testScheduleJSON, testGeometryJSON)

	before, err := f.manager.Schedule()
	require.NoError(t, err)

	t.Run("replaces the index on success", func(t *testing.T) {
		updated := `{"routes": {"G": [{"tripId": "G-Weekday-00_1_G..N", "stops": [{"id": "G22N", "time": 100}]}]},
		  "stops": {"G22N": [40.746554, -73.943832, "Court Sq"]}}`
		require.NoError(t, os.WriteFile(f.schedulePath, []byte(updated), 0o600))

		require.NoError(t, f.manager.ReloadStatic(context.Background()))

		after, err := f.manager.Schedule()
		require.NoError(t, err)
		assert.NotSame(t, before, after)
		assert.Equal(t, []string{"G"}, after.RouteIDs())
	})

	t.Run("keeps the previous index on failure", func(t *testing.T) {
		current, err := f.manager.Schedule()
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(f.schedulePath, []byte("{not json"), 0o600))
		err = f.manager.ReloadStatic(context.Background())
		assert.Error(t, err)

		kept, err := f.manager.Schedule()
		require.NoError(t, err)
		assert.Same(t, current, kept)
		assert.True(t, f.manager.IsHealthy())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, f.manager.ReloadStatic(ctx), context.Canceled)
	})
}

func TestManager_RealtimeReadThrough(t *testing.T) {
	f := newManagerFixture(t, testScheduleJSON, testGeometryJSON)

	var calls atomic.Int32
	f.manager.MockRealtimeFetch(func(context.Context) ([]RealtimeTripStatus, error) {
		calls.Add(1)
		return []RealtimeTripStatus{{TripID: "000650_A..S", RouteID: "A", StopID: "A09S", Status: StatusInTransitTo, Time: 1}}, nil
	})

	entry := f.manager.Realtime(context.Background())
	require.True(t, entry.Populated)
	assert.Len(t, entry.Payload, 1)
	assert.Equal(t, f.clock.Now().Unix(), entry.UpdatedUnix())

	f.clock.Advance(10 * time.Second)
	_ = f.manager.Realtime(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	f.clock.Advance(DefaultRealtimeTTL + time.Second)
	_ = f.manager.Realtime(context.Background())
	assert.Equal(t, int32(2), calls.Load())

	assert.Equal(t, entry.Payload, f.manager.PeekRealtime().Payload)
}

func TestManager_PinnedScheduleClockDoesNotFreezeCaches(t *testing.T) {
	schedulePath, geometryPath := writeArtifacts(t, testScheduleJSON, testGeometryJSON)
	loc := nyc(t)
	pinned := clock.NewMockClock(time.Date(2025, 6, 7, 8, 0, 0, 0, loc))
	wall := clock.NewMockClock(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))

	manager, err := InitGTFSManager(Config{
		SchedulePath: schedulePath,
		GeometryPath: geometryPath,
		RTFeeds:      []RTFeedConfig{},
		Env:          appconf.Test,
	}, ManagerOptions{Clock: wall, ScheduleClock: pinned, Location: loc})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	var calls atomic.Int32
	manager.MockRealtimeFetch(func(context.Context) ([]RealtimeTripStatus, error) {
		calls.Add(1)
		return []RealtimeTripStatus{{TripID: "000650_A..S", RouteID: "A", StopID: "A09S", Status: StatusStoppedAt, Time: 1}}, nil
	})

	entry := manager.Realtime(context.Background())
	assert.Equal(t, wall.Now().Unix(), entry.UpdatedUnix(), "cache stamps come from the wall clock")

	window, _, err := manager.ScheduleWindow(600, 1800)
	require.NoError(t, err)
	assert.Equal(t, ServiceSaturday, window.ServiceID, "the window follows the pinned clock")

	wall.Advance(DefaultRealtimeTTL + time.Second)
	_ = manager.Realtime(context.Background())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, pinned.Now().Unix(), manager.Now().Unix())
}

func TestManager_AlertsKeepLastGoodOnFailure(t *testing.T) {
	f := newManagerFixture(t, testScheduleJSON, testGeometryJSON)

	fail := atomic.Bool{}
	f.manager.MockAlertsFetch(func(context.Context) ([]Alert, error) {
		if fail.Load() {
			return nil, errors.New("upstream down")
		}
		return []Alert{{ID: "a1", Header: "Delays", Routes: []string{"A"}}}, nil
	})

	first := f.manager.Alerts(context.Background())
	require.Len(t, first.Payload, 1)

	fail.Store(true)
	f.clock.Advance(DefaultAlertsTTL + time.Second)
	second := f.manager.Alerts(context.Background())
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, first.LastUpdated, second.LastUpdated)

	statuses := f.manager.CacheStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "realtime", statuses[0].Name)
	assert.Equal(t, "alerts", statuses[1].Name)
	assert.True(t, statuses[1].Populated)
	assert.True(t, statuses[1].Stale)
}

func TestManager_FeedStatuses(t *testing.T) {
	f := newManagerFixture(t, testScheduleJSON, testGeometryJSON)

	f.manager.MockRecordFeed("ACE", f.clock.Now(), 12, nil)
	f.manager.MockRecordFeed("G", f.clock.Now(), 0, errors.New("503"))

	statuses := f.manager.FeedStatuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "ACE", statuses[0].FeedID)
	assert.Equal(t, 12, statuses[0].EntityCount)
	assert.Equal(t, "G", statuses[1].FeedID)
	assert.Equal(t, 1, statuses[1].ConsecutiveFailures)
}

func TestManager_BackgroundRefresh(t *testing.T) {
	schedulePath, geometryPath := writeArtifacts(t, testScheduleJSON, testGeometryJSON)
	manager, err := InitGTFSManager(Config{
		SchedulePath:      schedulePath,
		GeometryPath:      geometryPath,
		RTFeeds:           []RTFeedConfig{},
		BackgroundRefresh: true,
		Env:               appconf.Test,
	}, ManagerOptions{})
	require.NoError(t, err)

	refreshed := make(chan struct{}, 1)
	manager.MockRealtimeTrips(RealtimeTripStatus{TripID: "t1", RouteID: "L"})
	manager.MockAlertsFetch(func(context.Context) ([]Alert, error) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
		return []Alert{{ID: "x"}}, nil
	})

	manager.Start()
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh did not run")
	}

	done := make(chan struct{})
	go func() {
		manager.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	assert.Eventually(t, func() bool { return manager.PeekRealtime().Populated }, time.Second, 10*time.Millisecond)
	// Shutdown is idempotent.
	manager.Shutdown()
}
