package gtfs

import (
	"context"
	"errors"
	"time"

	"subwaylive.org/internal/cache"
)

// MockSetStatic replaces the static artifacts. A nil schedule or geometry is
// reported as not loaded.
func (manager *Manager) MockSetStatic(schedule *ScheduleIndex, geometry *RouteGeometry) {
	data := &StaticData{
		Schedule: schedule,
		Geometry: geometry,
		LoadedAt: manager.clock.Now(),
	}
	if schedule != nil {
		data.Stops = NewStopIndex(schedule.Stops())
	} else {
		data.ScheduleErr = errors.New("schedule not configured")
	}
	if geometry == nil {
		data.GeometryErr = errors.New("geometry not configured")
	}
	manager.static.Store(data)
}

// MockRealtimeFetch swaps the realtime upstream for fetch and resets the cache.
func (manager *Manager) MockRealtimeFetch(fetch cache.FetchFunc[RealtimeTripStatus]) {
	manager.realtimeCache = manager.newRealtimeGate(fetch)
}

// MockAlertsFetch swaps the alerts upstream for fetch and resets the cache.
func (manager *Manager) MockAlertsFetch(fetch cache.FetchFunc[Alert]) {
	manager.alertsCache = manager.newAlertsGate(fetch)
}

// MockRealtimeTrips serves a fixed realtime payload.
func (manager *Manager) MockRealtimeTrips(trips ...RealtimeTripStatus) {
	manager.MockRealtimeFetch(func(context.Context) ([]RealtimeTripStatus, error) {
		return trips, nil
	})
}

// MockAlerts serves a fixed alerts payload.
func (manager *Manager) MockAlerts(alerts ...Alert) {
	manager.MockAlertsFetch(func(context.Context) ([]Alert, error) {
		return alerts, nil
	})
}

// MockRecordFeed records a feed attempt in the status tracker.
func (manager *Manager) MockRecordFeed(feedID string, at time.Time, count int, err error) {
	if err != nil {
		manager.tracker.RecordFailure(feedID, "", at, 0, err)
		return
	}
	manager.tracker.RecordSuccess(feedID, "", at, 0, count)
}
