package gtfs

import "time"

// Default window sizes, in seconds, around the current local time.
const (
	DefaultWindowBefore = 600
	DefaultWindowAfter  = 1800
)

// ScheduleWindow is the set of trips active around a point in time.
type ScheduleWindow struct {
	Routes               map[string][]Trip
	ServiceID            ServiceID
	SecondsSinceMidnight int
	WindowStart          int
	WindowEnd            int
	TotalTripCount       int
}

// SecondsSinceMidnight returns the wall-clock offset of t from midnight in t's location.
func SecondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// ServiceIDForTime returns the service calendar for t's local weekday.
func ServiceIDForTime(t time.Time) ServiceID {
	switch t.Weekday() {
	case time.Saturday:
		return ServiceSaturday
	case time.Sunday:
		return ServiceSunday
	default:
		return ServiceWeekday
	}
}

// QueryScheduleWindow returns, for every route, the trips of now's service
// calendar whose [start, end] overlaps [now-before, now+after]. now must
// already be in the schedule's local time zone. Routes without a matching
// trip are omitted.
//
// Offsets are not wrapped at midnight: trips stored with offsets past 86400
// only match windows that also extend past 86400.
func QueryScheduleWindow(idx *ScheduleIndex, now time.Time, before, after int) ScheduleWindow {
	secs := SecondsSinceMidnight(now)
	window := ScheduleWindow{
		Routes:               make(map[string][]Trip),
		ServiceID:            ServiceIDForTime(now),
		SecondsSinceMidnight: secs,
		WindowStart:          secs - before,
		WindowEnd:            secs + after,
	}
	if idx == nil {
		return window
	}

	for _, routeID := range idx.routeIDs {
		var kept []Trip
		for _, trip := range idx.routes[routeID] {
			// Trips are ordered by start, so nothing later can overlap.
			if trip.Start() > window.WindowEnd {
				break
			}
			if trip.ServiceID != window.ServiceID || trip.End() < window.WindowStart {
				continue
			}
			kept = append(kept, trip)
		}
		if len(kept) > 0 {
			window.Routes[routeID] = kept
			window.TotalTripCount += len(kept)
		}
	}
	return window
}
