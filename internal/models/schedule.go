package models

import "subwaylive.org/internal/gtfs"

// ScheduleMeta describes the window a schedule response was computed for.
type ScheduleMeta struct {
	WindowStart          int            `json:"windowStart"`
	WindowEnd            int            `json:"windowEnd"`
	TotalTripCount       int            `json:"totalTripCount"`
	ServiceID            gtfs.ServiceID `json:"serviceId"`
	SecondsSinceMidnight int            `json:"secondsSinceMidnight"`
}

type ScheduleResponse struct {
	Routes map[string][]gtfs.Trip `json:"routes"`
	Stops  map[string]gtfs.Stop   `json:"stops"`
	Meta   ScheduleMeta           `json:"meta"`
}

// NewScheduleResponse pairs a window result with the stop table it refers to.
func NewScheduleResponse(window gtfs.ScheduleWindow, stops map[string]gtfs.Stop) ScheduleResponse {
	if stops == nil {
		stops = map[string]gtfs.Stop{}
	}
	return ScheduleResponse{
		Routes: window.Routes,
		Stops:  stops,
		Meta: ScheduleMeta{
			WindowStart:          window.WindowStart,
			WindowEnd:            window.WindowEnd,
			TotalTripCount:       window.TotalTripCount,
			ServiceID:            window.ServiceID,
			SecondsSinceMidnight: window.SecondsSinceMidnight,
		},
	}
}
