package models

import "subwaylive.org/internal/gtfs"

// RealtimeResponse is the realtime cache as served to clients. Updated is
// the Unix time of the last successful refresh, 0 if there has been none.
type RealtimeResponse struct {
	Updated int64                     `json:"updated"`
	Trips   []gtfs.RealtimeTripStatus `json:"trips"`
}

func NewRealtimeResponse(updated int64, trips []gtfs.RealtimeTripStatus) RealtimeResponse {
	if trips == nil {
		trips = []gtfs.RealtimeTripStatus{}
	}
	return RealtimeResponse{Updated: updated, Trips: trips}
}
