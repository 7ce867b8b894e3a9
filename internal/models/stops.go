package models

import "subwaylive.org/internal/gtfs"

type NearbyStopEntry struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Distance float64 `json:"distance"`
}

type NearbyStopsResponse struct {
	Lat    float64           `json:"lat"`
	Lon    float64           `json:"lon"`
	Radius float64           `json:"radius"`
	Stops  []NearbyStopEntry `json:"stops"`
}

func NewNearbyStopsResponse(lat, lon, radius float64, found []gtfs.NearbyStop) NearbyStopsResponse {
	entries := make([]NearbyStopEntry, 0, len(found))
	for _, ns := range found {
		entries = append(entries, NearbyStopEntry{
			ID:       ns.Stop.ID,
			Name:     ns.Stop.Name,
			Lat:      ns.Stop.Lat,
			Lon:      ns.Stop.Lon,
			Distance: ns.DistanceMeters,
		})
	}
	return NearbyStopsResponse{Lat: lat, Lon: lon, Radius: radius, Stops: entries}
}
