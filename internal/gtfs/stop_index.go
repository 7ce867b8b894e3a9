package gtfs

import (
	"sort"

	"github.com/tidwall/rtree"

	"subwaylive.org/internal/utils"
)

// NearbyStop is a stop with its distance from a query point.
type NearbyStop struct {
	Stop
	DistanceMeters float64
}

// StopIndex is a spatial index over stop coordinates.
type StopIndex struct {
	tree   rtree.RTreeG[string]
	stops  map[string]Stop
	bounds utils.CoordinateBounds
}

// NewStopIndex indexes stops by [lon, lat].
func NewStopIndex(stops map[string]Stop) *StopIndex {
	si := &StopIndex{stops: stops}
	first := true
	for id, s := range stops {
		p := [2]float64{s.Lon, s.Lat}
		si.tree.Insert(p, p, id)

		if first {
			si.bounds = utils.CoordinateBounds{MinLat: s.Lat, MaxLat: s.Lat, MinLon: s.Lon, MaxLon: s.Lon}
			first = false
			continue
		}
		si.bounds = si.bounds.Extend(s.Lat, s.Lon)
	}
	return si
}

func (si *StopIndex) Len() int { return si.tree.Len() }

// Nearby returns up to limit stops within radius meters of (lat, lon),
// closest first. A limit of zero or less means no limit.
func (si *StopIndex) Nearby(lat, lon, radius float64, limit int) []NearbyStop {
	results := []NearbyStop{}
	if si.tree.Len() == 0 {
		return results
	}

	search := utils.CalculateBounds(lat, lon, radius)
	if utils.IsOutOfBounds(search, si.bounds) {
		return results
	}

	si.tree.Search(
		[2]float64{search.MinLon, search.MinLat},
		[2]float64{search.MaxLon, search.MaxLat},
		func(_, _ [2]float64, id string) bool {
			s := si.stops[id]
			d := utils.Distance(lat, lon, s.Lat, s.Lon)
			if d <= radius {
				results = append(results, NearbyStop{Stop: s, DistanceMeters: d})
			}
			return true
		},
	)

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceMeters != results[j].DistanceMeters {
			return results[i].DistanceMeters < results[j].DistanceMeters
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
