package gtfs

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/twpayne/go-polyline"
)

// RouteInfo is route metadata from the geometry artifact.
type RouteInfo struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
	LongName  string `json:"long_name"`
	Color     string `json:"color"`
	TextColor string `json:"text_color"`
}

// RegionBounds is the center and span of all shape coordinates.
type RegionBounds struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	LatSpan float64 `json:"latSpan"`
	LonSpan float64 `json:"lonSpan"`
}

type rawGeometry struct {
	Routes map[string]RouteInfo `json:"routes"`
	Shapes struct {
		Features []shapeFeature `json:"features"`
	} `json:"shapes"`
}

type shapeFeature struct {
	Properties struct {
		ShapeID string `json:"shape_id"`
		RouteID string `json:"route_id"`
		Color   string `json:"color"`
	} `json:"properties"`
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
}

// RouteGeometry is the route/shape artifact. The raw bytes are served
// verbatim; per-route polylines are precomputed for the shapes endpoint.
type RouteGeometry struct {
	raw        []byte
	routes     map[string]RouteInfo
	polylines  map[string][]string
	shapeCount int
	bounds     *RegionBounds
}

// ParseRouteGeometry decodes the geometry artifact. Coordinates are GeoJSON
// [lon, lat] pairs; LineString and MultiLineString geometries are indexed and
// anything else is ignored.
func ParseRouteGeometry(data []byte) (*RouteGeometry, error) {
	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed geometry artifact: %w", err)
	}

	g := &RouteGeometry{
		raw:       data,
		routes:    raw.Routes,
		polylines: make(map[string][]string),
	}
	if g.routes == nil {
		g.routes = make(map[string]RouteInfo)
	}

	var lines [][][]float64
	for i, f := range raw.Shapes.Features {
		featureLines, err := decodeLines(f.Geometry.Type, f.Geometry.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%s): %w", i, f.Properties.ShapeID, err)
		}
		if len(featureLines) == 0 {
			continue
		}
		g.shapeCount++
		routeID := f.Properties.RouteID
		if _, ok := g.routes[routeID]; !ok && routeID != "" {
			g.routes[routeID] = RouteInfo{ID: routeID, Color: f.Properties.Color}
		}
		for _, line := range featureLines {
			g.polylines[routeID] = append(g.polylines[routeID], string(polyline.EncodeCoords(toLatLon(line))))
		}
		lines = append(lines, featureLines...)
	}

	g.bounds = ComputeRegionBounds(lines)
	return g, nil
}

// LoadRouteGeometry reads the geometry artifact from a local path or URL.
func LoadRouteGeometry(source string, config Config) (*RouteGeometry, error) {
	b, err := readArtifact(source, config)
	if err != nil {
		return nil, fmt.Errorf("error reading geometry artifact: %w", err)
	}
	return ParseRouteGeometry(b)
}

func decodeLines(geometryType string, coordinates json.RawMessage) ([][][]float64, error) {
	switch geometryType {
	case "LineString":
		var line [][]float64
		if err := json.Unmarshal(coordinates, &line); err != nil {
			return nil, err
		}
		return [][][]float64{line}, nil
	case "MultiLineString":
		var lines [][][]float64
		if err := json.Unmarshal(coordinates, &lines); err != nil {
			return nil, err
		}
		return lines, nil
	default:
		return nil, nil
	}
}

// toLatLon swaps GeoJSON [lon, lat] into the [lat, lon] order polylines use.
func toLatLon(line [][]float64) [][]float64 {
	out := make([][]float64, 0, len(line))
	for _, c := range line {
		if len(c) < 2 {
			continue
		}
		out = append(out, []float64{c[1], c[0]})
	}
	return out
}

// Raw returns the artifact bytes as loaded.
func (g *RouteGeometry) Raw() []byte { return g.raw }

func (g *RouteGeometry) Route(routeID string) (RouteInfo, bool) {
	r, ok := g.routes[routeID]
	return r, ok
}

// RouteIDs returns the ids of all routes with metadata or geometry, sorted.
func (g *RouteGeometry) RouteIDs() []string {
	ids := make([]string, 0, len(g.routes))
	for id := range g.routes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EncodedPolylines returns the Google-encoded polylines of a route's shapes.
func (g *RouteGeometry) EncodedPolylines(routeID string) []string {
	return g.polylines[routeID]
}

func (g *RouteGeometry) ShapeCount() int { return g.shapeCount }

// Bounds returns nil when the artifact has no coordinates.
func (g *RouteGeometry) Bounds() *RegionBounds { return g.bounds }

// ComputeRegionBounds calculates the geographic boundaries of a set of
// GeoJSON lines. Returns nil if there are no coordinates.
func ComputeRegionBounds(lines [][][]float64) *RegionBounds {
	var minLat, maxLat, minLon, maxLon float64
	first := true

	for _, line := range lines {
		for _, c := range line {
			if len(c) < 2 {
				continue
			}
			lon, lat := c[0], c[1]
			if first {
				minLat, maxLat = lat, lat
				minLon, maxLon = lon, lon
				first = false
				continue
			}

			if lat < minLat {
				minLat = lat
			}
			if lat > maxLat {
				maxLat = lat
			}
			if lon < minLon {
				minLon = lon
			}
			if lon > maxLon {
				maxLon = lon
			}
		}
	}

	if first {
		return nil
	}

	return &RegionBounds{
		Lat:     (minLat + maxLat) / 2,
		Lon:     (minLon + maxLon) / 2,
		LatSpan: maxLat - minLat,
		LonSpan: maxLon - minLon,
	}
}
