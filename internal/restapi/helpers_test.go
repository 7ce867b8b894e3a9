package restapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"subwaylive.org/internal/app"
	"subwaylive.org/internal/appconf"
	"subwaylive.org/internal/clock"
	"subwaylive.org/internal/gtfs"
	"subwaylive.org/internal/metrics"
)

const testScheduleJSON = `{
  "routes": {
    "A": [
      {"tripId": "AFA25GEN-1093-Weekday-00_000650_A..S", "dir": "1",
       "stops": [{"id": "A02S", "time": 28800}, {"id": "A09S", "time": 29400}]},
      {"tripId": "AFA25GEN-1093-Weekday-00_000100_A..N", "dir": "0",
       "stops": [{"id": "A09N", "time": 6000}, {"id": "A02N", "time": 6600}]}
    ],
    "L": [
      {"tripId": "L0S1-L-2049-Weekday-00_048500_L..N", "direction": 0,
       "stops": [{"stopId": "L29N", "time": 29000}, {"stopId": "L01N", "time": 31000}]}
    ]
  },
  "stops": {
    "A02S": [40.868072, -73.919899, "Inwood-207 St"],
    "A09S": [40.840719, -73.939561, "168 St"],
    "A02N": [40.868072, -73.919899, "Inwood-207 St"],
    "A09N": [40.840719, -73.939561, "168 St"],
    "L01N": [40.739777, -74.002578, "8 Av"],
    "L29N": [40.650573, -73.899485, "Canarsie-Rockaway Pkwy"]
  }
}`

const testGeometryJSON = `{
  "routes": {
    "L": {"id": "L", "short_name": "L", "long_name": "14 St-Canarsie Local", "color": "#A7A9AC", "text_color": "#000000"}
  },
  "shapes": {
    "type": "FeatureCollection",
    "features": [
      {"type": "Feature",
       "properties": {"shape_id": "L..N01R", "route_id": "L"},
       "geometry": {"type": "LineString", "coordinates": [[-73.899485, 40.650573], [-74.002578, 40.739777]]}}
    ]
  }
}`

type testAPIOptions struct {
	schedule string
	geometry string
	env      appconf.Environment
	rate     int
}

// createTestApi builds a RestAPI over real artifacts written to a temp dir,
// with no upstream feeds and the clock pinned to a Monday 08:00 in New York.
func createTestApi(t *testing.T) *RestAPI {
	t.Helper()
	return createTestApiWithOptions(t, testAPIOptions{
		schedule: testScheduleJSON,
		geometry: testGeometryJSON,
		env:      appconf.Test,
	})
}

func createTestApiWithOptions(t *testing.T, opts testAPIOptions) *RestAPI {
	t.Helper()

	dir := t.TempDir()
	schedulePath := filepath.Join(dir, "schedule.json")
	geometryPath := filepath.Join(dir, "routes.json")
	if opts.schedule != "" {
		require.NoError(t, os.WriteFile(schedulePath, []byte(opts.schedule), 0o600))
	}
	if opts.geometry != "" {
		require.NoError(t, os.WriteFile(geometryPath, []byte(opts.geometry), 0o600))
	}

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	mockClock := clock.NewMockClock(time.Date(2025, 6, 2, 8, 0, 0, 0, loc))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	gtfsConfig := gtfs.Config{
		SchedulePath: schedulePath,
		GeometryPath: geometryPath,
		RTFeeds:      []gtfs.RTFeedConfig{},
		Env:          opts.env,
	}
	manager, err := gtfs.InitGTFSManager(gtfsConfig, gtfs.ManagerOptions{
		Clock:    mockClock,
		Location: loc,
		Logger:   logger,
		Metrics:  m,
	})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	rate := opts.rate
	if rate == 0 {
		rate = 1000
	}

	application := &app.Application{
		Config: appconf.Config{
			Env:       opts.env,
			RateLimit: rate,
		}.WithDefaults(),
		GtfsConfig:  gtfsConfig,
		Logger:      logger,
		GtfsManager: manager,
		Clock:       mockClock,
		Metrics:     m,
	}

	api := NewRestAPI(application)
	t.Cleanup(api.Shutdown)
	return api
}

func serveTestApi(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(api.Handler(mux))
	t.Cleanup(server.Close)
	return server
}

// serveRequest runs one request through the full middleware chain.
func serveRequest(t *testing.T, api *RestAPI, path string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	api.Handler(mux).ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func serveRequestDirect(handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}
