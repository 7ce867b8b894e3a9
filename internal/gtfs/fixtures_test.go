package gtfs

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

// Helpers for building gtfs-realtime feeds. Zero Arrival/Departure means the
// event is absent from the update.
type fixtureStopUpdate struct {
	StopID    string
	Arrival   int64
	Departure int64
}

type fixtureTrip struct {
	TripID  string
	RouteID string
	Updates []fixtureStopUpdate
}

type fixtureAlert struct {
	ID           string
	Headers      []string
	Descriptions []string
	Routes       []string
}

func fixtureHeader() *gtfsrt.FeedHeader {
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	return &gtfsrt.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      &incrementality,
		Timestamp:           proto.Uint64(uint64(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC).Unix())),
	}
}

func encodeTripFeed(t *testing.T, trips []fixtureTrip) []byte {
	t.Helper()

	entities := make([]*gtfsrt.FeedEntity, 0, len(trips))
	for _, trip := range trips {
		updates := make([]*gtfsrt.TripUpdate_StopTimeUpdate, 0, len(trip.Updates))
		for _, u := range trip.Updates {
			stu := &gtfsrt.TripUpdate_StopTimeUpdate{StopId: proto.String(u.StopID)}
			if u.Arrival != 0 {
				stu.Arrival = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(u.Arrival)}
			}
			if u.Departure != 0 {
				stu.Departure = &gtfsrt.TripUpdate_StopTimeEvent{Time: proto.Int64(u.Departure)}
			}
			updates = append(updates, stu)
		}
		entities = append(entities, &gtfsrt.FeedEntity{
			Id: proto.String(trip.TripID),
			TripUpdate: &gtfsrt.TripUpdate{
				Trip: &gtfsrt.TripDescriptor{
					TripId:  proto.String(trip.TripID),
					RouteId: proto.String(trip.RouteID),
				},
				StopTimeUpdate: updates,
			},
		})
	}

	data, err := proto.Marshal(&gtfsrt.FeedMessage{Header: fixtureHeader(), Entity: entities})
	require.NoError(t, err)
	return data
}

func translated(texts []string) *gtfsrt.TranslatedString {
	if len(texts) == 0 {
		return nil
	}
	ts := &gtfsrt.TranslatedString{}
	for _, text := range texts {
		ts.Translation = append(ts.Translation, &gtfsrt.TranslatedString_Translation{
			Text:     proto.String(text),
			Language: proto.String("en"),
		})
	}
	return ts
}

func encodeAlertFeed(t *testing.T, alerts []fixtureAlert) []byte {
	t.Helper()

	entities := make([]*gtfsrt.FeedEntity, 0, len(alerts))
	for _, a := range alerts {
		informed := make([]*gtfsrt.EntitySelector, 0, len(a.Routes))
		for _, r := range a.Routes {
			informed = append(informed, &gtfsrt.EntitySelector{RouteId: proto.String(r)})
		}
		entities = append(entities, &gtfsrt.FeedEntity{
			Id: proto.String(a.ID),
			Alert: &gtfsrt.Alert{
				InformedEntity:  informed,
				HeaderText:      translated(a.Headers),
				DescriptionText: translated(a.Descriptions),
			},
		})
	}

	data, err := proto.Marshal(&gtfsrt.FeedMessage{Header: fixtureHeader(), Entity: entities})
	require.NoError(t, err)
	return data
}

// serveFeed starts a server answering every request with body.
func serveFeed(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

// serveStatus starts a server answering every request with status.
func serveStatus(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

// serveHang starts a server that never answers before the client gives up.
func serveHang(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type countingObserver struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{calls: map[string]int{}, errs: map[string]int{}}
}

func (o *countingObserver) ObserveFeedFetch(feedID string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[feedID]++
	if err != nil {
		o.errs[feedID]++
	}
}

const testScheduleJSON = `{
  "routes": {
    "A": [
      {"tripId": "AFA25GEN-1093-Weekday-00_000650_A..S", "dir": "1",
       "stops": [{"id": "A02S", "time": 29100}, {"id": "A09S", "time": 28800}]},
      {"tripId": "AFA25GEN-1093-Saturday-00_000650_A..S", "dir": "1",
       "stops": [{"id": "A02S", "time": 28800}, {"id": "A09S", "time": 29100}]},
      {"tripId": "AFA25GEN-1093-Weekday-00_000100_A..N", "direction": 0, "serviceId": "Weekday",
       "stops": [{"stopId": "A09N", "time": 6000}, {"stopId": "A02N", "time": 6600}]}
    ],
    "L": [
      {"tripId": "L0S1-L-2049-S01_041000_L..N", "dir": "0", "serviceId": "Sunday",
       "stops": [{"id": "L29N", "time": 86000}, {"id": "L01N", "time": 88400}]}
    ]
  },
  "stops": {
    "A02S": [40.868072, -73.919899, "Inwood-207 St"],
    "A09S": [40.840719, -73.939561, "168 St"],
    "A02N": [40.868072, -73.919899, "Inwood-207 St"],
    "A09N": [40.840719, -73.939561, "168 St"],
    "L01N": [40.739777, -74.002578, "8 Av"],
    "L29N": [40.650573, -73.899485]
  }
}`
