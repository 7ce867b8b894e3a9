package gtfs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// ErrScheduleNotLoaded is returned when the static schedule is unavailable.
var ErrScheduleNotLoaded = errors.New("schedule not loaded")

// maxReportedViolations bounds the number of record errors joined into one load error.
const maxReportedViolations = 20

var recordValidator = validator.New()

// Stop is a station or platform. It is encoded as [lat, lon, name].
type Stop struct {
	ID   string  `json:"-" validate:"required"`
	Lat  float64 `validate:"gte=-90,lte=90"`
	Lon  float64 `validate:"gte=-180,lte=180"`
	Name string
}

func (s Stop) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Lat, s.Lon, s.Name})
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("stop must be an array [lat, lon, name]: %w", err)
	}
	if len(fields) < 2 {
		return fmt.Errorf("stop must have at least lat and lon, got %d fields", len(fields))
	}
	if err := json.Unmarshal(fields[0], &s.Lat); err != nil {
		return fmt.Errorf("stop latitude: %w", err)
	}
	if err := json.Unmarshal(fields[1], &s.Lon); err != nil {
		return fmt.Errorf("stop longitude: %w", err)
	}
	if len(fields) > 2 {
		if err := json.Unmarshal(fields[2], &s.Name); err != nil {
			return fmt.Errorf("stop name: %w", err)
		}
	}
	return nil
}

// StopTime is a scheduled stop on a trip. OffsetSeconds counts from local
// midnight of the service day and may exceed 86400.
type StopTime struct {
	StopID        string `json:"id" validate:"required"`
	OffsetSeconds int    `json:"time" validate:"gte=0"`
}

// Trip is one scheduled run. TripID is normalized into the realtime namespace.
type Trip struct {
	TripID      string     `json:"tripId" validate:"required"`
	RouteID     string     `json:"-" validate:"required"`
	DirectionID string     `json:"dir"`
	ServiceID   ServiceID  `json:"serviceId" validate:"required,oneof=Weekday Saturday Sunday"`
	StopTimes   []StopTime `json:"stops" validate:"min=1,dive"`
}

// Start returns the offset of the first stop.
func (t Trip) Start() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	return t.StopTimes[0].OffsetSeconds
}

// End returns the offset of the last stop.
func (t Trip) End() int {
	if len(t.StopTimes) == 0 {
		return 0
	}
	return t.StopTimes[len(t.StopTimes)-1].OffsetSeconds
}

// ScheduleIndex is the immutable per-route ordered trip structure built from
// the static schedule artifact. It is safe for concurrent reads.
type ScheduleIndex struct {
	routes          map[string][]Trip
	routeIDs        []string
	stops           map[string]Stop
	tripCount       int
	missingStopRefs int
}

// RouteIDs returns route ids in lexical order.
func (idx *ScheduleIndex) RouteIDs() []string { return idx.routeIDs }

// TripsForRoute returns the route's trips ordered by start offset.
func (idx *ScheduleIndex) TripsForRoute(routeID string) []Trip { return idx.routes[routeID] }

// Stops returns the stop map. Callers must not modify it.
func (idx *ScheduleIndex) Stops() map[string]Stop { return idx.stops }

func (idx *ScheduleIndex) Stop(stopID string) (Stop, bool) {
	s, ok := idx.stops[stopID]
	return s, ok
}

func (idx *ScheduleIndex) RouteCount() int { return len(idx.routeIDs) }
func (idx *ScheduleIndex) TripCount() int  { return idx.tripCount }
func (idx *ScheduleIndex) StopCount() int  { return len(idx.stops) }

// MissingStopRefs counts stop times whose stop id is absent from the stop map.
func (idx *ScheduleIndex) MissingStopRefs() int { return idx.missingStopRefs }

type rawSchedule struct {
	Routes map[string][]rawTrip `json:"routes"`
	Stops  map[string]Stop      `json:"stops"`
}

type rawTrip struct {
	TripID    string        `json:"tripId"`
	Direction flexString    `json:"direction"`
	Dir       flexString    `json:"dir"`
	ServiceID string        `json:"serviceId"`
	Stops     []rawStopTime `json:"stops"`
}

type rawStopTime struct {
	StopID string `json:"stopId"`
	ID     string `json:"id"`
	Time   *int   `json:"time"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// ParseScheduleIndex decodes and validates a schedule artifact:
//
//	{"routes": {routeId: [{tripId, dir, serviceId, stops: [{id, time}]}]},
//	 "stops": {stopId: [lat, lon, name]}}
//
// The legacy field names direction and stopId are also accepted. Trips
// without a serviceId take it from their raw id. Every invalid record is
// reported; any violation fails the load.
func ParseScheduleIndex(data []byte) (*ScheduleIndex, error) {
	var raw rawSchedule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed schedule artifact: %w", err)
	}
	if raw.Routes == nil {
		return nil, errors.New("malformed schedule artifact: missing routes")
	}

	var violations []error
	report := func(err error) {
		if len(violations) < maxReportedViolations {
			violations = append(violations, err)
		}
	}

	stops := make(map[string]Stop, len(raw.Stops))
	for id, stop := range raw.Stops {
		stop.ID = id
		if err := recordValidator.Struct(stop); err != nil {
			report(fmt.Errorf("stop %q: %w", id, describeValidation(err)))
			continue
		}
		stops[id] = stop
	}

	idx := &ScheduleIndex{
		routes: make(map[string][]Trip, len(raw.Routes)),
		stops:  stops,
	}

	for routeID, rawTrips := range raw.Routes {
		trips := make([]Trip, 0, len(rawTrips))
		for i, rt := range rawTrips {
			trip, err := buildTrip(routeID, rt)
			if err != nil {
				report(fmt.Errorf("route %q trip %d (%s): %w", routeID, i, rt.TripID, err))
				continue
			}
			for _, st := range trip.StopTimes {
				if _, ok := stops[st.StopID]; !ok {
					idx.missingStopRefs++
				}
			}
			trips = append(trips, trip)
		}

		sort.SliceStable(trips, func(a, b int) bool {
			return trips[a].Start() < trips[b].Start()
		})
		idx.routes[routeID] = trips
		idx.routeIDs = append(idx.routeIDs, routeID)
		idx.tripCount += len(trips)
	}

	if len(violations) > 0 {
		return nil, fmt.Errorf("invalid schedule artifact: %w", errors.Join(violations...))
	}

	slices.Sort(idx.routeIDs)
	return idx, nil
}

func buildTrip(routeID string, rt rawTrip) (Trip, error) {
	direction := string(rt.Dir)
	if direction == "" {
		direction = string(rt.Direction)
	}

	service := ServiceID(rt.ServiceID)
	if service == "" {
		service = InferServiceID(rt.TripID)
	}

	stopTimes := make([]StopTime, 0, len(rt.Stops))
	for j, s := range rt.Stops {
		if s.Time == nil {
			return Trip{}, fmt.Errorf("stop %d: missing time", j)
		}
		stopID := s.StopID
		if stopID == "" {
			stopID = s.ID
		}
		stopTimes = append(stopTimes, StopTime{StopID: stopID, OffsetSeconds: *s.Time})
	}
	sort.SliceStable(stopTimes, func(a, b int) bool {
		return stopTimes[a].OffsetSeconds < stopTimes[b].OffsetSeconds
	})

	trip := Trip{
		TripID:      NormalizeTripID(rt.TripID),
		RouteID:     routeID,
		DirectionID: direction,
		ServiceID:   service,
		StopTimes:   stopTimes,
	}
	if err := recordValidator.Struct(trip); err != nil {
		return Trip{}, describeValidation(err)
	}
	return trip, nil
}

// describeValidation flattens validator field errors into one readable error.
func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	var b bytes.Buffer
	for i, fe := range fieldErrs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Namespace())
		b.WriteString(" failed ")
		b.WriteString(fe.Tag())
		if fe.Param() != "" {
			b.WriteString("=")
			b.WriteString(fe.Param())
		}
		b.WriteString(" (value ")
		b.WriteString(strconv.Quote(fmt.Sprint(fe.Value())))
		b.WriteString(")")
	}
	return errors.New(b.String())
}

// LoadScheduleIndex reads the schedule artifact from a local path or URL and
// builds the index.
func LoadScheduleIndex(source string, config Config) (*ScheduleIndex, error) {
	b, err := readArtifact(source, config)
	if err != nil {
		return nil, fmt.Errorf("error reading schedule artifact: %w", err)
	}
	return ParseScheduleIndex(b)
}
