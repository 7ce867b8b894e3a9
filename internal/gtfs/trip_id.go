package gtfs

import "strings"

// ServiceID selects which static trips run on a given local calendar day.
type ServiceID string

const (
	ServiceWeekday  ServiceID = "Weekday"
	ServiceSaturday ServiceID = "Saturday"
	ServiceSunday   ServiceID = "Sunday"
)

// Valid reports whether s is one of the three supported service calendars.
func (s ServiceID) Valid() bool {
	switch s {
	case ServiceWeekday, ServiceSaturday, ServiceSunday:
		return true
	}
	return false
}

// NormalizeTripID maps a static trip identifier onto the realtime namespace by
// keeping its last two underscore-separated segments:
//
//	AFA25GEN-1093-Weekday-00_000650_1..S03R -> 000650_1..S03R
//
// Identifiers with fewer than two segments are returned unchanged. The
// function is idempotent.
func NormalizeTripID(rawID string) string {
	parts := strings.Split(rawID, "_")
	if len(parts) < 2 {
		return rawID
	}
	return parts[len(parts)-2] + "_" + parts[len(parts)-1]
}

// InferServiceID derives the service calendar from a raw static trip id such
// as AFA25GEN-1093-Weekday-00_000650_1..S03R. Ids without a recognizable
// calendar token run on weekdays.
func InferServiceID(rawTripID string) ServiceID {
	prefix, _, _ := strings.Cut(rawTripID, "_")
	for _, token := range strings.Split(prefix, "-") {
		if s := ServiceID(token); s.Valid() {
			return s
		}
	}
	return ServiceWeekday
}
