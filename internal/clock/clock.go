// Package clock provides time abstraction for testing and production use.
// Cache freshness and schedule windows are both computed from an injected
// Clock so tests can pin or advance time deterministically.
package clock

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Clock provides an abstraction for time operations.
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// NowUnix returns the current time as Unix seconds
	NowUnix() int64
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// NowUnix returns the current time as Unix seconds.
func (RealClock) NowUnix() int64 {
	return time.Now().Unix()
}

// MockClock implements Clock and provides a controllable, thread-safe time for tests.
type MockClock struct {
	currentTime time.Time
	mu          sync.Mutex
}

// NewMockClock creates a new MockClock set to the specified time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// NowUnix returns the mock clock's current time as Unix seconds.
func (m *MockClock) NowUnix() int64 {
	return m.Now().Unix()
}

// Set changes the mock clock's current time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the mock clock by the specified duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// EnvironmentClock pins "now" to a value read from an environment variable,
// which lets the schedule window be inspected at an arbitrary time of day.
type EnvironmentClock struct {
	envVar string
	pinned time.Time
}

// FromEnvironment reads envVar once. Values without a zone offset are
// interpreted in location. An unset variable yields a RealClock; a value
// that does not parse yields a RealClock and the parse error.
func FromEnvironment(envVar string, location *time.Location) (Clock, error) {
	if envVar == "" {
		return RealClock{}, nil
	}
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return RealClock{}, nil
	}
	t, err := parseTime(value, location)
	if err != nil {
		return RealClock{}, fmt.Errorf("%s: %w", envVar, err)
	}
	return &EnvironmentClock{envVar: envVar, pinned: t}, nil
}

// Now returns the pinned time.
func (e *EnvironmentClock) Now() time.Time {
	return e.pinned
}

// NowUnix returns the pinned time as Unix seconds.
func (e *EnvironmentClock) NowUnix() int64 {
	return e.pinned.Unix()
}

// Source returns the name of the variable the time was read from.
func (e *EnvironmentClock) Source() string {
	return e.envVar
}

func parseTime(s string, location *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	if location == nil {
		return time.Time{}, errors.New("timezone not configured")
	}

	for _, format := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(format, s, location); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time %q: expected RFC3339 or YYYY-MM-DD HH:MM:SS", s)
}
