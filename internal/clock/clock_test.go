package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	result := c.Now()
	after := time.Now()

	assert.False(t, result.Before(before), "RealClock.Now() should not be before the call")
	assert.False(t, result.After(after), "RealClock.Now() should not be after the call")
}

func TestRealClock_NowUnix(t *testing.T) {
	c := RealClock{}
	before := time.Now().Unix()
	result := c.NowUnix()
	after := time.Now().Unix()

	assert.GreaterOrEqual(t, result, before)
	assert.LessOrEqual(t, result, after)
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	initial := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(initial)

	assert.Equal(t, initial, c.Now())
	assert.Equal(t, initial.Unix(), c.NowUnix())

	c.Advance(90 * time.Second)
	assert.Equal(t, initial.Add(90*time.Second), c.Now())

	c.Advance(-30 * time.Second)
	assert.Equal(t, initial.Add(60*time.Second), c.Now())

	later := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestMockClock_ConcurrentAccess(t *testing.T) {
	c := NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC), c.Now())
}

func TestFromEnvironment(t *testing.T) {
	nyc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name    string
		envVar  string
		value   string
		want    time.Time
		pinned  bool
		wantErr bool
	}{
		{
			name:   "RFC3339 value",
			envVar: "TEST_FAKE_NOW",
			value:  "2025-06-02T08:15:00-04:00",
			want:   time.Date(2025, 6, 2, 12, 15, 0, 0, time.UTC),
			pinned: true,
		},
		{
			name:   "local value uses configured location",
			envVar: "TEST_FAKE_NOW",
			value:  "2025-06-02 08:15:00",
			want:   time.Date(2025, 6, 2, 8, 15, 0, 0, nyc),
			pinned: true,
		},
		{
			name:   "T separator without offset",
			envVar: "TEST_FAKE_NOW",
			value:  " 2025-06-07T23:59:00 ",
			want:   time.Date(2025, 6, 7, 23, 59, 0, 0, nyc),
			pinned: true,
		},
		{name: "unset variable uses system time", envVar: "TEST_FAKE_NOW"},
		{name: "no variable configured uses system time"},
		{name: "garbage uses system time", envVar: "TEST_FAKE_NOW", value: "yesterday-ish", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FAKE_NOW", tt.value)

			c, err := FromEnvironment(tt.envVar, nyc)
			if tt.wantErr {
				assert.ErrorContains(t, err, "TEST_FAKE_NOW")
			} else {
				assert.NoError(t, err)
			}

			if !tt.pinned {
				assert.Equal(t, RealClock{}, c)
				return
			}
			ec, ok := c.(*EnvironmentClock)
			require.True(t, ok, "expected *EnvironmentClock, got %T", c)
			assert.True(t, tt.want.Equal(ec.Now()), "got %s", ec.Now())
			assert.Equal(t, tt.want.Unix(), ec.NowUnix())
			assert.Equal(t, "TEST_FAKE_NOW", ec.Source())
		})
	}
}

func TestEnvironmentClock_ReadsVariableOnce(t *testing.T) {
	t.Setenv("TEST_FAKE_NOW", "2025-06-02T08:15:00-04:00")
	c, err := FromEnvironment("TEST_FAKE_NOW", time.UTC)
	require.NoError(t, err)

	t.Setenv("TEST_FAKE_NOW", "")
	assert.Equal(t, time.Date(2025, 6, 2, 12, 15, 0, 0, time.UTC).Unix(), c.NowUnix())
}

func TestParseTime_LocalValueWithoutLocation(t *testing.T) {
	_, err := parseTime("2025-06-02 08:15:00", nil)
	assert.Error(t, err)
}
