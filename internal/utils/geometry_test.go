package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBounds(t *testing.T) {
	// Times Sq-42 St
	lat, lon := 40.755477, -73.987691

	bounds := CalculateBounds(lat, lon, 500)

	assert.InDelta(t, 0.00899, bounds.MaxLat-bounds.MinLat, 0.0001)
	assert.InDelta(t, 0.01187, bounds.MaxLon-bounds.MinLon, 0.0002)
	assert.InDelta(t, lat, (bounds.MaxLat+bounds.MinLat)/2, 1e-9)
	assert.InDelta(t, lon, (bounds.MaxLon+bounds.MinLon)/2, 1e-9)
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lon1      float64
		lat2      float64
		lon2      float64
		expected  float64
		tolerance float64
	}{
		{
			name: "same point",
			lat1: 40.7128, lon1: -74.0060,
			lat2: 40.7128, lon2: -74.0060,
			expected:  0,
			tolerance: 0.001,
		},
		{
			name: "Times Sq to Grand Central (short path)",
			lat1: 40.755477, lon1: -73.987691,
			lat2: 40.751776, lon2: -73.976848,
			expected:  1002,
			tolerance: 15,
		},
		{
			name: "Coney Island to Van Cortlandt Park (long path)",
			lat1: 40.577422, lon1: -73.981233,
			lat2: 40.889248, lon2: -73.898583,
			expected:  35366,
			tolerance: 300,
		},
		{
			name: "New York to Los Angeles",
			lat1: 40.7128, lon1: -74.0060,
			lat2: 34.0522, lon2: -118.2437,
			expected:  3935746,
			tolerance: 1000,
		},
		{
			name: "quarter meridian",
			lat1: 90, lon1: 0,
			lat2: 0, lon2: 0,
			expected:  10007543,
			tolerance: 10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, got, tt.tolerance)
		})
	}
}

func TestDistance_Symmetry(t *testing.T) {
	a := Distance(40.68, -73.97, 40.75, -73.99)
	b := Distance(40.75, -73.99, 40.68, -73.97)
	assert.InDelta(t, a, b, 1e-6)
}

func TestDistance_FastPathAgreesWithExact(t *testing.T) {
	// Just under the 0.2 degree cutoff uses the approximation; just over uses
	// the exact formula. The two must agree closely at the seam.
	approx := Distance(40.70, -73.90, 40.70+0.1999, -73.90)
	exact := Distance(40.70, -73.90, 40.70+0.2001, -73.90)
	assert.InDelta(t, approx, exact, 50)
}

func TestCoordinateBounds_Extend(t *testing.T) {
	b := CoordinateBounds{MinLat: 40.7, MaxLat: 40.7, MinLon: -74.0, MaxLon: -74.0}

	b = b.Extend(40.8, -73.9)
	b = b.Extend(40.6, -74.1)

	assert.Equal(t, CoordinateBounds{MinLat: 40.6, MaxLat: 40.8, MinLon: -74.1, MaxLon: -73.9}, b)
}

func TestIsOutOfBounds(t *testing.T) {
	city := CoordinateBounds{MinLat: 40.5, MaxLat: 40.9, MinLon: -74.3, MaxLon: -73.7}

	tests := []struct {
		name  string
		inner CoordinateBounds
		want  bool
	}{
		{name: "inside", inner: CoordinateBounds{MinLat: 40.7, MaxLat: 40.71, MinLon: -74.0, MaxLon: -73.99}, want: false},
		{name: "overlapping edge", inner: CoordinateBounds{MinLat: 40.85, MaxLat: 40.95, MinLon: -74.0, MaxLon: -73.9}, want: false},
		{name: "north", inner: CoordinateBounds{MinLat: 41.0, MaxLat: 41.1, MinLon: -74.0, MaxLon: -73.9}, want: true},
		{name: "east", inner: CoordinateBounds{MinLat: 40.7, MaxLat: 40.8, MinLon: -73.6, MaxLon: -73.5}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOutOfBounds(tt.inner, city))
		})
	}
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(40.75, -73.98))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(91, 0))
	assert.False(t, ValidCoordinate(0, -181))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.Inf(1)))
}
