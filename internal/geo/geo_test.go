package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	t.Run("zero on equal inputs", func(t *testing.T) {
		assert.Equal(t, 0.0, HaversineKm(50.062, 19.938, 50.062, 19.938))
	})

	t.Run("symmetric", func(t *testing.T) {
		a := HaversineKm(50.062, 19.938, 50.054, 19.936)
		b := HaversineKm(50.054, 19.936, 50.062, 19.938)
		assert.InDelta(t, a, b, 1e-12)
	})

	t.Run("known distance Krakow to Warsaw", func(t *testing.T) {
		// Main Market Square to Palace of Culture, roughly 252 km.
		d := HaversineKm(50.0617, 19.9373, 52.2319, 21.0067)
		assert.InDelta(t, 252.0, d, 3.0)
	})

	t.Run("short urban hop", func(t *testing.T) {
		d := HaversineKm(50.0619, 19.9368, 50.0647, 19.9450)
		assert.Greater(t, d, 0.5)
		assert.Less(t, d, 0.8)
	})
}

func TestMidpoint(t *testing.T) {
	lat, lon := Midpoint(50.0, 19.0, 50.2, 19.4)
	assert.InDelta(t, 50.1, lat, 1e-9)
	assert.InDelta(t, 19.2, lon, 1e-9)
}

func TestTravelTimeSeconds(t *testing.T) {
	tests := []struct {
		name       string
		distanceKm float64
		speedKmh   float64
		expected   float64
	}{
		{"one km walking", 1.0, 5.0, 720},
		{"one km cycling", 1.0, 20.0, 180},
		{"half km walking", 0.5, 5.0, 360},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, TravelTimeSeconds(tt.distanceKm, tt.speedKmh), 1e-9)
		})
	}
}
