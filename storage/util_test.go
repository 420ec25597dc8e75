package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tidbyt.dev/transit/model"
)

func TestHaversineDistance(t *testing.T) {
	places := map[string][2]float64{
		"nyc":    {40.7, -74.1},
		"philly": {40.0, -75.2},
		"sf":     {37.8, -122.5},
		"la":     {34.0, -118.5},
		"sto":    {59.3, 17.9},
		"lon":    {51.5, -0.2},
		"rey":    {64.1, -21.9},
	}

	for _, tc := range []struct {
		a, b string
		km   float64
	}{
		{"nyc", "philly", 121.438585},
		{"nyc", "sf", 4127.311071},
		{"nyc", "lon", 5572.804939},
		{"philly", "rey", 4325.964058},
		{"sf", "la", 555.165790},
		{"la", "sto", 8891.306919},
		{"sto", "lon", 1426.989197},
		{"lon", "rey", 1882.845837},
	} {
		t.Run(tc.a+"-"+tc.b, func(t *testing.T) {
			a, b := places[tc.a], places[tc.b]
			assert.InDelta(t, tc.km, HaversineDistance(a[0], a[1], b[0], b[1]), 0.001)
			assert.InDelta(t, tc.km, HaversineDistance(b[0], b[1], a[0], a[1]), 0.001)
		})
	}

	assert.Equal(t, 0.0, HaversineDistance(45.4, -75.7, 45.4, -75.7))
}

func TestMetersTo(t *testing.T) {
	stop := model.Stop{Lat: 40.0, Lon: -75.2}
	assert.InDelta(t, 121438.585, MetersTo(stop, 40.7, -74.1), 1)
	assert.Equal(t, 0.0, MetersTo(stop, 40.0, -75.2))
}
