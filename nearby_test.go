package transit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/testutil"
)

func TestNearby(t *testing.T) {
	for _, backend := range testutil.Backends() {
		t.Run(backend, func(t *testing.T) {
			reader := buildOttawa(t, backend)

			rideau, err := reader.StopByNumber(3000)
			require.NoError(t, err)

			labels := func(stops []transit.StopDistance) []string {
				result := []string{}
				for _, s := range stops {
					result = append(result, s.Stop.Label)
				}
				return result
			}

			stops, err := transit.Nearby(reader, rideau.Lat, rideau.Lon, 1000, rideau.ID)
			require.NoError(t, err)
			require.Equal(t, []string{"AA020"}, labels(stops))
			assert.InDelta(t, 553, stops[0].Meters, 2)

			stops, err = transit.Nearby(reader, rideau.Lat, rideau.Lon, 1500, rideau.ID)
			require.NoError(t, err)
			require.Equal(t, []string{"AA020", "AA030"}, labels(stops))
			assert.InDelta(t, 1289, stops[1].Meters, 2)

			// Without ignoring the origin, it's at distance 0
			stops, err = transit.Nearby(reader, rideau.Lat, rideau.Lon, 3000, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"AA010", "AA020", "AA030", "AA040"}, labels(stops))
			assert.Equal(t, 0, stops[0].Meters)

			stops, err = transit.Nearby(reader, 0, 0, 1000, 0)
			require.NoError(t, err)
			assert.Equal(t, 0, len(stops))
		})
	}
}

func TestClosest(t *testing.T) {
	for _, backend := range testutil.Backends() {
		t.Run(backend, func(t *testing.T) {
			reader := buildOttawa(t, backend)

			rideau, err := reader.StopByNumber(3000)
			require.NoError(t, err)

			closest, err := transit.Closest(reader, rideau.Lat, rideau.Lon, rideau.ID)
			require.NoError(t, err)
			require.NotNil(t, closest)
			assert.Equal(t, "AA020", closest.Stop.Label)
			assert.InDelta(t, 553, closest.Meters, 2)

			closest, err = transit.Closest(reader, 45.4126, -75.6641, 0)
			require.NoError(t, err)
			require.NotNil(t, closest)
			assert.Equal(t, "AA040", closest.Stop.Label)

			empty := testutil.BuildFeed(t, backend, map[string][]string{})
			closest, err = transit.Closest(empty, 45.4126, -75.6641, 0)
			require.NoError(t, err)
			assert.Nil(t, closest)
		})
	}
}
