package transit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/model"
)

type fakeFeed struct {
	trips map[string][]transit.LiveTrip
	err   error
	calls []string
}

func (f *fakeFeed) NextForRoute(ctx context.Context, stop model.Stop, route model.Route) ([]transit.LiveTrip, error) {
	f.calls = append(f.calls, route.Label)
	if f.err != nil {
		return nil, f.err
	}
	return f.trips[route.Label], nil
}

func TestReconcile(t *testing.T) {
	stop := model.Stop{ID: 1, Label: "AA010", Number: 3000, Name: "RIDEAU CENTRE"}

	details := []transit.PickupDetail{
		{PickupID: 1, RouteID: 1, RouteLabel: "95-124", Route: "95", Arrival: 28800},
		{PickupID: 2, RouteID: 2, RouteLabel: "96-124", Route: "96", Arrival: 28920},
		{PickupID: 3, RouteID: 1, RouteLabel: "95-124", Route: "95", Arrival: 30600},
		{PickupID: 4, RouteID: 1, RouteLabel: "95-124", Route: "95", Arrival: 32400},
	}

	feed := &fakeFeed{
		trips: map[string][]transit.LiveTrip{
			"95-124": {
				{Destination: "Orleans", Expected: 28860, Age: 15, Lat: 45.42, Lon: -75.69, Speed: 8.5},
				{Destination: "Orleans", Expected: 30500, Age: 40},
			},
			"96-124": {
				{Destination: "Hurdman", Expected: 28920, Age: -1},
			},
		},
	}

	r, err := transit.Reconcile(context.Background(), feed, stop, details)
	require.NoError(t, err)

	// One call per route, in order of appearance
	assert.Equal(t, []string{"95-124", "96-124"}, feed.calls)

	require.Equal(t, 4, len(r.Pickups))

	p := r.Pickups[0]
	require.NotNil(t, p.Live)
	assert.Equal(t, int64(1), p.PickupID)
	assert.Equal(t, 28800, p.ScheduledArrival)
	assert.Equal(t, 28860, p.ExpectedArrival)
	assert.Equal(t, -60, p.ArrivalDelta)
	assert.Equal(t, 8.5, p.Live.Speed)

	p = r.Pickups[1]
	require.NotNil(t, p.Live)
	assert.Equal(t, "Hurdman", p.Live.Destination)
	assert.Equal(t, 0, p.ArrivalDelta)

	p = r.Pickups[2]
	require.NotNil(t, p.Live)
	assert.Equal(t, 30500, p.ExpectedArrival)
	assert.Equal(t, 100, p.ArrivalDelta)

	// Third pickup of 95 has no live counterpart
	p = r.Pickups[3]
	assert.Nil(t, p.Live)
	assert.Equal(t, 32400, p.ScheduledArrival)
	assert.Equal(t, 32400, p.ExpectedArrival)
	assert.Equal(t, 0, p.ArrivalDelta)

	assert.Equal(t, map[string]transit.RouteCoverage{
		"95": {Scheduled: 3, Live: 2},
		"96": {Scheduled: 1, Live: 1},
	}, r.Coverage)
	assert.Equal(t, []string{"95"}, r.Mismatched())
}

func TestReconcileNoRoutes(t *testing.T) {
	feed := &fakeFeed{}

	r, err := transit.Reconcile(context.Background(), feed, model.Stop{}, []transit.PickupDetail{})
	require.NoError(t, err)
	assert.Equal(t, 0, len(r.Pickups))
	assert.Equal(t, 0, len(feed.calls))
	assert.Equal(t, []string{}, r.Mismatched())
}

func TestReconcileNoLiveData(t *testing.T) {
	details := []transit.PickupDetail{
		{PickupID: 1, RouteLabel: "95-124", Route: "95", Arrival: 28800},
	}

	r, err := transit.Reconcile(context.Background(), &fakeFeed{}, model.Stop{}, details)
	require.NoError(t, err)
	require.Equal(t, 1, len(r.Pickups))
	assert.Nil(t, r.Pickups[0].Live)
	assert.Equal(t, details[0], r.Pickups[0].PickupDetail)
	assert.Equal(t, []string{"95"}, r.Mismatched())
}

func TestReconcileFeedError(t *testing.T) {
	feed := &fakeFeed{err: errors.New("boom")}

	_, err := transit.Reconcile(context.Background(), feed, model.Stop{}, []transit.PickupDetail{
		{PickupID: 1, RouteLabel: "95-124", Route: "95", Arrival: 28800},
	})
	assert.Error(t, err)
}
