package transit

import (
	"context"
	"fmt"
	"sort"

	"tidbyt.dev/transit/model"
)

// A vehicle on its way to a stop, as reported by a real-time feed.
// Times are seconds since midnight of the current service day.
type LiveTrip struct {
	Destination         string  `json:"destination"`
	DepartureFromOrigin int     `json:"departure_from_origin"`
	Expected            int     `json:"expected"`
	Age                 int     `json:"age"` // seconds, -1 if unknown
	VehicleType         string  `json:"vehicle_type"`
	Lat                 float64 `json:"lat"`
	Lon                 float64 `json:"lon"`
	Speed               float64 `json:"speed"`
}

// Source of live trips.
type LiveFeed interface {
	// Upcoming trips of a route at a stop, ordered by expected
	// arrival.
	NextForRoute(ctx context.Context, stop model.Stop, route model.Route) ([]LiveTrip, error)
}

type ReconciledPickup struct {
	PickupDetail
	Live             *LiveTrip `json:"live,omitempty"`
	ScheduledArrival int       `json:"scheduled_arrival"`
	ExpectedArrival  int       `json:"expected_arrival"`
	ArrivalDelta     int       `json:"arrival_delta"`
}

// Number of scheduled pickups and live trips seen for a route.
type RouteCoverage struct {
	Scheduled int `json:"scheduled"`
	Live      int `json:"live"`
}

type Reconciliation struct {
	Pickups  []ReconciledPickup       `json:"pickups"`
	Coverage map[string]RouteCoverage `json:"coverage"`
}

// Routes for which the number of live trips differs from the number
// of scheduled pickups, sorted. Pairing is positional, so pickups
// of these routes may have been matched with the wrong vehicle.
func (r *Reconciliation) Mismatched() []string {
	routes := []string{}
	for route, c := range r.Coverage {
		if c.Scheduled != c.Live {
			routes = append(routes, route)
		}
	}
	sort.Strings(routes)
	return routes
}

// Merges live trips into scheduled pickups at a stop.
//
// There is no key linking live trips to scheduled trips, so the k:th
// live trip of a route is assumed to be the k:th pickup of the same
// route in details. Pickups without a live counterpart are returned
// with a nil Live.
func Reconcile(ctx context.Context, feed LiveFeed, stop model.Stop, details []PickupDetail) (*Reconciliation, error) {
	r := &Reconciliation{
		Pickups:  make([]ReconciledPickup, 0, len(details)),
		Coverage: map[string]RouteCoverage{},
	}

	// Routes in order of appearance
	routes := []model.Route{}
	for _, d := range details {
		c, seen := r.Coverage[d.Route]
		if !seen {
			routes = append(routes, model.Route{ID: d.RouteID, Label: d.RouteLabel, Name: d.Route})
		}
		c.Scheduled++
		r.Coverage[d.Route] = c
	}

	live := map[string][]LiveTrip{}
	for _, route := range routes {
		trips, err := feed.NextForRoute(ctx, stop, route)
		if err != nil {
			return nil, fmt.Errorf("getting live trips for route %s: %w", route.Name, err)
		}
		live[route.Name] = trips

		c := r.Coverage[route.Name]
		c.Live = len(trips)
		r.Coverage[route.Name] = c
	}

	next := map[string]int{}
	for _, d := range details {
		rp := ReconciledPickup{
			PickupDetail:     d,
			ScheduledArrival: d.Arrival,
			ExpectedArrival:  d.Arrival,
		}

		k := next[d.Route]
		if k < len(live[d.Route]) {
			trip := live[d.Route][k]
			rp.Live = &trip
			rp.ExpectedArrival = trip.Expected
			rp.ArrivalDelta = d.Arrival - trip.Expected
		}
		next[d.Route] = k + 1

		r.Pickups = append(r.Pickups, rp)
	}

	return r, nil
}
