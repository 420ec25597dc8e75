package transit

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/storage"
)

// Answers questions about scheduled pickups.
type Schedule struct {
	Reader    storage.ScheduleReader
	Calendars *Calendars

	clock clock.Clock
}

func NewSchedule(reader storage.ScheduleReader, calendars *Calendars, clk clock.Clock) *Schedule {
	return &Schedule{
		Reader:    reader,
		Calendars: calendars,
		clock:     clk,
	}
}

// Looks up a stop by its rider facing number. Returns
// storage.ErrNotFound if there is no such stop.
func (s *Schedule) Stop(number int) (model.Stop, error) {
	return s.Reader.StopByNumber(number)
}

func (s *Schedule) StopsByName(fragment string) ([]model.Stop, error) {
	return s.Reader.StopsByName(fragment)
}

// Returns pickups at a stop arriving between startSec and endSec
// (inclusive), ordered by arrival. Only trips whose calendar is
// active on date are included. A zero date means today.
//
// Unknown stops and empty windows give an empty result.
func (s *Schedule) PickupsInWindow(stopNumber int, startSec int, endSec int, date time.Time) ([]*storage.PickupEvent, error) {
	if startSec > endSec {
		return []*storage.PickupEvent{}, nil
	}

	stop, err := s.Reader.StopByNumber(stopNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return []*storage.PickupEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting stop %d: %w", stopNumber, err)
	}

	if date.IsZero() {
		date = s.clock.Today()
	}

	active, err := s.Calendars.ActiveIDs(date)
	if err != nil {
		return nil, fmt.Errorf("getting active calendars: %w", err)
	}

	events, err := s.Reader.PickupEvents(storage.PickupFilter{
		StopID:  stop.ID,
		Arrival: &storage.Range{Min: startSec, Max: endSec},
	})
	if err != nil {
		return nil, fmt.Errorf("getting pickups: %w", err)
	}

	result := []*storage.PickupEvent{}
	for _, e := range events {
		if active[e.Trip.ServicePeriodID] {
			result = append(result, e)
		}
	}

	return result, nil
}

type windowOptions struct {
	date   time.Time
	offset int
	now    bool
}

type WindowOption func(*windowOptions)

// Sets the reference date used to pick calendars.
func AtDate(date time.Time) WindowOption {
	return func(o *windowOptions) {
		o.date = date
	}
}

// Starts the window at a given number of seconds after midnight,
// rather than now.
func AtOffset(secs int) WindowOption {
	return func(o *windowOptions) {
		o.offset = secs
		o.now = false
	}
}

// Returns pickups at a stop arriving within the given number of
// minutes.
func (s *Schedule) ArrivingWithin(stopNumber int, minutes int, opts ...WindowOption) ([]*storage.PickupEvent, error) {
	o := &windowOptions{now: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.now {
		o.offset = s.clock.ElapsedSecondsSinceMidnight()
	}

	return s.PickupsInWindow(stopNumber, o.offset, o.offset+minutes*60, o.date)
}

// Returns pickups following p on the same trip, within rng sequence
// numbers. Sequence numbers can have gaps, so fewer than rng
// pickups may be returned.
func (s *Schedule) NextInSequence(p model.Pickup, rng int) ([]*storage.PickupEvent, error) {
	if rng <= 0 {
		return []*storage.PickupEvent{}, nil
	}

	events, err := s.Reader.PickupEvents(storage.PickupFilter{
		TripID:   p.TripID,
		Sequence: &storage.Range{Min: p.Sequence + 1, Max: p.Sequence + rng},
	})
	if err != nil {
		return nil, fmt.Errorf("getting pickups: %w", err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Pickup.Sequence < events[j].Pickup.Sequence
	})

	return events, nil
}

// Looks up the pickup with a given sequence number on a trip.
func (s *Schedule) PickupAt(tripID int64, sequence int) (*storage.PickupEvent, error) {
	events, err := s.Reader.PickupEvents(storage.PickupFilter{
		TripID:   tripID,
		Sequence: &storage.Range{Min: sequence, Max: sequence},
	})
	if err != nil {
		return nil, fmt.Errorf("getting pickups: %w", err)
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return events[0], nil
}

// Human readable rendition of a pickup.
type PickupDetail struct {
	PickupID   int64  `json:"pickup_id"`
	StopNumber int    `json:"stop_number"`
	StopName   string `json:"stop_name"`
	TripID     int64  `json:"trip_id"`
	RouteID    int64  `json:"-"`
	RouteLabel string `json:"-"`
	Route      string `json:"route"`
	Headsign   string `json:"headsign"`
	Arrival    int    `json:"arrival"`
	Departure  int    `json:"departure"`
	Sequence   int    `json:"sequence"`
}

func Describe(events []*storage.PickupEvent) []PickupDetail {
	details := make([]PickupDetail, 0, len(events))
	for _, e := range events {
		details = append(details, PickupDetail{
			PickupID:   e.Pickup.ID,
			StopNumber: e.Stop.Number,
			StopName:   e.Stop.Name,
			TripID:     e.Trip.ID,
			RouteID:    e.Route.ID,
			RouteLabel: e.Route.Label,
			Route:      e.Route.Name,
			Headsign:   e.Trip.Headsign,
			Arrival:    e.Pickup.Arrival,
			Departure:  e.Pickup.Departure,
			Sequence:   e.Pickup.Sequence,
		})
	}
	return details
}

// All arrivals of a route and headsign at a stop.
type RouteSummary struct {
	Route    string   `json:"route"`
	Headsign string   `json:"headsign"`
	Arrivals []int    `json:"arrivals"`
	Days     []string `json:"days"`
}

// Summarizes the routes serving a stop, one entry per route and
// headsign, in order of first arrival. If inService is set, only
// trips of the current calendar are included.
func (s *Schedule) RoutesAt(stopNumber int, inService bool) ([]RouteSummary, error) {
	stop, err := s.Reader.StopByNumber(stopNumber)
	if err != nil {
		return nil, err
	}

	var current *model.ServiceCalendar
	if inService {
		current, err = s.Calendars.Current()
		if err != nil {
			return nil, fmt.Errorf("getting current calendar: %w", err)
		}
		if current == nil {
			return []RouteSummary{}, nil
		}
	}

	events, err := s.Reader.PickupEvents(storage.PickupFilter{StopID: stop.ID})
	if err != nil {
		return nil, fmt.Errorf("getting pickups: %w", err)
	}

	type group struct {
		summary   RouteSummary
		calendars map[int64]bool
	}
	groups := map[string]*group{}
	order := []string{}

	for _, e := range events {
		if current != nil && e.Trip.ServicePeriodID != current.ID {
			continue
		}

		key := fmt.Sprintf("%s %s", e.Route.Name, e.Trip.Headsign)
		g, found := groups[key]
		if !found {
			g = &group{
				summary: RouteSummary{
					Route:    e.Route.Name,
					Headsign: e.Trip.Headsign,
					Arrivals: []int{},
				},
				calendars: map[int64]bool{},
			}
			groups[key] = g
			order = append(order, key)
		}
		g.summary.Arrivals = append(g.summary.Arrivals, e.Pickup.Arrival)
		g.calendars[e.Trip.ServicePeriodID] = true
	}

	summaries := make([]RouteSummary, 0, len(order))
	for _, key := range order {
		g := groups[key]

		var days model.Days
		for id := range g.calendars {
			cal, err := s.Calendars.Get(id)
			if err != nil {
				return nil, fmt.Errorf("getting calendar %d: %w", id, err)
			}
			days |= cal.Days
		}

		sort.Ints(g.summary.Arrivals)
		g.summary.Days = days.InService()
		summaries = append(summaries, g.summary)
	}

	return summaries, nil
}
