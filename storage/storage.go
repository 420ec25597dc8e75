package storage

import (
	"errors"

	"tidbyt.dev/transit/model"
)

var (
	// Returned when looking up a single named entity that doesn't
	// exist. Empty query results are never reported as errors.
	ErrNotFound = errors.New("not found")

	ErrNoTransaction     = errors.New("no open transaction")
	ErrTransactionActive = errors.New("transaction already open")
)

// Holds compiled schedules, one per feed version.
type Storage interface {
	// Gets a reader for the feed with the given ID.
	GetReader(feed string) (ScheduleReader, error)

	// Gets a writer for a fresh store for the feed with the given
	// ID. Any previously compiled data for the same feed is
	// discarded.
	GetWriter(feed string) (ScheduleWriter, error)
}

// Writes compiled schedule records for a single feed.
//
// Every table is written inside Begin() and Commit(). Rollback()
// discards everything written since Begin(). Write methods return
// the surrogate ID assigned by the store, except WritePickup(), as
// pickups tend to be numerous and are never referenced during
// compilation, allowing them to be batched.
type ScheduleWriter interface {
	Begin(kind model.EntityKind) error
	Commit() error
	Rollback() error

	WriteCalendar(cal *model.ServiceCalendar) (int64, error)
	WriteCalendarException(ex *model.CalendarException) (int64, error)
	WriteStop(stop *model.Stop) (int64, error)
	WriteRoute(route *model.Route) (int64, error)
	WriteTrip(trip *model.Trip) (int64, error)
	WritePickup(pickup *model.Pickup) error

	// Records the version stamp. Not part of any table
	// transaction.
	WriteVersion(version model.Version) error

	// Builds secondary indexes. Called once all tables are
	// written.
	CreateIndexes() error

	Close() error
}

type ScheduleReader interface {
	Version() (model.Version, error)

	// All calendars, ordered by ID.
	Calendars() ([]model.ServiceCalendar, error)
	Calendar(id int64) (model.ServiceCalendar, error)

	// Exceptions on the given date (YYYYMMDD), ordered by ID.
	CalendarExceptions(day string) ([]model.CalendarException, error)

	// All stops, ordered by ID.
	Stops() ([]model.Stop, error)
	StopByNumber(number int) (model.Stop, error)
	StopByLabel(label string) (model.Stop, error)

	// Stops with names containing fragment, case insensitive.
	StopsByName(fragment string) ([]model.Stop, error)

	Routes() ([]model.Route, error)
	Route(id int64) (model.Route, error)
	Trip(id int64) (model.Trip, error)

	// Pickups and associated data matching the filter, ordered
	// by arrival and then ID.
	PickupEvents(filter PickupFilter) ([]*PickupEvent, error)
}

// Inclusive integer range.
type Range struct {
	Min int
	Max int
}

func (r *Range) Contains(v int) bool {
	return r == nil || (r.Min <= v && v <= r.Max)
}

// Filter for PickupEvents(). Zero IDs and nil ranges match
// everything.
type PickupFilter struct {
	StopID   int64
	TripID   int64
	Arrival  *Range
	Sequence *Range
}

func (f PickupFilter) Matches(p *model.Pickup) bool {
	if f.StopID != 0 && p.StopID != f.StopID {
		return false
	}
	if f.TripID != 0 && p.TripID != f.TripID {
		return false
	}
	return f.Arrival.Contains(p.Arrival) && f.Sequence.Contains(p.Sequence)
}

// A pickup along with its trip, route and stop.
type PickupEvent struct {
	Pickup model.Pickup
	Trip   model.Trip
	Route  model.Route
	Stop   model.Stop
}
