package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"tidbyt.dev/transit/model"
)

// Query helpers shared by the SQLite and Postgres readers. The two
// only differ in placeholder syntax, and Postgres scoping every
// table to a feed.

type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string {
	return "?"
}

func psqlPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const pickupEventColumns = `
    p.id,
    p.arrival,
    p.departure,
    p.sequence,
    p.trip_id,
    p.stop_id,
    t.id,
    t.label,
    t.headsign,
    t.block,
    t.route_id,
    t.service_period_id,
    r.id,
    r.label,
    r.name,
    r.route_type,
    s.id,
    s.label,
    s.number,
    s.name,
    s.lat,
    s.lon`

// Builds the PickupEvents() query. Conditions and params passed in
// are prepended, allowing callers to scope the query further.
func pickupEventQuery(
	filter PickupFilter,
	conditions []string,
	params []interface{},
	ph placeholderFunc,
) (string, []interface{}) {
	add := func(cond string, value interface{}) {
		params = append(params, value)
		conditions = append(conditions, fmt.Sprintf(cond, ph(len(params))))
	}

	if filter.StopID != 0 {
		add("p.stop_id = %s", filter.StopID)
	}
	if filter.TripID != 0 {
		add("p.trip_id = %s", filter.TripID)
	}
	if filter.Arrival != nil {
		add("p.arrival >= %s", filter.Arrival.Min)
		add("p.arrival <= %s", filter.Arrival.Max)
	}
	if filter.Sequence != nil {
		add("p.sequence >= %s", filter.Sequence.Min)
		add("p.sequence <= %s", filter.Sequence.Max)
	}

	query := `
SELECT` + pickupEventColumns + `
FROM pickups p
INNER JOIN trips t ON t.id = p.trip_id
INNER JOIN routes r ON r.id = t.route_id
INNER JOIN stops s ON s.id = p.stop_id`

	if len(conditions) > 0 {
		query += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\nORDER BY p.arrival ASC, p.id ASC"

	return query, params
}

func scanPickupEvents(rows *sql.Rows) ([]*PickupEvent, error) {
	defer rows.Close()

	events := []*PickupEvent{}
	for rows.Next() {
		e := &PickupEvent{}
		err := rows.Scan(
			&e.Pickup.ID,
			&e.Pickup.Arrival,
			&e.Pickup.Departure,
			&e.Pickup.Sequence,
			&e.Pickup.TripID,
			&e.Pickup.StopID,
			&e.Trip.ID,
			&e.Trip.Label,
			&e.Trip.Headsign,
			&e.Trip.Block,
			&e.Trip.RouteID,
			&e.Trip.ServicePeriodID,
			&e.Route.ID,
			&e.Route.Label,
			&e.Route.Name,
			&e.Route.RouteType,
			&e.Stop.ID,
			&e.Stop.Label,
			&e.Stop.Number,
			&e.Stop.Name,
			&e.Stop.Lat,
			&e.Stop.Lon,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning pickup event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pickup events: %w", err)
	}

	return events, nil
}

const stopColumns = "id, label, number, name, lat, lon"

func scanStop(row rowScanner) (model.Stop, error) {
	var stop model.Stop
	err := row.Scan(
		&stop.ID,
		&stop.Label,
		&stop.Number,
		&stop.Name,
		&stop.Lat,
		&stop.Lon,
	)
	return stop, err
}

func scanStops(rows *sql.Rows) ([]model.Stop, error) {
	defer rows.Close()

	stops := []model.Stop{}
	for rows.Next() {
		stop, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, stop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stops: %w", err)
	}
	return stops, nil
}

const calendarColumns = "id, days, start, finish"

func scanCalendar(row rowScanner) (model.ServiceCalendar, error) {
	var cal model.ServiceCalendar
	err := row.Scan(&cal.ID, &cal.Days, &cal.Start, &cal.Finish)
	return cal, err
}

const routeColumns = "id, label, name, route_type"

func scanRoute(row rowScanner) (model.Route, error) {
	var route model.Route
	err := row.Scan(&route.ID, &route.Label, &route.Name, &route.RouteType)
	return route, err
}

const tripColumns = "id, label, headsign, block, route_id, service_period_id"

func scanTrip(row rowScanner) (model.Trip, error) {
	var trip model.Trip
	err := row.Scan(
		&trip.ID,
		&trip.Label,
		&trip.Headsign,
		&trip.Block,
		&trip.RouteID,
		&trip.ServicePeriodID,
	)
	return trip, err
}

// Translates sql.ErrNoRows into ErrNotFound.
func notFound(err error, what string) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return fmt.Errorf("querying %s: %w", what, err)
}
