package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"tidbyt.dev/transit/model"
)

const (
	PSQLPickupBatchSize = 5000

	// database/sql driver names
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

type PSQLConfig struct {
	ConnStr string

	// One of DriverPQ (default) or DriverPGX.
	Driver string

	// If set, all tables are dropped on startup. You probably
	// only want this for testing.
	ClearDB bool
}

// Postgres Storage. All feeds share one set of tables, with every
// row tagged by the feed it belongs to.
type PSQLStorage struct {
	db     *sql.DB
	driver string
}

type PSQLScheduleWriter struct {
	feed      string
	db        *sql.DB
	driver    string
	tx        *sql.Tx
	kind      model.EntityKind
	pickupBuf []model.Pickup
}

type PSQLScheduleReader struct {
	feed string
	db   *sql.DB
}

var psqlTables = []string{`
CREATE TABLE IF NOT EXISTS service_periods (
    feed TEXT NOT NULL,
    id BIGSERIAL PRIMARY KEY,
    days INTEGER NOT NULL,
    start TEXT NOT NULL,
    finish TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS service_exceptions (
    feed TEXT NOT NULL,
    id BIGSERIAL PRIMARY KEY,
    day TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    service_period_id BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS service_exceptions_day ON service_exceptions (feed, day);
`, `
CREATE TABLE IF NOT EXISTS stops (
    feed TEXT NOT NULL,
    id BIGSERIAL PRIMARY KEY,
    label TEXT NOT NULL,
    number INTEGER NOT NULL,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS routes (
    feed TEXT NOT NULL,
    id BIGSERIAL PRIMARY KEY,
    label TEXT NOT NULL,
    name TEXT NOT NULL,
    route_type INTEGER NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS trips (
    feed TEXT NOT NULL,
    id BIGSERIAL PRIMARY KEY,
    label TEXT NOT NULL,
    headsign TEXT NOT NULL,
    block INTEGER NOT NULL,
    route_id BIGINT NOT NULL,
    service_period_id BIGINT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS pickups (
    feed TEXT NOT NULL,
    id BIGSERIAL PRIMARY KEY,
    arrival INTEGER NOT NULL,
    departure INTEGER NOT NULL,
    sequence INTEGER NOT NULL,
    trip_id BIGINT NOT NULL,
    stop_id BIGINT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS versions (
    feed TEXT NOT NULL,
    id BIGSERIAL PRIMARY KEY,
    schema_version INTEGER NOT NULL,
    feed_version TEXT NOT NULL
);`,
}

var psqlTableNames = []string{
	"service_periods",
	"service_exceptions",
	"stops",
	"routes",
	"trips",
	"pickups",
	"versions",
}

// Creates a new Postgres Storage using the provided config.
func NewPSQLStorage(cfg PSQLConfig) (*PSQLStorage, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPQ
	}
	if driver != DriverPQ && driver != DriverPGX {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if cfg.ClearDB {
		for _, name := range psqlTableNames {
			_, err = db.Exec(`DROP TABLE IF EXISTS ` + name)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("clearing db: %w", err)
			}
		}
	}

	for _, query := range psqlTables {
		_, err := db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	return &PSQLStorage{
		db:     db,
		driver: driver,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(feed string) (ScheduleReader, error) {
	return &PSQLScheduleReader{
		feed: feed,
		db:   s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(feed string) (ScheduleWriter, error) {
	// In case feed already exists, delete all records
	for _, name := range psqlTableNames {
		_, err := s.db.Exec(`DELETE FROM `+name+` WHERE feed = $1`, feed)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %w", name, err)
		}
	}

	return &PSQLScheduleWriter{
		feed:   feed,
		db:     s.db,
		driver: s.driver,
	}, nil
}

func (w *PSQLScheduleWriter) Begin(kind model.EntityKind) error {
	if w.tx != nil {
		return ErrTransactionActive
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning %s transaction: %w", kind, err)
	}

	w.tx = tx
	w.kind = kind
	w.pickupBuf = nil
	return nil
}

func (w *PSQLScheduleWriter) Commit() error {
	if w.tx == nil {
		return ErrNoTransaction
	}

	if len(w.pickupBuf) > 0 {
		err := w.flushPickups()
		if err != nil {
			w.Rollback()
			return fmt.Errorf("flushing pickups: %w", err)
		}
	}

	tx := w.tx
	w.tx = nil
	err := tx.Commit()
	if err != nil {
		return fmt.Errorf("committing %s transaction: %w", w.kind, err)
	}
	return nil
}

func (w *PSQLScheduleWriter) Rollback() error {
	if w.tx == nil {
		return ErrNoTransaction
	}

	tx := w.tx
	w.tx = nil
	w.pickupBuf = nil
	err := tx.Rollback()
	if err != nil {
		return fmt.Errorf("rolling back %s transaction: %w", w.kind, err)
	}
	return nil
}

func (w *PSQLScheduleWriter) insert(what string, query string, args ...interface{}) (int64, error) {
	if w.tx == nil {
		return 0, ErrNoTransaction
	}

	var id int64
	err := w.tx.QueryRow(query, append([]interface{}{w.feed}, args...)...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting %s: %w", what, err)
	}
	return id, nil
}

func (w *PSQLScheduleWriter) WriteCalendar(cal *model.ServiceCalendar) (int64, error) {
	return w.insert("service period", `
INSERT INTO service_periods (feed, days, start, finish)
VALUES ($1, $2, $3, $4)
RETURNING id`,
		int(cal.Days),
		cal.Start,
		cal.Finish,
	)
}

func (w *PSQLScheduleWriter) WriteCalendarException(ex *model.CalendarException) (int64, error) {
	return w.insert("service exception", `
INSERT INTO service_exceptions (feed, day, exception_type, service_period_id)
VALUES ($1, $2, $3, $4)
RETURNING id`,
		ex.Day,
		int(ex.Kind),
		ex.ServicePeriodID,
	)
}

func (w *PSQLScheduleWriter) WriteStop(stop *model.Stop) (int64, error) {
	return w.insert("stop", `
INSERT INTO stops (feed, label, number, name, lat, lon)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		stop.Label,
		stop.Number,
		stop.Name,
		stop.Lat,
		stop.Lon,
	)
}

func (w *PSQLScheduleWriter) WriteRoute(route *model.Route) (int64, error) {
	return w.insert("route", `
INSERT INTO routes (feed, label, name, route_type)
VALUES ($1, $2, $3, $4)
RETURNING id`,
		route.Label,
		route.Name,
		int(route.RouteType),
	)
}

func (w *PSQLScheduleWriter) WriteTrip(trip *model.Trip) (int64, error) {
	return w.insert("trip", `
INSERT INTO trips (feed, label, headsign, block, route_id, service_period_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		trip.Label,
		trip.Headsign,
		trip.Block,
		trip.RouteID,
		trip.ServicePeriodID,
	)
}

func (w *PSQLScheduleWriter) WritePickup(pickup *model.Pickup) error {
	if w.tx == nil {
		return ErrNoTransaction
	}

	w.pickupBuf = append(w.pickupBuf, *pickup)

	if len(w.pickupBuf) >= PSQLPickupBatchSize {
		err := w.flushPickups()
		if err != nil {
			return fmt.Errorf("flushing pickups: %w", err)
		}
	}

	return nil
}

// Writes buffered pickups within the open transaction. lib/pq gets
// COPY, pgx's database/sql adapter doesn't support it and gets a
// prepared INSERT.
func (w *PSQLScheduleWriter) flushPickups() error {
	var query string
	if w.driver == DriverPQ {
		query = pq.CopyIn("pickups", "feed", "arrival", "departure", "sequence", "trip_id", "stop_id")
	} else {
		query = `
INSERT INTO pickups (feed, arrival, departure, sequence, trip_id, stop_id)
VALUES ($1, $2, $3, $4, $5, $6)`
	}

	stmt, err := w.tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range w.pickupBuf {
		_, err = stmt.Exec(
			w.feed,
			p.Arrival,
			p.Departure,
			p.Sequence,
			p.TripID,
			p.StopID,
		)
		if err != nil {
			return fmt.Errorf("inserting pickup: %w", err)
		}
	}

	if w.driver == DriverPQ {
		_, err = stmt.Exec()
		if err != nil {
			return fmt.Errorf("executing COPY: %w", err)
		}
	}

	w.pickupBuf = nil

	return nil
}

func (w *PSQLScheduleWriter) WriteVersion(version model.Version) error {
	_, err := w.db.Exec(`
INSERT INTO versions (feed, schema_version, feed_version)
VALUES ($1, $2, $3)`,
		w.feed,
		version.SchemaVersion,
		version.FeedVersion,
	)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	return nil
}

func (w *PSQLScheduleWriter) CreateIndexes() error {
	_, err := w.db.Exec(`
CREATE INDEX IF NOT EXISTS pickups_stop_id ON pickups (stop_id);
CREATE INDEX IF NOT EXISTS pickups_trip_id ON pickups (trip_id);
CREATE INDEX IF NOT EXISTS stops_number ON stops (feed, number);
CREATE INDEX IF NOT EXISTS stops_label ON stops (feed, label);
`)
	if err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	return nil
}

func (w *PSQLScheduleWriter) Close() error {
	if w.tx != nil {
		w.Rollback()
		return fmt.Errorf("closing with open %s transaction", w.kind)
	}

	_, err := w.db.Exec(`ANALYZE`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

func (r *PSQLScheduleReader) Version() (model.Version, error) {
	var v model.Version
	err := r.db.QueryRow(`
SELECT schema_version, feed_version
FROM versions
WHERE feed = $1
ORDER BY id DESC
LIMIT 1`, r.feed).Scan(&v.SchemaVersion, &v.FeedVersion)
	if err != nil {
		return model.Version{}, notFound(err, "version")
	}
	return v, nil
}

func (r *PSQLScheduleReader) Calendars() ([]model.ServiceCalendar, error) {
	rows, err := r.db.Query(
		`SELECT `+calendarColumns+` FROM service_periods WHERE feed = $1 ORDER BY id`,
		r.feed,
	)
	if err != nil {
		return nil, fmt.Errorf("querying service periods: %w", err)
	}
	defer rows.Close()

	cals := []model.ServiceCalendar{}
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning service period: %w", err)
		}
		cals = append(cals, cal)
	}

	return cals, rows.Err()
}

func (r *PSQLScheduleReader) Calendar(id int64) (model.ServiceCalendar, error) {
	cal, err := scanCalendar(r.db.QueryRow(
		`SELECT `+calendarColumns+` FROM service_periods WHERE feed = $1 AND id = $2`,
		r.feed, id,
	))
	if err != nil {
		return model.ServiceCalendar{}, notFound(err, "service period")
	}
	return cal, nil
}

func (r *PSQLScheduleReader) CalendarExceptions(day string) ([]model.CalendarException, error) {
	rows, err := r.db.Query(`
SELECT id, day, exception_type, service_period_id
FROM service_exceptions
WHERE feed = $1 AND day = $2
ORDER BY id`, r.feed, day)
	if err != nil {
		return nil, fmt.Errorf("querying service exceptions: %w", err)
	}
	defer rows.Close()

	exceptions := []model.CalendarException{}
	for rows.Next() {
		var ex model.CalendarException
		err := rows.Scan(&ex.ID, &ex.Day, &ex.Kind, &ex.ServicePeriodID)
		if err != nil {
			return nil, fmt.Errorf("scanning service exception: %w", err)
		}
		exceptions = append(exceptions, ex)
	}

	return exceptions, rows.Err()
}

func (r *PSQLScheduleReader) Stops() ([]model.Stop, error) {
	rows, err := r.db.Query(
		`SELECT `+stopColumns+` FROM stops WHERE feed = $1 ORDER BY id`,
		r.feed,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	return scanStops(rows)
}

func (r *PSQLScheduleReader) StopByNumber(number int) (model.Stop, error) {
	stop, err := scanStop(r.db.QueryRow(
		`SELECT `+stopColumns+` FROM stops WHERE feed = $1 AND number = $2 ORDER BY id LIMIT 1`,
		r.feed, number,
	))
	if err != nil {
		return model.Stop{}, notFound(err, "stop")
	}
	return stop, nil
}

func (r *PSQLScheduleReader) StopByLabel(label string) (model.Stop, error) {
	stop, err := scanStop(r.db.QueryRow(
		`SELECT `+stopColumns+` FROM stops WHERE feed = $1 AND label = $2 ORDER BY id LIMIT 1`,
		r.feed, label,
	))
	if err != nil {
		return model.Stop{}, notFound(err, "stop")
	}
	return stop, nil
}

func (r *PSQLScheduleReader) StopsByName(fragment string) ([]model.Stop, error) {
	rows, err := r.db.Query(
		`SELECT `+stopColumns+` FROM stops WHERE feed = $1 AND name ILIKE $2 ORDER BY id`,
		r.feed, "%"+fragment+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("querying stops by name: %w", err)
	}
	return scanStops(rows)
}

func (r *PSQLScheduleReader) Routes() ([]model.Route, error) {
	rows, err := r.db.Query(
		`SELECT `+routeColumns+` FROM routes WHERE feed = $1 ORDER BY id`,
		r.feed,
	)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []model.Route{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, route)
	}

	return routes, rows.Err()
}

func (r *PSQLScheduleReader) Route(id int64) (model.Route, error) {
	route, err := scanRoute(r.db.QueryRow(
		`SELECT `+routeColumns+` FROM routes WHERE feed = $1 AND id = $2`,
		r.feed, id,
	))
	if err != nil {
		return model.Route{}, notFound(err, "route")
	}
	return route, nil
}

func (r *PSQLScheduleReader) Trip(id int64) (model.Trip, error) {
	trip, err := scanTrip(r.db.QueryRow(
		`SELECT `+tripColumns+` FROM trips WHERE feed = $1 AND id = $2`,
		r.feed, id,
	))
	if err != nil {
		return model.Trip{}, notFound(err, "trip")
	}
	return trip, nil
}

func (r *PSQLScheduleReader) PickupEvents(filter PickupFilter) ([]*PickupEvent, error) {
	query, params := pickupEventQuery(
		filter,
		[]string{"p.feed = $1"},
		[]interface{}{r.feed},
		psqlPlaceholder,
	)

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying pickup events: %w", err)
	}

	return scanPickupEvents(rows)
}
