package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/transit/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	mutex sync.Mutex
	feeds map[string]*sql.DB
}

type SQLiteScheduleWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	kind       model.EntityKind
	pickupStmt *sql.Stmt
}

type SQLiteScheduleReader struct {
	db *sql.DB
}

var sqliteTables = []string{`
CREATE TABLE service_periods (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    days INTEGER NOT NULL,
    start TEXT NOT NULL,
    finish TEXT NOT NULL
);`, `
CREATE TABLE service_exceptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    day TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    service_period_id INTEGER NOT NULL
);
CREATE INDEX service_exceptions_day ON service_exceptions (day);
`, `
CREATE TABLE stops (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label TEXT NOT NULL,
    number INTEGER NOT NULL,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL
);`, `
CREATE TABLE routes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label TEXT NOT NULL,
    name TEXT NOT NULL,
    route_type INTEGER NOT NULL
);`, `
CREATE TABLE trips (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label TEXT NOT NULL,
    headsign TEXT NOT NULL,
    block INTEGER NOT NULL,
    route_id INTEGER NOT NULL,
    service_period_id INTEGER NOT NULL
);`, `
CREATE TABLE pickups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    arrival INTEGER NOT NULL,
    departure INTEGER NOT NULL,
    sequence INTEGER NOT NULL,
    trip_id INTEGER NOT NULL,
    stop_id INTEGER NOT NULL
);`, `
CREATE TABLE versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    schema_version INTEGER NOT NULL,
    feed_version TEXT NOT NULL
);`,
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	config := SQLiteConfig{}
	if len(cfg) > 0 {
		config = cfg[0]
	}

	if config.OnDisk {
		err := os.MkdirAll(config.Directory, 0755)
		if err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	return &SQLiteStorage{
		SQLiteConfig: config,
		feeds:        map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) path(feed string) string {
	return filepath.Join(s.Directory, feed+".db")
}

func (s *SQLiteStorage) open(feed string) (*sql.DB, error) {
	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.path(feed)
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: gets its own database.
	if !s.OnDisk {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

func (s *SQLiteStorage) GetReader(feed string) (ScheduleReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.feeds[feed]
	if found {
		return &SQLiteScheduleReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}

	if _, err := os.Stat(s.path(feed)); os.IsNotExist(err) {
		return nil, fmt.Errorf("feed %s does not exist at %s", feed, s.path(feed))
	}

	db, err := s.open(feed)
	if err != nil {
		return nil, err
	}
	s.feeds[feed] = db

	return &SQLiteScheduleReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(feed string) (ScheduleWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if db, found := s.feeds[feed]; found {
		db.Close()
		delete(s.feeds, feed)
	}

	// Stores are rebuilt from scratch, never migrated.
	if s.OnDisk {
		if _, err := os.Stat(s.path(feed)); err == nil {
			err := os.Remove(s.path(feed))
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := s.open(feed)
	if err != nil {
		return nil, err
	}

	for _, query := range sqliteTables {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	s.feeds[feed] = db

	return &SQLiteScheduleWriter{db: db}, nil
}

func (w *SQLiteScheduleWriter) Begin(kind model.EntityKind) error {
	if w.tx != nil {
		return ErrTransactionActive
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning %s transaction: %w", kind, err)
	}

	if kind == model.KindPickup {
		w.pickupStmt, err = tx.Prepare(`
INSERT INTO pickups (arrival, departure, sequence, trip_id, stop_id)
VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("preparing pickup insert: %w", err)
		}
	}

	w.tx = tx
	w.kind = kind
	return nil
}

func (w *SQLiteScheduleWriter) endTx() {
	if w.pickupStmt != nil {
		w.pickupStmt.Close()
		w.pickupStmt = nil
	}
	w.tx = nil
}

func (w *SQLiteScheduleWriter) Commit() error {
	if w.tx == nil {
		return ErrNoTransaction
	}
	tx := w.tx
	w.endTx()

	err := tx.Commit()
	if err != nil {
		return fmt.Errorf("committing %s transaction: %w", w.kind, err)
	}
	return nil
}

func (w *SQLiteScheduleWriter) Rollback() error {
	if w.tx == nil {
		return ErrNoTransaction
	}
	tx := w.tx
	w.endTx()

	err := tx.Rollback()
	if err != nil {
		return fmt.Errorf("rolling back %s transaction: %w", w.kind, err)
	}
	return nil
}

func (w *SQLiteScheduleWriter) insert(what string, query string, args ...interface{}) (int64, error) {
	if w.tx == nil {
		return 0, ErrNoTransaction
	}

	res, err := w.tx.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting %s: %w", what, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting %s id: %w", what, err)
	}

	return id, nil
}

func (w *SQLiteScheduleWriter) WriteCalendar(cal *model.ServiceCalendar) (int64, error) {
	return w.insert("service period", `
INSERT INTO service_periods (days, start, finish)
VALUES (?, ?, ?)`,
		cal.Days,
		cal.Start,
		cal.Finish,
	)
}

func (w *SQLiteScheduleWriter) WriteCalendarException(ex *model.CalendarException) (int64, error) {
	return w.insert("service exception", `
INSERT INTO service_exceptions (day, exception_type, service_period_id)
VALUES (?, ?, ?)`,
		ex.Day,
		ex.Kind,
		ex.ServicePeriodID,
	)
}

func (w *SQLiteScheduleWriter) WriteStop(stop *model.Stop) (int64, error) {
	return w.insert("stop", `
INSERT INTO stops (label, number, name, lat, lon)
VALUES (?, ?, ?, ?, ?)`,
		stop.Label,
		stop.Number,
		stop.Name,
		stop.Lat,
		stop.Lon,
	)
}

func (w *SQLiteScheduleWriter) WriteRoute(route *model.Route) (int64, error) {
	return w.insert("route", `
INSERT INTO routes (label, name, route_type)
VALUES (?, ?, ?)`,
		route.Label,
		route.Name,
		route.RouteType,
	)
}

func (w *SQLiteScheduleWriter) WriteTrip(trip *model.Trip) (int64, error) {
	return w.insert("trip", `
INSERT INTO trips (label, headsign, block, route_id, service_period_id)
VALUES (?, ?, ?, ?, ?)`,
		trip.Label,
		trip.Headsign,
		trip.Block,
		trip.RouteID,
		trip.ServicePeriodID,
	)
}

func (w *SQLiteScheduleWriter) WritePickup(pickup *model.Pickup) error {
	if w.pickupStmt == nil {
		return ErrNoTransaction
	}

	_, err := w.pickupStmt.Exec(
		pickup.Arrival,
		pickup.Departure,
		pickup.Sequence,
		pickup.TripID,
		pickup.StopID,
	)
	if err != nil {
		return fmt.Errorf("inserting pickup: %w", err)
	}

	return nil
}

func (w *SQLiteScheduleWriter) WriteVersion(version model.Version) error {
	_, err := w.db.Exec(`
INSERT INTO versions (schema_version, feed_version)
VALUES (?, ?)`,
		version.SchemaVersion,
		version.FeedVersion,
	)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	return nil
}

func (w *SQLiteScheduleWriter) CreateIndexes() error {
	_, err := w.db.Exec(`
CREATE INDEX IF NOT EXISTS pickups_stop_id ON pickups (stop_id);
CREATE INDEX IF NOT EXISTS pickups_trip_id ON pickups (trip_id);
CREATE INDEX IF NOT EXISTS stops_number ON stops (number);
CREATE INDEX IF NOT EXISTS stops_label ON stops (label);
`)
	if err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	return nil
}

func (w *SQLiteScheduleWriter) Close() error {
	if w.tx != nil {
		w.Rollback()
		return fmt.Errorf("closing with open %s transaction", w.kind)
	}

	_, err := w.db.Exec(`ANALYZE;`)
	if err != nil {
		return fmt.Errorf("analyzing database: %w", err)
	}

	return nil
}

func (r *SQLiteScheduleReader) Version() (model.Version, error) {
	var v model.Version
	err := r.db.QueryRow(`
SELECT schema_version, feed_version
FROM versions
ORDER BY id DESC
LIMIT 1`).Scan(&v.SchemaVersion, &v.FeedVersion)
	if err != nil {
		return model.Version{}, notFound(err, "version")
	}
	return v, nil
}

func (r *SQLiteScheduleReader) Calendars() ([]model.ServiceCalendar, error) {
	rows, err := r.db.Query(`SELECT ` + calendarColumns + ` FROM service_periods ORDER BY id`)
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

func (r *SQLiteScheduleReader) Calendar(id int64) (model.ServiceCalendar, error) {
	cal, err := scanCalendar(r.db.QueryRow(
		`SELECT `+calendarColumns+` FROM service_periods WHERE id = ?`, id,
	))
	if err != nil {
		return model.ServiceCalendar{}, notFound(err, "service period")
	}
	return cal, nil
}

func (r *SQLiteScheduleReader) CalendarExceptions(day string) ([]model.CalendarException, error) {
	rows, err := r.db.Query(`
SELECT id, day, exception_type, service_period_id
FROM service_exceptions
WHERE day = ?
ORDER BY id`, day)
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

func (r *SQLiteScheduleReader) Stops() ([]model.Stop, error) {
	rows, err := r.db.Query(`SELECT ` + stopColumns + ` FROM stops ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	return scanStops(rows)
}

func (r *SQLiteScheduleReader) StopByNumber(number int) (model.Stop, error) {
	stop, err := scanStop(r.db.QueryRow(
		`SELECT `+stopColumns+` FROM stops WHERE number = ? ORDER BY id LIMIT 1`, number,
	))
	if err != nil {
		return model.Stop{}, notFound(err, "stop")
	}
	return stop, nil
}

func (r *SQLiteScheduleReader) StopByLabel(label string) (model.Stop, error) {
	stop, err := scanStop(r.db.QueryRow(
		`SELECT `+stopColumns+` FROM stops WHERE label = ? ORDER BY id LIMIT 1`, label,
	))
	if err != nil {
		return model.Stop{}, notFound(err, "stop")
	}
	return stop, nil
}

func (r *SQLiteScheduleReader) StopsByName(fragment string) ([]model.Stop, error) {
	// LIKE is case insensitive for ASCII in SQLite
	rows, err := r.db.Query(
		`SELECT `+stopColumns+` FROM stops WHERE name LIKE ? ORDER BY id`,
		"%"+fragment+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("querying stops by name: %w", err)
	}
	return scanStops(rows)
}

func (r *SQLiteScheduleReader) Routes() ([]model.Route, error) {
	rows, err := r.db.Query(`SELECT ` + routeColumns + ` FROM routes ORDER BY id`)
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

func (r *SQLiteScheduleReader) Route(id int64) (model.Route, error) {
	route, err := scanRoute(r.db.QueryRow(
		`SELECT `+routeColumns+` FROM routes WHERE id = ?`, id,
	))
	if err != nil {
		return model.Route{}, notFound(err, "route")
	}
	return route, nil
}

func (r *SQLiteScheduleReader) Trip(id int64) (model.Trip, error) {
	trip, err := scanTrip(r.db.QueryRow(
		`SELECT `+tripColumns+` FROM trips WHERE id = ?`, id,
	))
	if err != nil {
		return model.Trip{}, notFound(err, "trip")
	}
	return trip, nil
}

func (r *SQLiteScheduleReader) PickupEvents(filter PickupFilter) ([]*PickupEvent, error) {
	query, params := pickupEventQuery(filter, nil, nil, sqlitePlaceholder)

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying pickup events: %w", err)
	}

	return scanPickupEvents(rows)
}
