package parse

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spkg/bom"

	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/storage"
)

func init() {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// Compiles feed tables into a schedule store, one table per
// transaction.
//
// Tables must be compiled in dependency order (see
// model.CompileOrder), as references to calendars, stops, routes and
// trips are resolved from natural keys to surrogate IDs using keys
// seen in previously compiled tables. A Compiler is not safe for
// concurrent use.
type Compiler struct {
	writer storage.ScheduleWriter
	logger zerolog.Logger

	keys  map[model.EntityKind]map[string]int64
	stats map[model.EntityKind]int
}

type Option func(*Compiler)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

func NewCompiler(writer storage.ScheduleWriter, opts ...Option) *Compiler {
	c := &Compiler{
		writer: writer,
		logger: zerolog.Nop(),
		keys: map[model.EntityKind]map[string]int64{
			model.KindCalendar: {},
			model.KindStop:     {},
			model.KindRoute:    {},
			model.KindTrip:     {},
		},
		stats: map[model.EntityKind]int{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tableCompiler func(t *table, data io.Reader) error

var dispatch = map[model.EntityKind]tableCompiler{
	model.KindCalendar:          compileCalendar,
	model.KindCalendarException: compileCalendarDates,
	model.KindStop:              compileStops,
	model.KindRoute:             compileRoutes,
	model.KindTrip:              compileTrips,
	model.KindPickup:            compileStopTimes,
}

// Compiles the table with the given file name, e.g. "stop_times.txt"
// or "stop_times".
func (c *Compiler) CompileTable(name string, data io.Reader, progress Progress) error {
	kind, ok := model.KindForTable(name)
	if !ok {
		return errors.Wrapf(ErrUnknownTable, "%s", name)
	}
	return c.Compile(kind, data, progress)
}

// Compiles a table holding records of the given kind. On failure,
// nothing from the table is kept, neither in the store nor in the
// key cache.
func (c *Compiler) Compile(kind model.EntityKind, data io.Reader, progress Progress) error {
	compile, ok := dispatch[kind]
	if !ok {
		return errors.Wrapf(ErrUnknownTable, "%s", kind)
	}
	if progress == nil {
		progress = NoProgress
	}

	buf, err := io.ReadAll(data)
	if err != nil {
		return errors.Wrapf(err, "reading %s", kind.Table())
	}

	started := time.Now()

	t := &table{
		compiler: c,
		kind:     kind,
		progress: progress,
		keys:     map[string]int64{},
	}

	progress.Begin(kind, countLines(buf))

	err = c.writer.Begin(kind)
	if err != nil {
		return &TransactionError{Kind: kind, Err: err}
	}

	if len(bytes.TrimSpace(buf)) > 0 {
		t.line = 1
		progress.Step(t.line)
		err = compile(t, bytes.NewReader(buf))
	}

	if err != nil {
		if rbErr := c.writer.Rollback(); rbErr != nil {
			c.logger.Error().Err(rbErr).Str("kind", kind.String()).Msg("rollback failed")
		}
		c.logger.Warn().Err(err).Str("kind", kind.String()).Msg("table rejected")
		return err
	}

	err = c.writer.Commit()
	if err != nil {
		return &TransactionError{Kind: kind, Err: err}
	}

	// Keys only become visible once their rows are committed.
	if cache, ok := c.keys[kind]; ok {
		for key, id := range t.keys {
			cache[key] = id
		}
	}
	c.stats[kind] += t.rows

	c.logger.Debug().
		Str("kind", kind.String()).
		Int("rows", t.rows).
		Dur("elapsed", time.Since(started)).
		Msg("table committed")

	progress.Finish()

	return nil
}

// Builds indexes, stamps the store with a version and closes the
// writer. Call once all tables are compiled.
func (c *Compiler) Finish(feedVersion string) error {
	err := c.writer.CreateIndexes()
	if err != nil {
		return errors.Wrap(err, "creating indexes")
	}

	err = c.writer.WriteVersion(model.Version{
		SchemaVersion: model.SchemaVersion,
		FeedVersion:   feedVersion,
	})
	if err != nil {
		return errors.Wrap(err, "writing version")
	}

	err = c.writer.Close()
	if err != nil {
		return errors.Wrap(err, "closing writer")
	}

	return nil
}

// Number of rows committed per kind.
func (c *Compiler) Stats() map[model.EntityKind]int {
	stats := map[model.EntityKind]int{}
	for kind, n := range c.stats {
		stats[kind] = n
	}
	return stats
}

// Surrogate ID for a natural key of a previously compiled kind.
func (c *Compiler) Lookup(kind model.EntityKind, key string) (int64, bool) {
	id, ok := c.keys[kind][key]
	return id, ok
}

func countLines(buf []byte) int {
	n := 0
	for _, line := range bytes.Split(buf, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}

// State for a single table being compiled.
type table struct {
	compiler *Compiler
	kind     model.EntityKind
	progress Progress

	// Current line, header being line 1.
	line int
	rows int

	// Keys defined by this table, pending commit.
	keys map[string]int64
}

// Decodes each row into a T and hands it to f. Errors are reported
// with the line they occurred on.
func each[T any](t *table, data io.Reader, f func(*T) error) error {
	err := gocsv.UnmarshalToCallbackWithError(data, func(row *T) error {
		t.line++
		if err := f(row); err != nil {
			return err
		}
		t.rows++
		t.progress.Step(t.line)
		return nil
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrMalformedRow) ||
		errors.Is(err, ErrUnresolvedReference) ||
		errors.Is(err, ErrTransactionFailure) {
		return err
	}

	var pe *csv.ParseError
	if errors.As(err, &pe) {
		row := pe.Line
		if row == 0 {
			row = t.line + 1
		}
		return &MalformedRowError{Kind: t.kind, Row: row, Reason: pe.Err.Error()}
	}

	return &MalformedRowError{Kind: t.kind, Row: t.line + 1, Reason: err.Error()}
}

func (t *table) malformed(field string, format string, args ...interface{}) error {
	return &MalformedRowError{
		Kind:   t.kind,
		Row:    t.line,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (t *table) failed(err error) error {
	return &TransactionError{Kind: t.kind, Row: t.line, Err: err}
}

// Records the surrogate ID of a natural key. Last definition wins.
func (t *table) define(key string, id int64) {
	t.keys[key] = id
}

func (t *table) resolve(kind model.EntityKind, key string) (int64, error) {
	key = clean(key)
	if id, ok := t.compiler.keys[kind][key]; ok {
		return id, nil
	}
	return 0, &UnresolvedReferenceError{
		Kind:    t.kind,
		Row:     t.line,
		RefKind: kind,
		Key:     key,
	}
}

// Strips surrounding whitespace and quotes.
func clean(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}

func (t *table) required(field, value string) (string, error) {
	value = clean(value)
	if value == "" {
		return "", t.malformed(field, "missing value")
	}
	return value, nil
}

// Empty numeric fields are 0.
func (t *table) integer(field, value string) (int, error) {
	value = clean(value)
	if value == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, t.malformed(field, "invalid integer '%s'", value)
	}
	return i, nil
}

func (t *table) float(field, value string) (float64, error) {
	value = clean(value)
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, t.malformed(field, "invalid number '%s'", value)
	}
	return f, nil
}

func (t *table) flag(field, value string) (bool, error) {
	i, err := t.integer(field, value)
	if err != nil {
		return false, err
	}
	if i != 0 && i != 1 {
		return false, t.malformed(field, "invalid flag '%d'", i)
	}
	return i == 1, nil
}

// Validates a YYYYMMDD date.
func (t *table) date(field, value string) (string, error) {
	value, err := t.required(field, value)
	if err != nil {
		return "", err
	}
	if _, err := time.Parse("20060102", value); err != nil {
		return "", t.malformed(field, "invalid date '%s'", value)
	}
	return value, nil
}
