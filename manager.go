package transit

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/downloader"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/parse"
	"tidbyt.dev/transit/storage"
)

const (
	DefaultStaticTimeout = 60 * time.Second
	DefaultStaticMaxSize = 800 << 20 // 800 MB
)

var ErrSchemaMismatch = errors.New("store has an incompatible schema version")

// Summary of a freshly compiled feed.
type FeedEvent struct {
	Feed       string         `json:"feed"`
	Source     string         `json:"source"`
	Rows       map[string]int `json:"rows"`
	CompiledAt time.Time      `json:"compiled_at"`
}

// Told about every feed the Manager compiles.
type Notifier interface {
	FeedCompiled(ctx context.Context, event FeedEvent) error
}

// Fans out to several notifiers. All are called, and their errors
// joined.
type Notifiers []Notifier

func (ns Notifiers) FeedCompiled(ctx context.Context, event FeedEvent) error {
	errs := []error{}
	for _, n := range ns {
		if err := n.FeedCompiled(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Manager compiles feeds into storage and opens them for queries.
//
// Feeds are identified by the SHA-256 of their content, so loading
// the same data twice only compiles it once.
type Manager struct {
	StaticTimeout time.Duration
	StaticMaxSize int
	Downloader    downloader.Downloader

	// Optional.
	Notifier Notifier
	Progress parse.Progress

	Logger zerolog.Logger

	storage storage.Storage
}

// Creates a new Manager on top of the given storage. Static feeds
// are not cached by the default downloader, as they are persisted
// in storage once compiled.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		StaticTimeout: DefaultStaticTimeout,
		StaticMaxSize: DefaultStaticMaxSize,
		Downloader:    downloader.NewMemoryDownloader(),
		Logger:        zerolog.Nop(),
		storage:       s,
	}
}

// Loads a feed from a URL, a zip file or a directory of tables,
// compiling it unless storage already holds a store for the same
// data. Returns the feed ID.
func (m *Manager) Load(ctx context.Context, source string, headers map[string]string) (string, error) {
	dir := !downloader.IsRemote(source) && isDir(source)

	var body []byte
	var feed string
	var err error
	if dir {
		feed, err = hashDir(source)
	} else {
		body, err = downloader.Fetch(ctx, m.Downloader, source, headers, downloader.GetOptions{
			Cache:   false,
			Timeout: m.StaticTimeout,
			MaxSize: m.StaticMaxSize,
		})
		feed = fmt.Sprintf("%x", sha256.Sum256(body))
	}
	if err != nil {
		return "", fmt.Errorf("reading feed at %s: %w", source, err)
	}

	logger := m.Logger.With().Str("source", source).Str("feed", feed).Logger()

	if m.compiled(feed) {
		logger.Info().Msg("feed already compiled")
		return feed, nil
	}

	writer, err := m.storage.GetWriter(feed)
	if err != nil {
		return "", fmt.Errorf("getting writer: %w", err)
	}

	c := parse.NewCompiler(writer, parse.WithLogger(logger))
	if dir {
		err = parse.CompileDir(c, source, feed, m.Progress)
	} else {
		err = parse.CompileZip(c, body, feed, m.Progress)
	}
	if err != nil {
		// Finish() closes on success only.
		if closeErr := writer.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("closing writer")
		}
		return "", fmt.Errorf("compiling: %w", err)
	}

	rows := map[string]int{}
	for kind, n := range c.Stats() {
		rows[kind.Table()] = n
	}
	logger.Info().Interface("rows", rows).Msg("feed compiled")

	if m.Notifier != nil {
		err = m.Notifier.FeedCompiled(ctx, FeedEvent{
			Feed:       feed,
			Source:     source,
			Rows:       rows,
			CompiledAt: time.Now().UTC(),
		})
		if err != nil {
			// The store is intact, so this doesn't fail the load.
			logger.Warn().Err(err).Msg("notifying")
		}
	}

	return feed, nil
}

// Reports whether storage has a complete store for feed, written
// with the current schema.
func (m *Manager) compiled(feed string) bool {
	reader, err := m.storage.GetReader(feed)
	if err != nil {
		return false
	}
	version, err := reader.Version()
	if err != nil {
		return false
	}
	return version.FeedVersion == feed && version.SchemaVersion == model.SchemaVersion
}

// Opens a compiled feed for querying.
func (m *Manager) Open(feed string, clk clock.Clock, policy ExceptionPolicy) (*Schedule, error) {
	reader, err := m.storage.GetReader(feed)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	version, err := reader.Version()
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version.SchemaVersion != model.SchemaVersion {
		return nil, fmt.Errorf("%w: %d, expected %d", ErrSchemaMismatch, version.SchemaVersion, model.SchemaVersion)
	}

	return NewSchedule(reader, NewCalendars(reader, clk, policy), clk), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Hashes the feed tables of a directory, in table name order.
func hashDir(dir string) (string, error) {
	tables := []string{}
	for _, kind := range model.CompileOrder {
		tables = append(tables, kind.Table())
	}
	sort.Strings(tables)

	h := sha256.New()
	for _, name := range tables {
		buf, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s %d\n", name, len(buf))
		h.Write(buf)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
