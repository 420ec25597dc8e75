package testutil

// Helpers and configuration for tests.
//
// Stores are built against the in-memory and sqlite backends. If
// PostgresConnStr is set, tests can also run against postgres.

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit/parse"
	"tidbyt.dev/transit/storage"
)

const (
	PostgresConnStr = ""
)

// Backends tests should run against.
func Backends() []string {
	backends := []string{"memory", "sqlite"}
	if PostgresConnStr != "" {
		backends = append(backends, "postgres")
	}
	return backends
}

func BuildStorage(t testing.TB, backend string) storage.Storage {
	var s storage.Storage
	var err error
	switch backend {
	case "memory":
		s = storage.NewMemoryStorage()
	case "sqlite":
		s, err = storage.NewSQLiteStorage()
		require.NoError(t, err)
	case "postgres":
		s, err = storage.NewPSQLStorage(storage.PSQLConfig{
			ConnStr: PostgresConnStr,
			ClearDB: true,
		})
		require.NoError(t, err)
	}
	require.NotNil(t, s, "unknown backend %q", backend)

	return s
}

// Compiles a zipped feed into a fresh store and returns a reader for
// it.
func LoadFeed(t testing.TB, backend string, buf []byte) storage.ScheduleReader {
	s := BuildStorage(t, backend)

	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	require.NoError(t, parse.CompileZip(parse.NewCompiler(writer), buf, "test", nil))

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	return reader
}

// Builds a store from inline tables. Missing tables are filled in
// with empty ones.
func BuildFeed(
	t testing.TB,
	backend string,
	files map[string][]string,
) storage.ScheduleReader {

	defaults := map[string][]string{
		"calendar.txt":   {"service_id,start_date,end_date"},
		"routes.txt":     {"route_id"},
		"trips.txt":      {"trip_id,route_id,service_id"},
		"stops.txt":      {"stop_id"},
		"stop_times.txt": {"trip_id,arrival_time,departure_time,stop_id,stop_sequence"},
	}
	for name, content := range defaults {
		if files[name] == nil {
			files[name] = content
		}
	}

	return LoadFeed(t, backend, BuildZip(t, files))
}

func BuildZip(
	t testing.TB,
	files map[string][]string,
) []byte {

	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}
