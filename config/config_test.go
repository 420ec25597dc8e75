package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "transit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: postgres
  postgres_dsn: postgres://localhost/transit
  postgres_driver: pgx
log:
  level: debug
  file: /var/log/transit.log
feed:
  source: https://example.com/gtfs.zip
  headers:
    Authorization: secret
  timeout: 2m
live:
  trip_updates_url: https://example.com/tripupdates.pb
  ttl: 15s
nats:
  url: nats://127.0.0.1:4222
  subject: ottawa.feeds
timezone: America/Toronto
exception_policy: apply
metrics_addr: ":9102"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/transit", cfg.Store.PostgresDSN)
	assert.Equal(t, "pgx", cfg.Store.PostgresDriver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/log/transit.log", cfg.Log.File)
	assert.True(t, cfg.Log.Console)
	assert.Equal(t, "https://example.com/gtfs.zip", cfg.Feed.Source)
	assert.Equal(t, map[string]string{"Authorization": "secret"}, cfg.Feed.Headers)
	assert.Equal(t, 2*time.Minute, cfg.Feed.Timeout)
	assert.Equal(t, "https://example.com/tripupdates.pb", cfg.Live.TripUpdatesURL)
	assert.Equal(t, 15*time.Second, cfg.Live.TTL)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "ottawa.feeds", cfg.NATS.Subject)
	assert.Equal(t, "America/Toronto", cfg.TimeZone)
	assert.Equal(t, "apply", cfg.ExceptionPolicy)
	assert.Equal(t, ":9102", cfg.MetricsAddr)

	// Unset keys keep their defaults
	assert.Equal(t, "transit-data", cfg.Store.SQLiteDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: memory
timezone: America/Toronto
`)

	t.Setenv("TRANSIT_STORE", "sqlite")
	t.Setenv("TRANSIT_SQLITE_DIR", "/tmp/stores")
	t.Setenv("TRANSIT_TIMEZONE", "Europe/Stockholm")
	t.Setenv("TRANSIT_LIVE_TTL", "1m")
	t.Setenv("TRANSIT_LOG_CONSOLE", "no")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/stores", cfg.Store.SQLiteDir)
	assert.Equal(t, "Europe/Stockholm", cfg.TimeZone)
	assert.Equal(t, time.Minute, cfg.Live.TTL)
	assert.False(t, cfg.Log.Console)
}

func TestLoadInvalid(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"unknown backend", "store:\n  backend: oracle\n", nil},
		{"postgres without dsn", "store:\n  backend: postgres\n", nil},
		{"bad driver", "store:\n  postgres_driver: mysql\n", nil},
		{"bad timezone", "timezone: Mars/Olympus\n", nil},
		{"bad policy", "exception_policy: sometimes\n", nil},
		{"bad level", "log:\n  level: loud\n", nil},
		{"bad live url", "live:\n  trip_updates_url: not a url\n", nil},
		{"bad metrics addr", "metrics_addr: nine\n", nil},
		{"nats without subject", "nats:\n  url: nats://localhost:4222\n  subject: \"\"\n", nil},
		{"broken yaml", "store: [", nil},
		{"bad env duration", "", map[string]string{"TRANSIT_FEED_TIMEOUT": "soon"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
