package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Prefix of environment variables overriding the config file.
const EnvPrefix = "TRANSIT_"

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite postgres"`

	// Directory holding one database per feed. Empty keeps
	// SQLite databases in memory.
	SQLiteDir string `yaml:"sqlite_dir"`

	PostgresDSN    string `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	PostgresDriver string `yaml:"postgres_driver" validate:"omitempty,oneof=postgres pgx"`
}

type LogConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

type FeedConfig struct {
	// URL, zip file or directory of tables.
	Source  string            `yaml:"source"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout" validate:"gte=0"`
}

type LiveConfig struct {
	TripUpdatesURL      string            `yaml:"trip_updates_url" validate:"omitempty,url"`
	VehiclePositionsURL string            `yaml:"vehicle_positions_url" validate:"omitempty,url"`
	Headers             map[string]string `yaml:"headers"`
	TTL                 time.Duration     `yaml:"ttl" validate:"gte=0"`
}

type NATSConfig struct {
	URL     string `yaml:"url" validate:"omitempty,url"`
	Subject string `yaml:"subject" validate:"required_with=URL"`
}

type Config struct {
	Store StoreConfig `yaml:"store"`
	Log   LogConfig   `yaml:"log"`
	Feed  FeedConfig  `yaml:"feed"`
	Live  LiveConfig  `yaml:"live"`
	NATS  NATSConfig  `yaml:"nats"`

	// IANA name. Dates and times of day are resolved here.
	TimeZone        string `yaml:"timezone" validate:"required,timezone"`
	ExceptionPolicy string `yaml:"exception_policy" validate:"omitempty,oneof=ignore apply"`

	// Listen address for /metrics, e.g. ":9102". Empty disables.
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// JSON file caching downloads between CLI runs.
	CacheFile string `yaml:"cache_file"`
}

func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:        "sqlite",
			SQLiteDir:      "transit-data",
			PostgresDriver: "postgres",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Feed: FeedConfig{
			Timeout: 60 * time.Second,
		},
		Live: LiveConfig{
			TTL: 30 * time.Second,
		},
		NATS: NATSConfig{
			Subject: "transit.feeds",
		},
		TimeZone:        "UTC",
		ExceptionPolicy: "ignore",
	}
}

// Loads configuration. Defaults are overlaid by the YAML file at
// path (if not empty), which in turn is overlaid by TRANSIT_*
// environment variables. A .env file in the working directory is
// read into the environment first, if present.
func Load(path string) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		err = yaml.Unmarshal(buf, &cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	err = applyEnv(&cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"STORE":            &cfg.Store.Backend,
		"SQLITE_DIR":       &cfg.Store.SQLiteDir,
		"POSTGRES_DSN":     &cfg.Store.PostgresDSN,
		"POSTGRES_DRIVER":  &cfg.Store.PostgresDriver,
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_FILE":         &cfg.Log.File,
		"FEED":             &cfg.Feed.Source,
		"TRIP_UPDATES_URL": &cfg.Live.TripUpdatesURL,
		"VEHICLES_URL":     &cfg.Live.VehiclePositionsURL,
		"NATS_URL":         &cfg.NATS.URL,
		"NATS_SUBJECT":     &cfg.NATS.Subject,
		"TIMEZONE":         &cfg.TimeZone,
		"EXCEPTION_POLICY": &cfg.ExceptionPolicy,
		"METRICS_ADDR":     &cfg.MetricsAddr,
		"CACHE_FILE":       &cfg.CacheFile,
	}
	for name, dst := range strs {
		if v, found := os.LookupEnv(EnvPrefix + name); found {
			*dst = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"FEED_TIMEOUT": &cfg.Feed.Timeout,
		"LIVE_TTL":     &cfg.Live.TTL,
	}
	for name, dst := range durations {
		v, found := os.LookupEnv(EnvPrefix + name)
		if !found {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %q", EnvPrefix, name, v)
		}
		*dst = d
	}

	if v, found := os.LookupEnv(EnvPrefix + "LOG_CONSOLE"); found {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			cfg.Log.Console = true
		default:
			cfg.Log.Console = false
		}
	}

	return nil
}
