package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/config"
	"tidbyt.dev/transit/downloader"
	"tidbyt.dev/transit/logging"
	"tidbyt.dev/transit/storage"
)

var rootCmd = &cobra.Command{
	Use:               "transit",
	Short:             "Transit schedule tool",
	Long:              "Compiles transit feeds and answers questions about their schedules",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath     string
	feedSource     string
	feedHeaders    []string
	storeBackend   string
	timeZone       string
	exceptions     string
	logLevel       string
	outputJSON     bool
	referenceDate  string
	referenceClock string
)

// Populated by setup().
var (
	cfg    *config.Config
	logger zerolog.Logger
	clk    clock.Clock
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVarP(&feedSource, "feed", "f", "", "Feed URL, zip file or directory")
	flags.StringSliceVarP(&feedHeaders, "header", "", []string{}, "HTTP header for feed requests, on form <key>:<value>")
	flags.StringVarP(&storeBackend, "store", "", "", "Store backend (memory, sqlite, postgres)")
	flags.StringVarP(&timeZone, "timezone", "", "", "Time zone of the feed")
	flags.StringVarP(&exceptions, "exceptions", "", "", "Calendar exception policy (ignore, apply)")
	flags.StringVarP(&logLevel, "log-level", "", "", "Log level")
	flags.BoolVarP(&outputJSON, "json", "", false, "Print JSON")
	flags.StringVarP(&referenceDate, "date", "", "", "Pretend today is this date (YYYYMMDD)")
	flags.StringVarP(&referenceClock, "time", "", "", "Pretend it's this time of day (H:MM:SS)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Loads config, applies flag overrides and sets up logging and the
// clock.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("feed") {
		cfg.Feed.Source = feedSource
	}
	if flags.Changed("store") {
		cfg.Store.Backend = storeBackend
	}
	if flags.Changed("timezone") {
		cfg.TimeZone = timeZone
	}
	if flags.Changed("exceptions") {
		cfg.ExceptionPolicy = exceptions
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	headers, err := parseHeaders(feedHeaders)
	if err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}
	if cfg.Feed.Headers == nil {
		cfg.Feed.Headers = map[string]string{}
	}
	for k, v := range headers {
		cfg.Feed.Headers[k] = v
	}

	err = cfg.Validate()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Console = cfg.Log.Console
	logCfg.File = cfg.Log.File
	logger, err = logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("loading time zone: %w", err)
	}
	clk, err = buildClock(loc, referenceDate, referenceClock)
	if err != nil {
		return err
	}

	return nil
}

func buildClock(loc *time.Location, date string, timeOfDay string) (clock.Clock, error) {
	if date == "" && timeOfDay == "" {
		return clock.System(loc), nil
	}

	now := time.Now().In(loc)
	day := clock.Midnight(now)
	if date != "" {
		var err error
		day, err = clock.ParseDate(date, loc)
		if err != nil {
			return nil, err
		}
	}

	offset := int(now.Sub(clock.Midnight(now)) / time.Second)
	if timeOfDay != "" {
		var err error
		offset, err = clock.ParseElapsed(timeOfDay)
		if err != nil {
			return nil, fmt.Errorf("invalid time: %w", err)
		}
	}

	return clock.Fixed{Now: day.Add(time.Duration(offset) * time.Second)}, nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

func buildStorage() (storage.Storage, error) {
	switch cfg.Store.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    cfg.Store.SQLiteDir != "",
			Directory: cfg.Store.SQLiteDir,
		})
	case "postgres":
		return storage.NewPSQLStorage(storage.PSQLConfig{
			ConnStr: cfg.Store.PostgresDSN,
			Driver:  cfg.Store.PostgresDriver,
		})
	}
	return nil, fmt.Errorf("unknown store backend '%s'", cfg.Store.Backend)
}

func buildManager() (*transit.Manager, error) {
	s, err := buildStorage()
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	m := transit.NewManager(s)
	m.Logger = logger
	m.StaticTimeout = cfg.Feed.Timeout

	if cfg.CacheFile != "" {
		fs, err := downloader.NewFilesystem(cfg.CacheFile, logger)
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		m.Downloader = fs
	}

	return m, nil
}

// Compiles the configured feed unless already in the store, and
// opens it for querying.
func loadSchedule(ctx context.Context) (*transit.Schedule, error) {
	if cfg.Feed.Source == "" {
		return nil, fmt.Errorf("feed is required")
	}

	m, err := buildManager()
	if err != nil {
		return nil, err
	}

	feed, err := m.Load(ctx, cfg.Feed.Source, cfg.Feed.Headers)
	if err != nil {
		return nil, err
	}

	policy, err := transit.ParseExceptionPolicy(cfg.ExceptionPolicy)
	if err != nil {
		return nil, err
	}

	return m.Open(feed, clk, policy)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
