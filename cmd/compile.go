package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/metrics"
	"tidbyt.dev/transit/notify"
	"tidbyt.dev/transit/parse"
)

var compileCmd = &cobra.Command{
	Use:   "compile [source]",
	Short: "Compiles a feed into the store",
	Long:  "Compiles a feed URL, zip file or directory of tables into the store. Feeds already in the store are left alone.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  compile,
}

var progressEvery int

func init() {
	compileCmd.Flags().IntVarP(&progressEvery, "progress-every", "", 10000, "Log progress every N lines")
	rootCmd.AddCommand(compileCmd)
}

func compile(cmd *cobra.Command, args []string) error {
	source := cfg.Feed.Source
	if len(args) == 1 {
		source = args[0]
	}
	if source == "" {
		return fmt.Errorf("feed is required")
	}

	ctx := context.Background()

	m, err := buildManager()
	if err != nil {
		return err
	}

	progress := parse.MultiProgress{parse.NewLogProgress(logger, progressEvery)}
	notifiers := transit.Notifiers{}

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector()
		srv := collector.Serve(cfg.MetricsAddr, logger)
		defer srv.Shutdown(ctx)
		progress = append(progress, collector.Progress())
		notifiers = append(notifiers, collector)
	}

	if cfg.NATS.URL != "" {
		publisher, err := notify.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	recorder := &eventRecorder{}
	notifiers = append(notifiers, recorder)

	m.Progress = progress
	m.Notifier = notifiers

	started := time.Now()
	feed, err := m.Load(ctx, source, cfg.Feed.Headers)
	if err != nil {
		return err
	}

	if recorder.event == nil {
		logger.Info().Str("feed", feed).Msg("already compiled")
		fmt.Println(feed)
		return nil
	}

	if outputJSON {
		return printJSON(recorder.event)
	}

	fmt.Printf("%s compiled in %s\n", feed, time.Since(started).Round(time.Millisecond))
	tables := []string{}
	for table := range recorder.event.Rows {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		fmt.Printf("  %-20s %d\n", table, recorder.event.Rows[table])
	}

	return nil
}

type eventRecorder struct {
	event *transit.FeedEvent
}

func (r *eventRecorder) FeedCompiled(ctx context.Context, event transit.FeedEvent) error {
	r.event = &event
	return nil
}
