package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/downloader"
	"tidbyt.dev/transit/live"
)

var arrivalsCmd = &cobra.Command{
	Use:   "arrivals <stop_number>",
	Short: "Lists pickups arriving at a stop soon",
	Args:  cobra.ExactArgs(1),
	RunE:  arrivals,
}

var (
	windowMinutes int
	withLive      bool
)

func init() {
	arrivalsCmd.Flags().IntVarP(&windowMinutes, "window", "W", 15, "Minutes ahead to look for arrivals")
	arrivalsCmd.Flags().BoolVarP(&withLive, "live", "", false, "Merge in real-time predictions")
	rootCmd.AddCommand(arrivalsCmd)
}

func arrivals(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid stop number: %w", err)
	}

	ctx := context.Background()

	schedule, err := loadSchedule(ctx)
	if err != nil {
		return err
	}

	stop, err := schedule.Stop(number)
	if err != nil {
		return fmt.Errorf("stop %d: %w", number, err)
	}

	events, err := schedule.ArrivingWithin(number, windowMinutes)
	if err != nil {
		return err
	}
	details := transit.Describe(events)

	if !withLive {
		if outputJSON {
			return printJSON(details)
		}
		for _, d := range details {
			fmt.Printf("%s %s %s (trip %d, seq %d)\n", clock.FormatElapsed(d.Arrival), d.Route, d.Headsign, d.TripID, d.Sequence)
		}
		return nil
	}

	if cfg.Live.TripUpdatesURL == "" {
		return fmt.Errorf("live.trip_updates_url is required for --live")
	}

	client := live.NewClient(cfg.Live.TripUpdatesURL, clk)
	client.VehiclePositionsURL = cfg.Live.VehiclePositionsURL
	client.Logger = logger
	client.TTL = cfg.Live.TTL
	for k, v := range cfg.Live.Headers {
		client.Headers[k] = v
	}
	if cfg.CacheFile != "" {
		fs, err := downloader.NewFilesystem(cfg.CacheFile, logger)
		if err != nil {
			return fmt.Errorf("creating download cache: %w", err)
		}
		client.Downloader = fs
	}

	r, err := transit.Reconcile(ctx, client, stop, details)
	if err != nil {
		return err
	}

	for _, route := range r.Mismatched() {
		c := r.Coverage[route]
		logger.Warn().
			Str("route", route).
			Int("scheduled", c.Scheduled).
			Int("live", c.Live).
			Msg("live and scheduled counts differ, pairing may be off")
	}

	if outputJSON {
		return printJSON(r)
	}

	for _, p := range r.Pickups {
		if p.Live == nil {
			fmt.Printf("%s %s %s (scheduled)\n", clock.FormatElapsed(p.ScheduledArrival), p.Route, p.Headsign)
			continue
		}
		fmt.Printf(
			"%s %s %s (expected %s, %+ds, %s)\n",
			clock.FormatElapsed(p.ScheduledArrival),
			p.Route,
			p.Headsign,
			clock.FormatElapsed(p.ExpectedArrival),
			p.ArrivalDelta,
			p.Live.VehicleType,
		)
	}

	return nil
}
