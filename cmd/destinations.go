package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit"
	"tidbyt.dev/transit/clock"
)

var destinationsCmd = &cobra.Command{
	Use:   "destinations <trip_id> <sequence>",
	Short: "Lists the stops a trip makes after a given pickup",
	Args:  cobra.ExactArgs(2),
	RunE:  destinations,
}

var destinationRange int

func init() {
	destinationsCmd.Flags().IntVarP(&destinationRange, "range", "n", 10, "How many sequence numbers ahead to look")
	rootCmd.AddCommand(destinationsCmd)
}

func destinations(cmd *cobra.Command, args []string) error {
	tripID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid trip id: %w", err)
	}
	sequence, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid sequence: %w", err)
	}

	schedule, err := loadSchedule(context.Background())
	if err != nil {
		return err
	}

	from, err := schedule.PickupAt(tripID, sequence)
	if err != nil {
		return fmt.Errorf("pickup %d/%d: %w", tripID, sequence, err)
	}

	events, err := schedule.NextInSequence(from.Pickup, destinationRange)
	if err != nil {
		return err
	}
	details := transit.Describe(events)

	if outputJSON {
		return printJSON(details)
	}

	for _, d := range details {
		fmt.Printf("%s %5d %s\n", clock.FormatElapsed(d.Arrival), d.StopNumber, d.StopName)
	}

	return nil
}
