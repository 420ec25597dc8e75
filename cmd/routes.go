package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit/clock"
)

var routesCmd = &cobra.Command{
	Use:   "routes <stop_number>",
	Short: "Summarizes the routes serving a stop",
	Args:  cobra.ExactArgs(1),
	RunE:  routes,
}

var inService bool

func init() {
	routesCmd.Flags().BoolVarP(&inService, "in-service", "", false, "Only include trips in service today")
	rootCmd.AddCommand(routesCmd)
}

func routes(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid stop number: %w", err)
	}

	schedule, err := loadSchedule(context.Background())
	if err != nil {
		return err
	}

	summaries, err := schedule.RoutesAt(number, inService)
	if err != nil {
		return fmt.Errorf("stop %d: %w", number, err)
	}

	if outputJSON {
		return printJSON(summaries)
	}

	for _, s := range summaries {
		times := make([]string, 0, len(s.Arrivals))
		for _, a := range s.Arrivals {
			times = append(times, clock.FormatElapsed(a))
		}
		fmt.Printf("%s %s [%s]\n", s.Route, s.Headsign, strings.Join(s.Days, ","))
		fmt.Printf("  %s\n", strings.Join(times, " "))
	}

	return nil
}
