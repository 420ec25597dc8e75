package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit"
)

var stopsCmd = &cobra.Command{
	Use:   "stops <name>",
	Short: "Lists stops with names containing a fragment",
	Args:  cobra.ExactArgs(1),
	RunE:  stops,
}

var nearbyCmd = &cobra.Command{
	Use:   "nearby <lat> <lng> | nearby <stop_number>",
	Short: "Lists stops near a geographical location or another stop",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  nearby,
}

var (
	nearbyMeters int
	closestOnly  bool
)

func init() {
	nearbyCmd.Flags().IntVarP(&nearbyMeters, "meters", "m", 500, "Search radius in meters")
	nearbyCmd.Flags().BoolVarP(&closestOnly, "closest", "", false, "Only show the closest stop")
	rootCmd.AddCommand(stopsCmd)
	rootCmd.AddCommand(nearbyCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	schedule, err := loadSchedule(context.Background())
	if err != nil {
		return err
	}

	stops, err := schedule.StopsByName(args[0])
	if err != nil {
		return err
	}

	sort.Slice(stops, func(i, j int) bool {
		return stops[i].Name < stops[j].Name
	})

	if outputJSON {
		return printJSON(stops)
	}

	for _, stop := range stops {
		fmt.Printf("%5d %s: %s\n", stop.Number, stop.Label, stop.Name)
	}

	return nil
}

func nearby(cmd *cobra.Command, args []string) error {
	schedule, err := loadSchedule(context.Background())
	if err != nil {
		return err
	}

	var lat, lng float64
	var ignore int64

	if len(args) == 1 {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid stop number: %w", err)
		}
		origin, err := schedule.Stop(number)
		if err != nil {
			return fmt.Errorf("stop %d: %w", number, err)
		}
		lat, lng, ignore = origin.Lat, origin.Lon, origin.ID
	} else {
		lat, err = strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid lat: %w", err)
		}
		lng, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid lng: %w", err)
		}
	}

	var found []transit.StopDistance
	if closestOnly {
		closest, err := transit.Closest(schedule.Reader, lat, lng, ignore)
		if err != nil {
			return err
		}
		if closest != nil {
			found = append(found, *closest)
		}
	} else {
		found, err = transit.Nearby(schedule.Reader, lat, lng, nearbyMeters, ignore)
		if err != nil {
			return err
		}
	}

	if outputJSON {
		return printJSON(found)
	}

	for _, sd := range found {
		fmt.Printf("%5dm %5d %s\n", sd.Meters, sd.Stop.Number, sd.Stop.Name)
	}

	return nil
}
