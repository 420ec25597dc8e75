package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/transit"
)

var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "Lists service calendars, marking the one in service today",
	Args:  cobra.NoArgs,
	RunE:  calendars,
}

func init() {
	rootCmd.AddCommand(calendarsCmd)
}

func calendars(cmd *cobra.Command, args []string) error {
	schedule, err := loadSchedule(context.Background())
	if err != nil {
		return err
	}

	all, err := schedule.Calendars.All()
	if err != nil {
		return err
	}

	current, err := schedule.Calendars.Current()
	if err != nil {
		return err
	}

	if outputJSON {
		type entry struct {
			transit.CalendarSummary
			Current bool `json:"current"`
		}
		entries := []entry{}
		for _, cal := range all {
			entries = append(entries, entry{
				CalendarSummary: transit.Summarize(cal),
				Current:         current != nil && current.ID == cal.ID,
			})
		}
		return printJSON(entries)
	}

	for _, cal := range all {
		s := transit.Summarize(cal)
		marker := " "
		if current != nil && current.ID == cal.ID {
			marker = "*"
		}
		fmt.Printf("%s %4d %s-%s %s\n", marker, s.ID, s.Start, s.Finish, strings.Join(s.Days, ","))
	}

	return nil
}
