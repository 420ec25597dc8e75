package transit

import (
	"fmt"
	"time"

	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/storage"
)

// Controls whether calendar exceptions override the weekly pattern
// of a calendar.
type ExceptionPolicy int

const (
	// Exceptions are not consulted when checking if a calendar
	// is active. Only the date range and weekdays matter.
	ExceptionsIgnore ExceptionPolicy = iota

	// An Added exception makes its calendar active on the day,
	// regardless of range and weekdays. A Removed exception
	// makes it inactive.
	ExceptionsApply
)

func ParseExceptionPolicy(s string) (ExceptionPolicy, error) {
	switch s {
	case "", "ignore":
		return ExceptionsIgnore, nil
	case "apply":
		return ExceptionsApply, nil
	}
	return 0, fmt.Errorf("unknown exception policy '%s'", s)
}

func (p ExceptionPolicy) String() string {
	if p == ExceptionsApply {
		return "apply"
	}
	return "ignore"
}

// Answers which service calendars run on which dates.
type Calendars struct {
	reader storage.ScheduleReader
	clock  clock.Clock
	policy ExceptionPolicy
}

func NewCalendars(reader storage.ScheduleReader, clk clock.Clock, policy ExceptionPolicy) *Calendars {
	return &Calendars{
		reader: reader,
		clock:  clk,
		policy: policy,
	}
}

func (c *Calendars) Policy() ExceptionPolicy {
	return c.policy
}

// Checks the baseline rule: date within range, and weekday in
// service.
func inRangeAndDays(cal model.ServiceCalendar, day string, date time.Time) bool {
	return cal.Start <= day && day <= cal.Finish && cal.Days.ContainsDate(date)
}

// Reports whether cal runs on the date of the given time.
func (c *Calendars) IsActiveOn(cal model.ServiceCalendar, date time.Time) (bool, error) {
	day := clock.FormatDate(date)
	active := inRangeAndDays(cal, day, date)

	if c.policy != ExceptionsApply {
		return active, nil
	}

	exceptions, err := c.reader.CalendarExceptions(day)
	if err != nil {
		return false, fmt.Errorf("getting exceptions: %w", err)
	}
	for _, ex := range exceptions {
		if ex.ServicePeriodID != cal.ID {
			continue
		}
		switch ex.Kind {
		case model.ExceptionAdded:
			active = true
		case model.ExceptionRemoved:
			active = false
		}
	}

	return active, nil
}

// IDs of all calendars active on the date of the given time.
func (c *Calendars) ActiveIDs(date time.Time) (map[int64]bool, error) {
	day := clock.FormatDate(date)

	calendars, err := c.reader.Calendars()
	if err != nil {
		return nil, fmt.Errorf("getting calendars: %w", err)
	}

	active := map[int64]bool{}
	for _, cal := range calendars {
		if inRangeAndDays(cal, day, date) {
			active[cal.ID] = true
		}
	}

	if c.policy != ExceptionsApply {
		return active, nil
	}

	exceptions, err := c.reader.CalendarExceptions(day)
	if err != nil {
		return nil, fmt.Errorf("getting exceptions: %w", err)
	}
	for _, ex := range exceptions {
		switch ex.Kind {
		case model.ExceptionAdded:
			active[ex.ServicePeriodID] = true
		case model.ExceptionRemoved:
			delete(active, ex.ServicePeriodID)
		}
	}

	return active, nil
}

// Returns the calendar in service on the date of the given time, or
// nil if there is none.
//
// An exception on the date takes precedence. Otherwise the first
// calendar (by ID) passing IsActiveOn wins. Well formed feeds have
// at most one candidate, but this is not enforced.
func (c *Calendars) ActiveOn(date time.Time) (*model.ServiceCalendar, error) {
	day := clock.FormatDate(date)

	exceptions, err := c.reader.CalendarExceptions(day)
	if err != nil {
		return nil, fmt.Errorf("getting exceptions: %w", err)
	}

	removed := map[int64]bool{}
	for _, ex := range exceptions {
		if c.policy == ExceptionsApply && ex.Kind == model.ExceptionRemoved {
			removed[ex.ServicePeriodID] = true
			continue
		}

		cal, err := c.reader.Calendar(ex.ServicePeriodID)
		if err != nil {
			return nil, fmt.Errorf("getting calendar %d: %w", ex.ServicePeriodID, err)
		}
		return &cal, nil
	}

	calendars, err := c.reader.Calendars()
	if err != nil {
		return nil, fmt.Errorf("getting calendars: %w", err)
	}

	for _, cal := range calendars {
		if removed[cal.ID] {
			continue
		}
		if inRangeAndDays(cal, day, date) {
			cal := cal
			return &cal, nil
		}
	}

	return nil, nil
}

// The calendar in service today, according to the clock.
func (c *Calendars) Current() (*model.ServiceCalendar, error) {
	return c.ActiveOn(c.clock.Today())
}

func (c *Calendars) Get(id int64) (model.ServiceCalendar, error) {
	return c.reader.Calendar(id)
}

func (c *Calendars) All() ([]model.ServiceCalendar, error) {
	return c.reader.Calendars()
}

type CalendarSummary struct {
	ID     int64    `json:"id"`
	Start  string   `json:"start"`
	Finish string   `json:"finish"`
	Days   []string `json:"days"`
}

func Summarize(cal model.ServiceCalendar) CalendarSummary {
	return CalendarSummary{
		ID:     cal.ID,
		Start:  cal.Start,
		Finish: cal.Finish,
		Days:   cal.Days.InService(),
	}
}
