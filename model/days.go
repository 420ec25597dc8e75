package model

import (
	"strings"
	"time"
)

// Bitmask of weekdays in service. Bit 0 is Monday and bit 6 is
// Sunday, matching the column order of calendar.txt. Note that this
// differs from time.Weekday, where Sunday is 0.
type Days uint8

const (
	Monday Days = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday

	Weekdays = Monday | Tuesday | Wednesday | Thursday | Friday
	Weekend  = Saturday | Sunday
	AllDays  = Weekdays | Weekend
)

var dayLabels = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// Folds seven Monday-first day flags into a bitmask.
func DaysOf(flags [7]bool) Days {
	var d Days
	for i, on := range flags {
		if on {
			d |= 1 << i
		}
	}
	return d
}

// Converts a time.Weekday into the Monday-first ordinal used by Days.
func FeedWeekday(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// Reports whether the weekday with the given Monday-first ordinal is
// in service.
func (d Days) Contains(ordinal int) bool {
	if ordinal < 0 || ordinal > 6 {
		return false
	}
	return d&(1<<ordinal) != 0
}

// Reports whether the weekday of t is in service.
func (d Days) ContainsDate(t time.Time) bool {
	return d.Contains(FeedWeekday(t.Weekday()))
}

// Labels of all weekdays in service, Monday first.
func (d Days) InService() []string {
	labels := []string{}
	for i, label := range dayLabels {
		if d.Contains(i) {
			labels = append(labels, label)
		}
	}
	return labels
}

func (d Days) Flags() [7]bool {
	var flags [7]bool
	for i := range flags {
		flags[i] = d.Contains(i)
	}
	return flags
}

func (d Days) String() string {
	return strings.Join(d.InService(), ",")
}
