package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supplies "now" in a fixed time zone. Everything that needs the
// current date or time of day takes a Clock, so tests can pin it.
type Clock interface {
	// Midnight of the current date in the clock's location.
	Today() time.Time

	// Seconds elapsed since midnight of the current date.
	ElapsedSecondsSinceMidnight() int

	Location() *time.Location
}

type systemClock struct {
	location *time.Location
	now      func() time.Time
}

// Returns a Clock reading the system time in the given location. A
// nil location means UTC.
func System(location *time.Location) Clock {
	if location == nil {
		location = time.UTC
	}
	return &systemClock{location: location, now: time.Now}
}

func (c *systemClock) Today() time.Time {
	return Midnight(c.now().In(c.location))
}

func (c *systemClock) ElapsedSecondsSinceMidnight() int {
	now := c.now().In(c.location)
	return int(now.Sub(Midnight(now)) / time.Second)
}

func (c *systemClock) Location() *time.Location {
	return c.location
}

// A Clock stopped at a given instant.
type Fixed struct {
	Now time.Time
}

func (c Fixed) Today() time.Time {
	return Midnight(c.Now)
}

func (c Fixed) ElapsedSecondsSinceMidnight() int {
	return int(c.Now.Sub(Midnight(c.Now)) / time.Second)
}

func (c Fixed) Location() *time.Location {
	return c.Now.Location()
}

// Midnight of the date of t, in t's location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Parses a feed date on the form YYYYMMDD.
func ParseDate(s string, location *time.Location) (time.Time, error) {
	if location == nil {
		location = time.UTC
	}
	t, err := time.ParseInLocation("20060102", s, location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s'", s)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format("20060102")
}

// Parses H:MM:SS into seconds elapsed since midnight. Hours may
// exceed 23, for trips running past midnight.
func ParseElapsed(s string) (int, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 3 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}
	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}
	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid second in '%s'", s)
	}

	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

// Formats seconds since midnight as H:MM:SS.
func FormatElapsed(secs int) string {
	sign := ""
	if secs < 0 {
		sign = "-"
		secs = -secs
	}
	return fmt.Sprintf("%s%d:%02d:%02d", sign, secs/3600, (secs/60)%60, secs%60)
}

// Parses H:MM, as used for trip start times by some realtime feeds.
func ParseHourMinute(s string) (int, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 2 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}
	h, errH := strconv.Atoi(split[0])
	m, errM := strconv.Atoi(split[1])
	if errH != nil || errM != nil || h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time '%s'", s)
	}
	return h*3600 + m*60, nil
}
