package model

import "fmt"

// The closed set of entities a feed compiles into. Each kind is
// loaded from exactly one feed table.
type EntityKind int

const (
	KindCalendar EntityKind = iota
	KindCalendarException
	KindStop
	KindRoute
	KindTrip
	KindPickup
)

// Kinds in the order their tables must be compiled.
var CompileOrder = []EntityKind{
	KindCalendar,
	KindCalendarException,
	KindStop,
	KindRoute,
	KindTrip,
	KindPickup,
}

var kindNames = map[EntityKind]string{
	KindCalendar:          "service_period",
	KindCalendarException: "service_exception",
	KindStop:              "stop",
	KindRoute:             "route",
	KindTrip:              "trip",
	KindPickup:            "pickup",
}

var kindTables = map[EntityKind]string{
	KindCalendar:          "calendar.txt",
	KindCalendarException: "calendar_dates.txt",
	KindStop:              "stops.txt",
	KindRoute:             "routes.txt",
	KindTrip:              "trips.txt",
	KindPickup:            "stop_times.txt",
}

func (k EntityKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// Name of the feed file holding records of this kind.
func (k EntityKind) Table() string {
	return kindTables[k]
}

// Maps a feed file name, with or without the .txt suffix, to the
// entity kind it holds.
func KindForTable(name string) (EntityKind, bool) {
	for kind, table := range kindTables {
		if name == table || name+".txt" == table {
			return kind, true
		}
	}
	return 0, false
}
