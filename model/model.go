package model

// Holds all external facing types and constants.

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type ExceptionType int8

const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

func (e ExceptionType) String() string {
	switch e {
	case ExceptionAdded:
		return "added"
	case ExceptionRemoved:
		return "removed"
	}
	return "unknown"
}

// Current revision of the store layout. Bumped whenever tables or
// columns change, as stores are never migrated in place.
const SchemaVersion = 1

// A weekly service pattern bounded by an inclusive date range. Dates
// are on the form YYYYMMDD, so they sort lexicographically.
type ServiceCalendar struct {
	ID     int64
	Days   Days
	Start  string
	Finish string
}

// A single date override of a ServiceCalendar.
type CalendarException struct {
	ID              int64
	Day             string
	Kind            ExceptionType
	ServicePeriodID int64
}

type Stop struct {
	ID     int64
	Label  string
	Number int
	Name   string
	Lat    float64
	Lon    float64
}

type Route struct {
	ID        int64
	Label     string
	Name      string
	RouteType RouteType
}

type Trip struct {
	ID              int64
	Label           string
	Headsign        string
	Block           int
	RouteID         int64
	ServicePeriodID int64
}

// One scheduled visit of a trip to a stop. Arrival and Departure are
// seconds since midnight of the service day, and can exceed 24 hours
// for trips running past midnight.
type Pickup struct {
	ID        int64
	Arrival   int
	Departure int
	Sequence  int
	TripID    int64
	StopID    int64
}

type Version struct {
	SchemaVersion int
	FeedVersion   string
}

var routeTypeNames = map[RouteType]string{
	RouteTypeTram:       "tram",
	RouteTypeSubway:     "subway",
	RouteTypeRail:       "rail",
	RouteTypeBus:        "bus",
	RouteTypeFerry:      "ferry",
	RouteTypeCable:      "cable",
	RouteTypeAerial:     "aerial",
	RouteTypeFunicular:  "funicular",
	RouteTypeTrolleybus: "trolleybus",
	RouteTypeMonorail:   "monorail",
}

func (t RouteType) String() string {
	if name, ok := routeTypeNames[t]; ok {
		return name
	}
	return "unknown"
}
