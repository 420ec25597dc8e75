package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tidbyt.dev/transit/model"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	mutex sync.Mutex
	Feeds map[string]*MemoryStorageFeed
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds: map[string]*MemoryStorageFeed{},
	}
}

func (s *MemoryStorage) GetReader(feed string) (ScheduleReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.Feeds[feed]
	if !ok {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (ScheduleWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f := &MemoryStorageFeed{
		nextID: map[model.EntityKind]int64{},
	}
	f.reindex()

	s.Feeds[feed] = f

	return f, nil
}

type memoryMarks struct {
	kind       model.EntityKind
	calendars  int
	exceptions int
	stops      int
	routes     int
	trips      int
	pickups    int
}

type MemoryStorageFeed struct {
	mutex sync.RWMutex

	version    model.Version
	calendars  []model.ServiceCalendar
	exceptions []model.CalendarException
	stops      []model.Stop
	routes     []model.Route
	trips      []model.Trip
	pickups    []model.Pickup

	calendarByID  map[int64]int
	stopByID      map[int64]int
	stopByNumber  map[int]int
	stopByLabel   map[string]int
	routeByID     map[int64]int
	tripByID      map[int64]int
	pickupsByStop map[int64][]int
	pickupsByTrip map[int64][]int

	// IDs are never handed out twice, even if the write that
	// claimed them was rolled back.
	nextID map[model.EntityKind]int64
	tx     *memoryMarks
}

func (f *MemoryStorageFeed) reindex() {
	f.calendarByID = map[int64]int{}
	f.stopByID = map[int64]int{}
	f.stopByNumber = map[int]int{}
	f.stopByLabel = map[string]int{}
	f.routeByID = map[int64]int{}
	f.tripByID = map[int64]int{}
	f.pickupsByStop = map[int64][]int{}
	f.pickupsByTrip = map[int64][]int{}

	for i, cal := range f.calendars {
		f.calendarByID[cal.ID] = i
	}
	for i := range f.stops {
		f.indexStop(i)
	}
	for i, route := range f.routes {
		f.routeByID[route.ID] = i
	}
	for i, trip := range f.trips {
		f.tripByID[trip.ID] = i
	}
	for i := range f.pickups {
		f.indexPickup(i)
	}
}

func (f *MemoryStorageFeed) indexStop(i int) {
	stop := f.stops[i]
	f.stopByID[stop.ID] = i
	if _, found := f.stopByNumber[stop.Number]; !found {
		f.stopByNumber[stop.Number] = i
	}
	if _, found := f.stopByLabel[stop.Label]; !found {
		f.stopByLabel[stop.Label] = i
	}
}

func (f *MemoryStorageFeed) indexPickup(i int) {
	p := f.pickups[i]
	f.pickupsByStop[p.StopID] = append(f.pickupsByStop[p.StopID], i)
	f.pickupsByTrip[p.TripID] = append(f.pickupsByTrip[p.TripID], i)
}

func (f *MemoryStorageFeed) claimID(kind model.EntityKind) int64 {
	f.nextID[kind]++
	return f.nextID[kind]
}

func (f *MemoryStorageFeed) Begin(kind model.EntityKind) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx != nil {
		return ErrTransactionActive
	}

	f.tx = &memoryMarks{
		kind:       kind,
		calendars:  len(f.calendars),
		exceptions: len(f.exceptions),
		stops:      len(f.stops),
		routes:     len(f.routes),
		trips:      len(f.trips),
		pickups:    len(f.pickups),
	}
	return nil
}

func (f *MemoryStorageFeed) Commit() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return ErrNoTransaction
	}
	f.tx = nil
	return nil
}

func (f *MemoryStorageFeed) Rollback() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return ErrNoTransaction
	}

	f.calendars = f.calendars[:f.tx.calendars]
	f.exceptions = f.exceptions[:f.tx.exceptions]
	f.stops = f.stops[:f.tx.stops]
	f.routes = f.routes[:f.tx.routes]
	f.trips = f.trips[:f.tx.trips]
	f.pickups = f.pickups[:f.tx.pickups]
	f.reindex()

	f.tx = nil
	return nil
}

func (f *MemoryStorageFeed) WriteCalendar(cal *model.ServiceCalendar) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return 0, ErrNoTransaction
	}

	c := *cal
	c.ID = f.claimID(model.KindCalendar)
	f.calendars = append(f.calendars, c)
	f.calendarByID[c.ID] = len(f.calendars) - 1
	return c.ID, nil
}

func (f *MemoryStorageFeed) WriteCalendarException(ex *model.CalendarException) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return 0, ErrNoTransaction
	}

	e := *ex
	e.ID = f.claimID(model.KindCalendarException)
	f.exceptions = append(f.exceptions, e)
	return e.ID, nil
}

func (f *MemoryStorageFeed) WriteStop(stop *model.Stop) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return 0, ErrNoTransaction
	}

	s := *stop
	s.ID = f.claimID(model.KindStop)
	f.stops = append(f.stops, s)
	f.indexStop(len(f.stops) - 1)
	return s.ID, nil
}

func (f *MemoryStorageFeed) WriteRoute(route *model.Route) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return 0, ErrNoTransaction
	}

	r := *route
	r.ID = f.claimID(model.KindRoute)
	f.routes = append(f.routes, r)
	f.routeByID[r.ID] = len(f.routes) - 1
	return r.ID, nil
}

func (f *MemoryStorageFeed) WriteTrip(trip *model.Trip) (int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return 0, ErrNoTransaction
	}

	t := *trip
	t.ID = f.claimID(model.KindTrip)
	f.trips = append(f.trips, t)
	f.tripByID[t.ID] = len(f.trips) - 1
	return t.ID, nil
}

func (f *MemoryStorageFeed) WritePickup(pickup *model.Pickup) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx == nil {
		return ErrNoTransaction
	}

	p := *pickup
	p.ID = f.claimID(model.KindPickup)
	f.pickups = append(f.pickups, p)
	f.indexPickup(len(f.pickups) - 1)
	return nil
}

func (f *MemoryStorageFeed) WriteVersion(version model.Version) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.version = version
	return nil
}

// Indexes are maintained on every write.
func (f *MemoryStorageFeed) CreateIndexes() error {
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.tx != nil {
		return fmt.Errorf("closing with open %s transaction", f.tx.kind)
	}
	return nil
}

func (f *MemoryStorageFeed) Version() (model.Version, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if f.version.SchemaVersion == 0 {
		return model.Version{}, ErrNotFound
	}
	return f.version, nil
}

func (f *MemoryStorageFeed) Calendars() ([]model.ServiceCalendar, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return append([]model.ServiceCalendar{}, f.calendars...), nil
}

func (f *MemoryStorageFeed) Calendar(id int64) (model.ServiceCalendar, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	i, found := f.calendarByID[id]
	if !found {
		return model.ServiceCalendar{}, ErrNotFound
	}
	return f.calendars[i], nil
}

func (f *MemoryStorageFeed) CalendarExceptions(day string) ([]model.CalendarException, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	exceptions := []model.CalendarException{}
	for _, ex := range f.exceptions {
		if ex.Day == day {
			exceptions = append(exceptions, ex)
		}
	}
	return exceptions, nil
}

func (f *MemoryStorageFeed) Stops() ([]model.Stop, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return append([]model.Stop{}, f.stops...), nil
}

func (f *MemoryStorageFeed) StopByNumber(number int) (model.Stop, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	i, found := f.stopByNumber[number]
	if !found {
		return model.Stop{}, ErrNotFound
	}
	return f.stops[i], nil
}

func (f *MemoryStorageFeed) StopByLabel(label string) (model.Stop, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	i, found := f.stopByLabel[label]
	if !found {
		return model.Stop{}, ErrNotFound
	}
	return f.stops[i], nil
}

func (f *MemoryStorageFeed) StopsByName(fragment string) ([]model.Stop, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	fragment = strings.ToLower(fragment)
	stops := []model.Stop{}
	for _, stop := range f.stops {
		if strings.Contains(strings.ToLower(stop.Name), fragment) {
			stops = append(stops, stop)
		}
	}
	return stops, nil
}

func (f *MemoryStorageFeed) Routes() ([]model.Route, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return append([]model.Route{}, f.routes...), nil
}

func (f *MemoryStorageFeed) Route(id int64) (model.Route, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	i, found := f.routeByID[id]
	if !found {
		return model.Route{}, ErrNotFound
	}
	return f.routes[i], nil
}

func (f *MemoryStorageFeed) Trip(id int64) (model.Trip, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	i, found := f.tripByID[id]
	if !found {
		return model.Trip{}, ErrNotFound
	}
	return f.trips[i], nil
}

func (f *MemoryStorageFeed) PickupEvents(filter PickupFilter) ([]*PickupEvent, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	var candidates []int
	if filter.StopID != 0 {
		candidates = f.pickupsByStop[filter.StopID]
	} else if filter.TripID != 0 {
		candidates = f.pickupsByTrip[filter.TripID]
	} else {
		candidates = make([]int, len(f.pickups))
		for i := range f.pickups {
			candidates[i] = i
		}
	}

	events := []*PickupEvent{}
	for _, i := range candidates {
		p := f.pickups[i]
		if !filter.Matches(&p) {
			continue
		}

		ti, found := f.tripByID[p.TripID]
		if !found {
			continue
		}
		trip := f.trips[ti]
		ri, found := f.routeByID[trip.RouteID]
		if !found {
			continue
		}
		si, found := f.stopByID[p.StopID]
		if !found {
			continue
		}

		events = append(events, &PickupEvent{
			Pickup: p,
			Trip:   trip,
			Route:  f.routes[ri],
			Stop:   f.stops[si],
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Pickup.Arrival != events[j].Pickup.Arrival {
			return events[i].Pickup.Arrival < events[j].Pickup.Arrival
		}
		return events[i].Pickup.ID < events[j].Pickup.ID
	})

	return events, nil
}
