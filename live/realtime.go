package live

import (
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"
)

type StopTimeUpdate struct {
	StopID       string
	StopSequence uint32

	// Zero if not provided.
	Arrival   time.Time
	Departure time.Time

	Skipped bool
}

// Predictions for a single trip.
type TripUpdate struct {
	TripID       string
	RouteID      string
	StartTime    string
	StartDate    string
	VehicleID    string
	VehicleLabel string
	Timestamp    uint64
	Updates      []StopTimeUpdate
}

type VehiclePosition struct {
	TripID    string
	VehicleID string
	Lat       float64
	Lon       float64
	Speed     float64 // meters per second
	Timestamp uint64
}

// Contains key data from one or more GTFS Realtime feeds.
type Snapshot struct {
	// Timestamp of the feed. If loaded from multiple feeds, the
	// last one wins.
	Timestamp uint64

	Trips         []*TripUpdate
	CanceledTrips map[string]bool

	// Vehicle positions keyed by trip ID.
	Vehicles map[string]*VehiclePosition

	// These exist to simplify debugging down the road
	NumScheduledTrips   int
	NumAddedTrips       int
	NumUnscheduledTrips int
	NumCanceledTrips    int
	NumDuplicatedTrips  int
}

func ParseFeeds(feeds [][]byte) (*Snapshot, error) {
	s := &Snapshot{
		Trips:         []*TripUpdate{},
		CanceledTrips: map[string]bool{},
		Vehicles:      map[string]*VehiclePosition{},
	}

	for _, feed := range feeds {
		f := &gtfsproto.FeedMessage{}
		err := proto.Unmarshal(feed, f)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
		}

		header := f.GetHeader()

		version := header.GetGtfsRealtimeVersion()
		if version != "2.0" && version != "1.0" {
			return nil, fmt.Errorf("version %s not supported", version)
		}

		if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
			return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
		}

		s.Timestamp = header.GetTimestamp()

		for _, entity := range f.GetEntity() {
			if entity.TripUpdate != nil {
				err = s.processTripUpdate(entity.TripUpdate)
				if err != nil {
					return nil, fmt.Errorf("processing entity %s: %w", entity.GetId(), err)
				}
			}
			if entity.Vehicle != nil {
				s.processVehicle(entity.Vehicle)
			}
		}
	}

	return s, nil
}

func (s *Snapshot) processTripUpdate(tu *gtfsproto.TripUpdate) error {
	trip := tu.GetTrip()
	if trip == nil {
		return fmt.Errorf("trip_update missing trip")
	}

	// Blank trip ID is allowed when (route_id, direction_id,
	// start_time, start_date) identifies the trip. Matching is
	// done on route and stop, so these are kept.
	tripID := trip.GetTripId()

	switch trip.GetScheduleRelationship() {

	case gtfsproto.TripDescriptor_SCHEDULED:
		update := &TripUpdate{
			TripID:       tripID,
			RouteID:      trip.GetRouteId(),
			StartTime:    trip.GetStartTime(),
			StartDate:    trip.GetStartDate(),
			VehicleID:    tu.GetVehicle().GetId(),
			VehicleLabel: tu.GetVehicle().GetLabel(),
			Timestamp:    tu.GetTimestamp(),
			Updates:      []StopTimeUpdate{},
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			err := update.processStopTimeUpdate(stu)
			if err != nil {
				return fmt.Errorf("processing stop time update: %w", err)
			}
		}
		s.Trips = append(s.Trips, update)
		s.NumScheduledTrips++

	case gtfsproto.TripDescriptor_ADDED:
		// An extra trip that's been added. Not supported!
		s.NumAddedTrips++

	case gtfsproto.TripDescriptor_UNSCHEDULED:
		// For frequency based trips only. Not supported!
		s.NumUnscheduledTrips++

	case gtfsproto.TripDescriptor_CANCELED:
		s.CanceledTrips[tripID] = true
		s.NumCanceledTrips++

	case gtfsproto.TripDescriptor_DUPLICATED:
		s.NumDuplicatedTrips++
	}

	return nil
}

func unixTime(event *gtfsproto.TripUpdate_StopTimeEvent) time.Time {
	if event == nil || event.GetTime() == 0 {
		return time.Time{}
	}
	return time.Unix(event.GetTime(), 0).UTC()
}

func (t *TripUpdate) processStopTimeUpdate(update *gtfsproto.TripUpdate_StopTimeUpdate) error {
	stu := StopTimeUpdate{
		StopID:       update.GetStopId(),
		StopSequence: update.GetStopSequence(),
		Arrival:      unixTime(update.GetArrival()),
		Departure:    unixTime(update.GetDeparture()),
	}

	if stu.StopID == "" && stu.StopSequence == 0 {
		// StopSequence 0 is legal in GTFS-realtime, so this may
		// reject valid updates.
		return fmt.Errorf("stop_time_update missing stop_id and stop_sequence")
	}

	switch update.GetScheduleRelationship() {
	case gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED:
		t.Updates = append(t.Updates, stu)
	case gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED:
		stu.Skipped = true
		t.Updates = append(t.Updates, stu)
	case gtfsproto.TripUpdate_StopTimeUpdate_NO_DATA:
		// Nothing to predict from
	case gtfsproto.TripUpdate_StopTimeUpdate_UNSCHEDULED:
		// For frequency based trips. Not supported!
	}

	return nil
}

func (s *Snapshot) processVehicle(vp *gtfsproto.VehiclePosition) {
	tripID := vp.GetTrip().GetTripId()
	if tripID == "" || vp.Position == nil {
		return
	}

	s.Vehicles[tripID] = &VehiclePosition{
		TripID:    tripID,
		VehicleID: vp.GetVehicle().GetId(),
		Lat:       float64(vp.GetPosition().GetLatitude()),
		Lon:       float64(vp.GetPosition().GetLongitude()),
		Speed:     float64(vp.GetPosition().GetSpeed()),
		Timestamp: vp.GetTimestamp(),
	}
}
