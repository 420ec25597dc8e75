package transit

import (
	"fmt"
	"sort"

	"tidbyt.dev/transit/model"
	"tidbyt.dev/transit/storage"
)

type StopDistance struct {
	Stop   model.Stop `json:"stop"`
	Meters int        `json:"distance"`
}

type measured struct {
	stop   model.Stop
	meters float64
}

// Distance from lat,lon to every stop, skipping the stop with ID
// ignoreStopID.
func measureStops(reader storage.ScheduleReader, lat float64, lon float64, ignoreStopID int64) ([]measured, error) {
	stops, err := reader.Stops()
	if err != nil {
		return nil, fmt.Errorf("getting stops: %w", err)
	}

	result := make([]measured, 0, len(stops))
	for _, st := range stops {
		if ignoreStopID != 0 && st.ID == ignoreStopID {
			continue
		}
		result = append(result, measured{
			stop:   st,
			meters: storage.MetersTo(st, lat, lon),
		})
	}
	return result, nil
}

// Returns stops within the given number of meters from lat,lon,
// nearest first. Pass the ID of a stop as ignoreStopID to search
// around that stop without finding it.
func Nearby(reader storage.ScheduleReader, lat float64, lon float64, meters int, ignoreStopID int64) ([]StopDistance, error) {
	all, err := measureStops(reader, lat, lon, ignoreStopID)
	if err != nil {
		return nil, err
	}

	within := []measured{}
	for _, m := range all {
		if m.meters <= float64(meters) {
			within = append(within, m)
		}
	}

	sort.SliceStable(within, func(i, j int) bool {
		return within[i].meters < within[j].meters
	})

	result := make([]StopDistance, 0, len(within))
	for _, m := range within {
		result = append(result, StopDistance{Stop: m.stop, Meters: int(m.meters)})
	}
	return result, nil
}

// Returns the stop nearest to lat,lon, or nil if there are no stops.
func Closest(reader storage.ScheduleReader, lat float64, lon float64, ignoreStopID int64) (*StopDistance, error) {
	all, err := measureStops(reader, lat, lon, ignoreStopID)
	if err != nil {
		return nil, err
	}

	var closest *measured
	for i := range all {
		if closest == nil || all[i].meters < closest.meters {
			closest = &all[i]
		}
	}
	if closest == nil {
		return nil, nil
	}

	return &StopDistance{Stop: closest.stop, Meters: int(closest.meters)}, nil
}
