package parse

import (
	"io"

	"tidbyt.dev/transit/clock"
	"tidbyt.dev/transit/model"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	// Headsign      string `csv:"stop_headsign"`
}

func (t *table) elapsed(field, value string) (int, error) {
	secs, err := clock.ParseElapsed(clean(value))
	if err != nil {
		return 0, t.malformed(field, "%s", err)
	}
	return secs, nil
}

func compileStopTimes(t *table, data io.Reader) error {
	return each(t, data, func(st *StopTimeCSV) error {
		tripID, err := t.resolve(model.KindTrip, st.TripID)
		if err != nil {
			return err
		}
		stopID, err := t.resolve(model.KindStop, st.StopID)
		if err != nil {
			return err
		}

		sequence, err := t.integer("stop_sequence", st.StopSequence)
		if err != nil {
			return err
		}

		// Times are optional for stops that aren't timepoints,
		// but one of the two must be there.
		arrivalTime := clean(st.ArrivalTime)
		departureTime := clean(st.DepartureTime)
		if arrivalTime == "" {
			arrivalTime = departureTime
		}
		if departureTime == "" {
			departureTime = arrivalTime
		}
		if arrivalTime == "" {
			return t.malformed("arrival_time", "missing arrival_time and departure_time")
		}

		arrival, err := t.elapsed("arrival_time", arrivalTime)
		if err != nil {
			return err
		}
		departure, err := t.elapsed("departure_time", departureTime)
		if err != nil {
			return err
		}

		err = t.compiler.writer.WritePickup(&model.Pickup{
			Arrival:   arrival,
			Departure: departure,
			Sequence:  sequence,
			TripID:    tripID,
			StopID:    stopID,
		})
		if err != nil {
			return t.failed(err)
		}

		return nil
	})
}
