package parse

import (
	"io"

	"tidbyt.dev/transit/model"
)

type StopCSV struct {
	ID   string `csv:"stop_id"`
	Code string `csv:"stop_code"`
	Name string `csv:"stop_name"`
	Lat  string `csv:"stop_lat"`
	Lon  string `csv:"stop_lon"`
	// Desc          string `csv:"stop_desc"`
	// LocationType  string `csv:"location_type"`
	// ParentStation string `csv:"parent_station"`
}

func compileStops(t *table, data io.Reader) error {
	return each(t, data, func(st *StopCSV) error {
		label, err := t.required("stop_id", st.ID)
		if err != nil {
			return err
		}

		number, err := t.integer("stop_code", st.Code)
		if err != nil {
			return err
		}

		// Coordinates default to 0.0 when absent.
		lat, err := t.float("stop_lat", st.Lat)
		if err != nil {
			return err
		}
		lon, err := t.float("stop_lon", st.Lon)
		if err != nil {
			return err
		}
		if lat < -90 || lat > 90 {
			return t.malformed("stop_lat", "out of range '%f'", lat)
		}
		if lon < -180 || lon > 180 {
			return t.malformed("stop_lon", "out of range '%f'", lon)
		}

		id, err := t.compiler.writer.WriteStop(&model.Stop{
			Label:  label,
			Number: number,
			Name:   clean(st.Name),
			Lat:    lat,
			Lon:    lon,
		})
		if err != nil {
			return t.failed(err)
		}

		t.define(label, id)
		return nil
	})
}
