package parse

import (
	"io"

	"tidbyt.dev/transit/model"
)

type TripCSV struct {
	ID        string `csv:"trip_id"`
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
	Headsign  string `csv:"trip_headsign"`
	BlockID   string `csv:"block_id"`
	// ShortName   string `csv:"trip_short_name"`
	// DirectionID string `csv:"direction_id"`
	// ShapeID     string `csv:"shape_id"`
}

func compileTrips(t *table, data io.Reader) error {
	return each(t, data, func(tr *TripCSV) error {
		label, err := t.required("trip_id", tr.ID)
		if err != nil {
			return err
		}

		routeID, err := t.resolve(model.KindRoute, tr.RouteID)
		if err != nil {
			return err
		}
		servicePeriodID, err := t.resolve(model.KindCalendar, tr.ServiceID)
		if err != nil {
			return err
		}

		block, err := t.integer("block_id", tr.BlockID)
		if err != nil {
			return err
		}

		id, err := t.compiler.writer.WriteTrip(&model.Trip{
			Label:           label,
			Headsign:        clean(tr.Headsign),
			Block:           block,
			RouteID:         routeID,
			ServicePeriodID: servicePeriodID,
		})
		if err != nil {
			return t.failed(err)
		}

		t.define(label, id)
		return nil
	})
}
