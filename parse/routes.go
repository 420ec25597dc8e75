package parse

import (
	"io"

	"tidbyt.dev/transit/model"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	ShortName string `csv:"route_short_name"`
	Type      string `csv:"route_type"`
	// AgencyID  string `csv:"agency_id"`
	// LongName  string `csv:"route_long_name"`
	// Color     string `csv:"route_color"`
	// TextColor string `csv:"route_text_color"`
}

func legalRouteType(t model.RouteType) bool {
	if t >= 0 && t <= 7 {
		return true
	}
	if t == 11 || t == 12 {
		return true
	}
	return false
}

func compileRoutes(t *table, data io.Reader) error {
	return each(t, data, func(r *RouteCSV) error {
		label, err := t.required("route_id", r.ID)
		if err != nil {
			return err
		}

		routeType, err := t.integer("route_type", r.Type)
		if err != nil {
			return err
		}
		if !legalRouteType(model.RouteType(routeType)) {
			return t.malformed("route_type", "invalid route_type '%d'", routeType)
		}

		id, err := t.compiler.writer.WriteRoute(&model.Route{
			Label:     label,
			Name:      clean(r.ShortName),
			RouteType: model.RouteType(routeType),
		})
		if err != nil {
			return t.failed(err)
		}

		t.define(label, id)
		return nil
	})
}
