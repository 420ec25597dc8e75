package parse

import (
	"io"

	"tidbyt.dev/transit/model"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
}

var weekdayColumns = [7]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

func compileCalendar(t *table, data io.Reader) error {
	return each(t, data, func(c *CalendarCSV) error {
		serviceID, err := t.required("service_id", c.ServiceID)
		if err != nil {
			return err
		}

		var flags [7]bool
		values := [7]string{c.Monday, c.Tuesday, c.Wednesday, c.Thursday, c.Friday, c.Saturday, c.Sunday}
		for i, value := range values {
			flags[i], err = t.flag(weekdayColumns[i], value)
			if err != nil {
				return err
			}
		}

		start, err := t.date("start_date", c.StartDate)
		if err != nil {
			return err
		}
		finish, err := t.date("end_date", c.EndDate)
		if err != nil {
			return err
		}
		if start > finish {
			return t.malformed("end_date", "'%s' precedes start_date '%s'", finish, start)
		}

		id, err := t.compiler.writer.WriteCalendar(&model.ServiceCalendar{
			Days:   model.DaysOf(flags),
			Start:  start,
			Finish: finish,
		})
		if err != nil {
			return t.failed(err)
		}

		t.define(serviceID, id)
		return nil
	})
}
