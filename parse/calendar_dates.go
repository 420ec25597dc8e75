package parse

import (
	"io"

	"tidbyt.dev/transit/model"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

func compileCalendarDates(t *table, data io.Reader) error {
	return each(t, data, func(cd *CalendarDateCSV) error {
		servicePeriodID, err := t.resolve(model.KindCalendar, cd.ServiceID)
		if err != nil {
			return err
		}

		day, err := t.date("date", cd.Date)
		if err != nil {
			return err
		}

		exceptionType, err := t.integer("exception_type", cd.ExceptionType)
		if err != nil {
			return err
		}
		kind := model.ExceptionType(exceptionType)
		if kind != model.ExceptionAdded && kind != model.ExceptionRemoved {
			return t.malformed("exception_type", "illegal exception_type '%d'", exceptionType)
		}

		_, err = t.compiler.writer.WriteCalendarException(&model.CalendarException{
			Day:             day,
			Kind:            kind,
			ServicePeriodID: servicePeriodID,
		})
		if err != nil {
			return t.failed(err)
		}

		return nil
	})
}
