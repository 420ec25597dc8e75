package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/transit/model"
)

func TestCalendar(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  string
		expected []model.ServiceCalendar
		field    string
	}{
		{
			"minimal",
			`
service_id,start_date,end_date
s,20170101,20170131`,
			[]model.ServiceCalendar{
				{ID: 1, Days: 0, Start: "20170101", Finish: "20170131"},
			},
			"",
		},

		{
			"maximal",
			`
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
s,1,1,1,1,1,1,1,20170101,20170131`,
			[]model.ServiceCalendar{
				{ID: 1, Days: model.AllDays, Start: "20170101", Finish: "20170131"},
			},
			"",
		},

		{
			"multiple services",
			`
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
s1,1,1,1,1,1,1,1,20170101,20170131
s2,1,1,1,1,1,0,0,20171001,20180201
s3,1,1,0,1,1,0,1,20161225,20170202
s4,0,0,0,0,0,1,0,20120331,20120421`,
			[]model.ServiceCalendar{
				{ID: 1, Days: 127, Start: "20170101", Finish: "20170131"},
				{ID: 2, Days: 31, Start: "20171001", Finish: "20180201"},
				{ID: 3, Days: 127 ^ model.Wednesday ^ model.Saturday, Start: "20161225", Finish: "20170202"},
				{ID: 4, Days: 32, Start: "20120331", Finish: "20120421"},
			},
			"",
		},

		{
			"single day range",
			`
service_id,monday,tuesday,wednesday,thursday,friday,start_date,end_date
s,1,1,1,1,1,20120409,20120409`,
			[]model.ServiceCalendar{
				{ID: 1, Days: model.Weekdays, Start: "20120409", Finish: "20120409"},
			},
			"",
		},

		{
			"invalid weekday",
			`
service_id,monday,tuesday,start_date,end_date
s,1,3,20170101,20170131`,
			nil, "tuesday",
		},

		{
			"malformed weekday",
			`
service_id,thursday,start_date,end_date
s,X,20170101,20170131`,
			nil, "thursday",
		},

		{
			"invalid date",
			`
service_id,monday,tuesday,start_date,end_date
s,1,1,20170101,20170132`,
			nil, "end_date",
		},

		{
			"missing date",
			`
service_id,monday,end_date
s,1,20170131`,
			nil, "start_date",
		},

		{
			"start after end",
			`
service_id,monday,start_date,end_date
s,1,20170201,20170131`,
			nil, "end_date",
		},

		{
			"missing service_id",
			`
service_id,monday,start_date,end_date
,1,20170101,20170131`,
			nil, "service_id",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, reader := newCompiler(t)

			err := c.Compile(model.KindCalendar, strings.NewReader(tc.content), nil)
			if tc.field != "" {
				var malformed *MalformedRowError
				require.ErrorAs(t, err, &malformed)
				assert.Equal(t, tc.field, malformed.Field)
				assert.Equal(t, model.KindCalendar, malformed.Kind)

				calendars, err := reader.Calendars()
				require.NoError(t, err)
				assert.Equal(t, 0, len(calendars))
				return
			}
			require.NoError(t, err)

			calendars, err := reader.Calendars()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, calendars)
		})
	}
}
