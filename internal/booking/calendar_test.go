package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendar_DateRoundTripAcrossZones(t *testing.T) {
	zones := []string{"UTC", "Europe/Berlin", "America/Los_Angeles", "Pacific/Kiritimati", "Pacific/Pago_Pago"}
	dates := []string{"2025-01-01", "2025-03-30", "2025-10-26", "2024-02-29", "2025-12-31"}
	for _, name := range zones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			t.Skipf("zone %s not available: %v", name, err)
		}
		cal := Calendar{Location: loc}
		for _, d := range dates {
			parsed, err := cal.ParseDate(d)
			require.NoError(t, err)
			assert.Equal(t, d, cal.FormatDate(parsed), "zone %s", name)
		}
	}
}

func TestCalendar_FormatDateUsesCalendarZone(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	cal := Calendar{Location: berlin}
	// 23:30 UTC on the 9th is already the 10th in Berlin.
	instant := time.Date(2025, time.June, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-10", cal.FormatDate(instant))
}

func TestCalendar_ParseDateRejectsGarbage(t *testing.T) {
	cal := testCalendar()
	for _, in := range []string{"", "2025-13-01", "2025-02-30", "10.06.2025", "2025-6-1"} {
		_, err := cal.ParseDate(in)
		assert.Error(t, err, in)
	}
}

func TestCalendar_Disabled(t *testing.T) {
	cal := testCalendar()
	day := func(s string) time.Time {
		d, err := cal.ParseDate(s)
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		name string
		svc  ServiceType
		date string
		want bool
	}{
		{"yesterday", ServiceLiveSinging, "2025-06-01", true},
		{"today", ServiceLiveSinging, "2025-06-02", false},
		{"future weekday", ServiceWorkshop, "2025-06-04", false},
		{"saturday live", ServiceLiveSinging, "2025-06-07", false},
		{"saturday workshop", ServiceWorkshop, "2025-06-07", false},
		{"saturday coaching", ServiceVocalCoaching, "2025-06-07", true},
		{"sunday coaching", ServiceVocalCoaching, "2025-06-08", true},
		{"monday coaching", ServiceVocalCoaching, "2025-06-09", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.Disabled(tt.svc, day(tt.date)))
		})
	}
}

func TestCalendar_Days(t *testing.T) {
	cal := testCalendar()
	days := cal.Days(ServiceVocalCoaching, testNow.AddDate(0, 0, -1), 8)
	require.Len(t, days, 8)

	assert.Equal(t, "2025-06-01", days[0].Date)
	assert.True(t, days[0].Disabled)
	assert.Equal(t, "Monday", days[1].Weekday)
	assert.False(t, days[1].Disabled)
	assert.True(t, days[6].Disabled, "saturday")
	assert.True(t, days[7].Disabled, "sunday")

	assert.Nil(t, cal.Days(ServiceWorkshop, testNow, 0))
}

func TestCalendar_ZeroValueUsable(t *testing.T) {
	var cal Calendar
	today := cal.FormatDate(time.Now())
	parsed, err := cal.ParseDate(today)
	require.NoError(t, err)
	assert.False(t, cal.Disabled(ServiceWorkshop, parsed))
}
