package booking

import (
	"fmt"
	"regexp"
	"time"
)

// DateLayout is the ISO calendar-day format used for every date field.
const DateLayout = "2006-01-02"

var timeOfDayPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Calendar answers date-picker questions in the studio's time zone. The
// zero value uses the local zone and the wall clock.
type Calendar struct {
	Location *time.Location
	Now      func() time.Time
}

// Day is one cell of the date picker.
type Day struct {
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Disabled bool   `json:"disabled"`
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c Calendar) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Today returns midnight of the current calendar day.
func (c Calendar) Today() time.Time {
	return c.startOfDay(c.now())
}

func (c Calendar) startOfDay(t time.Time) time.Time {
	t = t.In(c.location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location())
}

// FormatDate renders the calendar day of t, as seen in the calendar's zone.
func (c Calendar) FormatDate(t time.Time) string {
	return t.In(c.location()).Format(DateLayout)
}

// ParseDate parses an ISO date into midnight of that day in the calendar's
// zone, so FormatDate(ParseDate(s)) == s.
func (c Calendar) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, c.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("booking: parse date %q: %w", s, err)
	}
	return t, nil
}

// Disabled reports whether day cannot be picked for svc. Past days are
// disabled for every service; weekends are also disabled for coaching.
func (c Calendar) Disabled(svc ServiceType, day time.Time) bool {
	d := c.startOfDay(day)
	if d.Before(c.Today()) {
		return true
	}
	if svc == ServiceVocalCoaching {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			return true
		}
	}
	return false
}

// Days builds the picker grid of n consecutive days starting at from.
func (c Calendar) Days(svc ServiceType, from time.Time, n int) []Day {
	if n <= 0 {
		return nil
	}
	start := c.startOfDay(from)
	days := make([]Day, 0, n)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		days = append(days, Day{
			Date:     d.Format(DateLayout),
			Weekday:  d.Weekday().String(),
			Disabled: c.Disabled(svc, d),
		})
	}
	return days
}

// checkDate validates an ISO date field value. The empty string means the
// picker was cleared and is accepted.
func (c Calendar) checkDate(field string, svc ServiceType, value string) []Issue {
	if value == "" {
		return nil
	}
	d, err := c.ParseDate(value)
	if err != nil {
		return []Issue{{Field: field, Code: CodeInvalid, Message: "expected a date in YYYY-MM-DD format"}}
	}
	if c.Disabled(svc, d) {
		return []Issue{{Field: field, Code: CodeDateUnavailable, Message: value + " is not available"}}
	}
	return nil
}

func validTimeOfDay(s string) bool {
	return timeOfDayPattern.MatchString(s)
}
