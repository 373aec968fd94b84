// Package calendar creates tentative events on the studio's Google
// calendar for accepted bookings.
package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/internal/events"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// CoachingDuration is the length of a timed coaching event.
const CoachingDuration = 60 * time.Minute

// GoogleCalendar inserts events through the Calendar v3 API.
type GoogleCalendar struct {
	service    *gcal.Service
	calendarID string
	loc        *time.Location
	logger     *logging.Logger
}

// NewGoogleCalendar authenticates with a service-account key file. The
// calendar must be shared with the service account.
func NewGoogleCalendar(ctx context.Context, credentialsFile, calendarID string, loc *time.Location, logger *logging.Logger) (*GoogleCalendar, error) {
	if calendarID == "" {
		return nil, errors.New("calendar: calendar id required")
	}
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("calendar: read credentials: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(creds, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("calendar: parse credentials: %w", err)
	}
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return NewGoogleCalendarWithService(svc, calendarID, loc, logger), nil
}

func NewGoogleCalendarWithService(svc *gcal.Service, calendarID string, loc *time.Location, logger *logging.Logger) *GoogleCalendar {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GoogleCalendar{service: svc, calendarID: calendarID, loc: loc, logger: logger}
}

// Handle implements events.DeliveryHandler for booking.calendar.v1.
func (g *GoogleCalendar) Handle(ctx context.Context, entry events.OutboxEntry) error {
	evt, err := events.DecodeBookingAccepted(entry)
	if err != nil {
		g.logger.Error("calendar: dropping undecodable booking event", "error", err, "event_id", entry.ID)
		return nil
	}
	_, err = g.CreateEvents(ctx, evt)
	return err
}

// CreateEvents inserts one event per requested date and returns their ids.
// Bookings without a date are skipped. Re-running for the same booking is
// safe: event ids are derived from the reference and an existing id counts
// as created.
func (g *GoogleCalendar) CreateEvents(ctx context.Context, evt events.BookingAcceptedV1) ([]string, error) {
	planned, err := BuildEvents(evt, g.loc)
	if err != nil {
		g.logger.Warn("calendar: skipping booking with unusable date", "error", err, "reference", evt.Reference)
		return nil, nil
	}
	if len(planned) == 0 {
		g.logger.Debug("calendar: booking has no date, skipping", "reference", evt.Reference)
		return nil, nil
	}

	ids := make([]string, 0, len(planned))
	for _, e := range planned {
		_, err := g.service.Events.Insert(g.calendarID, e).Context(ctx).Do()
		if err != nil && !isConflict(err) {
			return ids, fmt.Errorf("calendar: insert event for %s: %w", evt.Reference, err)
		}
		ids = append(ids, e.Id)
	}
	g.logger.Info("calendar events created", "reference", evt.Reference, "count", len(ids))
	return ids, nil
}

func isConflict(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}

// BuildEvents plans the calendar entries for a booking. Live singing and
// workshop dates become all-day events; coaching with a preferred time
// becomes a timed event of CoachingDuration in loc.
func BuildEvents(evt events.BookingAcceptedV1, loc *time.Location) ([]*gcal.Event, error) {
	p := evt.Booking
	dates := p.Dates()
	if len(dates) == 0 {
		return nil, nil
	}
	cal := booking.Calendar{Location: loc}
	summary := booking.Summarize(p.FormData(), booking.LangDE)
	title := summary.Service + ": " + p.Contact.Name
	description := describe(evt.Reference, summary)

	out := make([]*gcal.Event, 0, len(dates))
	for _, date := range dates {
		day, err := cal.ParseDate(date)
		if err != nil {
			return nil, err
		}
		e := &gcal.Event{
			Id:          eventID(evt.Reference, date),
			Summary:     title,
			Description: description,
			Status:      "tentative",
		}
		if p.ServiceType == booking.ServiceVocalCoaching && p.PreferredTime != "" {
			start, err := time.ParseInLocation(booking.DateLayout+" 15:04", date+" "+p.PreferredTime, loc)
			if err != nil {
				return nil, fmt.Errorf("calendar: parse time %q: %w", p.PreferredTime, err)
			}
			e.Start = &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()}
			e.End = &gcal.EventDateTime{DateTime: start.Add(CoachingDuration).Format(time.RFC3339), TimeZone: loc.String()}
		} else {
			e.Start = &gcal.EventDateTime{Date: date}
			e.End = &gcal.EventDateTime{Date: day.AddDate(0, 0, 1).Format(booking.DateLayout)}
		}
		out = append(out, e)
	}
	return out, nil
}

// eventID is a valid Calendar id (base32hex alphabet, 5-1024 chars).
func eventID(reference, date string) string {
	sum := sha256.Sum256([]byte(reference + "/" + date))
	return "vb" + hex.EncodeToString(sum[:16])
}

func describe(reference string, s booking.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Referenz: %s\n\n", reference)
	for _, item := range s.Contact {
		fmt.Fprintf(&b, "%s: %s\n", item.Label, item.Value)
	}
	b.WriteString("\n")
	for _, item := range s.Details {
		fmt.Fprintf(&b, "%s: %s\n", item.Label, item.Value)
	}
	return b.String()
}

var _ events.DeliveryHandler = (*GoogleCalendar)(nil)
