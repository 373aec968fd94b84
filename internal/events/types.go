package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfman30/vocal-booking/internal/booking"
)

// Outbox event types written when a booking is accepted.
const (
	TypeBookingEmail     = "booking.email.v1"
	TypeBookingCalendar  = "booking.calendar.v1"
	TypeBookingArchive   = "booking.archive.v1"
	TypeBookingSubmitted = "booking.submitted.v1"
)

// BookingTypes lists every integration event in the order they are written.
var BookingTypes = []string{TypeBookingEmail, TypeBookingCalendar, TypeBookingArchive, TypeBookingSubmitted}

// BookingAcceptedV1 is the outbox payload shared by every booking event type.
type BookingAcceptedV1 struct {
	EventID    string          `json:"event_id"`
	BookingID  string          `json:"booking_id"`
	Reference  string          `json:"reference"`
	ReceivedAt time.Time       `json:"received_at"`
	Booking    booking.Payload `json:"booking"`
}

// DecodeBookingAccepted parses an outbox entry written for a booking.
func DecodeBookingAccepted(entry OutboxEntry) (BookingAcceptedV1, error) {
	var evt BookingAcceptedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		return BookingAcceptedV1{}, fmt.Errorf("events: decode %s: %w", entry.Type, err)
	}
	if evt.Reference == "" {
		return BookingAcceptedV1{}, fmt.Errorf("events: decode %s: missing reference", entry.Type)
	}
	return evt, nil
}
