package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/internal/events"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

type mockEmailSender struct {
	sent   []EmailMessage
	failOn string
	err    error
}

func (m *mockEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if m.failOn != "" && msg.To == m.failOn {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func acceptedEvent() events.BookingAcceptedV1 {
	return events.BookingAcceptedV1{
		EventID:    uuid.NewString(),
		Reference:  "VB-20250602-ABCDEF12",
		ReceivedAt: time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC),
		Booking: booking.Payload{
			ServiceType:   booking.ServiceVocalCoaching,
			Contact:       booking.Contact{Name: "Anna <Schmidt>", Email: "anna@example.com", Phone: "+49 170 1234567"},
			SessionType:   booking.SessionOneOnOne,
			SkillLevel:    booking.SkillBeginner,
			PreferredDate: "2025-06-10",
			PreferredTime: "18:00",
		},
	}
}

func newTestNotifier(sender EmailSender) *BookingNotifier {
	berlin, _ := time.LoadLocation("Europe/Berlin")
	return NewBookingNotifier(sender, NotifierConfig{
		StudioName:  "Studio Klang",
		StudioEmail: "studio@example.com",
		Location:    berlin,
	}, logging.New("error"))
}

func TestNotifyBookingSendsCustomerAndStudioMail(t *testing.T) {
	sender := &mockEmailSender{}
	n := newTestNotifier(sender)

	require.NoError(t, n.NotifyBooking(context.Background(), acceptedEvent()))
	require.Len(t, sender.sent, 2)

	customer := sender.sent[0]
	assert.Equal(t, "anna@example.com", customer.To)
	assert.Equal(t, "studio@example.com", customer.ReplyTo)
	assert.Contains(t, customer.Subject, "VB-20250602-ABCDEF12")
	assert.Contains(t, customer.Body, "Gesangscoaching")
	assert.Contains(t, customer.Body, "02.06.2025 10:30")
	assert.Contains(t, customer.Body, "18:00")

	studio := sender.sent[1]
	assert.Equal(t, "studio@example.com", studio.To)
	assert.Equal(t, "anna@example.com", studio.ReplyTo)
	assert.Contains(t, studio.Body, "+49 170 1234567")
	assert.Contains(t, studio.HTML, "Anna &lt;Schmidt&gt;")
	assert.NotContains(t, studio.HTML, "<Schmidt>")
}

func TestNotifyBookingWithoutStudioInbox(t *testing.T) {
	sender := &mockEmailSender{}
	n := NewBookingNotifier(sender, NotifierConfig{}, nil)

	require.NoError(t, n.NotifyBooking(context.Background(), acceptedEvent()))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, DefaultFromName)
}

func TestNotifyBookingReturnsTransientFailures(t *testing.T) {
	sender := &mockEmailSender{failOn: "studio@example.com", err: errors.New("timeout")}
	n := newTestNotifier(sender)

	err := n.NotifyBooking(context.Background(), acceptedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 notification(s) failed")
}

func TestNotifyBookingDropsRejectedMessages(t *testing.T) {
	sender := &mockEmailSender{failOn: "anna@example.com", err: fmt.Errorf("bad address: %w", ErrRejected)}
	n := newTestNotifier(sender)

	require.NoError(t, n.NotifyBooking(context.Background(), acceptedEvent()))
	require.Len(t, sender.sent, 1)
}

func TestHandleDecodesOutboxEntry(t *testing.T) {
	sender := &mockEmailSender{}
	n := newTestNotifier(sender)

	payload, err := json.Marshal(acceptedEvent())
	require.NoError(t, err)
	require.NoError(t, n.Handle(context.Background(), events.OutboxEntry{ID: uuid.New(), Type: events.TypeBookingEmail, Payload: payload}))
	assert.Len(t, sender.sent, 2)

	require.NoError(t, n.Handle(context.Background(), events.OutboxEntry{ID: uuid.New(), Type: events.TypeBookingEmail, Payload: []byte("{")}))
	assert.Len(t, sender.sent, 2)
}

func TestNotifyBookingWithoutSender(t *testing.T) {
	n := NewBookingNotifier(nil, NotifierConfig{StudioEmail: "studio@example.com"}, nil)
	assert.NoError(t, n.NotifyBooking(context.Background(), acceptedEvent()))
}

func TestCustomerTextGreetsByName(t *testing.T) {
	n := newTestNotifier(&mockEmailSender{})
	msg, err := n.customerMessage(acceptedEvent())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg.Body, "Hallo Anna <Schmidt>,"))
}
