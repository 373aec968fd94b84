package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/internal/events"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// NotifierConfig names the studio in outgoing mail.
type NotifierConfig struct {
	StudioName  string
	StudioEmail string // inbox for new-booking notifications; empty disables them
	Location    *time.Location
}

// BookingNotifier sends the confirmation email to the customer and a
// notification to the studio for every accepted booking.
type BookingNotifier struct {
	email  EmailSender
	cfg    NotifierConfig
	logger *logging.Logger
}

func NewBookingNotifier(email EmailSender, cfg NotifierConfig, logger *logging.Logger) *BookingNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.StudioName == "" {
		cfg.StudioName = DefaultFromName
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &BookingNotifier{email: email, cfg: cfg, logger: logger}
}

// Handle implements events.DeliveryHandler for booking.email.v1.
func (n *BookingNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	evt, err := events.DecodeBookingAccepted(entry)
	if err != nil {
		// a payload we cannot read will never succeed
		n.logger.Error("notify: dropping undecodable booking event", "error", err, "event_id", entry.ID)
		return nil
	}
	return n.NotifyBooking(ctx, evt)
}

// NotifyBooking sends both messages. Rejected messages are logged and
// dropped; transient failures are returned so the outbox retries.
func (n *BookingNotifier) NotifyBooking(ctx context.Context, evt events.BookingAcceptedV1) error {
	if n.email == nil {
		n.logger.Debug("notify: email sender not configured, skipping", "reference", evt.Reference)
		return nil
	}

	var errs []error
	if evt.Booking.Contact.Email != "" {
		msg, err := n.customerMessage(evt)
		if err != nil {
			return err
		}
		if err := n.send(ctx, msg, evt.Reference); err != nil {
			errs = append(errs, err)
		}
	}
	if n.cfg.StudioEmail != "" {
		msg, err := n.studioMessage(evt)
		if err != nil {
			return err
		}
		if err := n.send(ctx, msg, evt.Reference); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (n *BookingNotifier) send(ctx context.Context, msg EmailMessage, reference string) error {
	if err := n.email.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrRejected) {
			n.logger.Warn("notify: email rejected, not retrying", "error", err, "to", msg.To, "reference", reference)
			return nil
		}
		n.logger.Error("notify: failed to send email", "error", err, "to", msg.To, "reference", reference)
		return err
	}
	n.logger.Info("notify: booking email sent", "to", msg.To, "reference", reference)
	return nil
}

type mailView struct {
	Studio     string
	Reference  string
	ReceivedAt string
	Summary    booking.Summary
}

func (n *BookingNotifier) view(evt events.BookingAcceptedV1, lang booking.Lang) mailView {
	return mailView{
		Studio:     n.cfg.StudioName,
		Reference:  evt.Reference,
		ReceivedAt: evt.ReceivedAt.In(n.cfg.Location).Format("02.01.2006 15:04"),
		Summary:    booking.Summarize(evt.Booking.FormData(), lang),
	}
}

func (n *BookingNotifier) customerMessage(evt events.BookingAcceptedV1) (EmailMessage, error) {
	v := n.view(evt, booking.LangDE)
	html, err := render(customerHTML, v)
	if err != nil {
		return EmailMessage{}, err
	}
	return EmailMessage{
		To:        evt.Booking.Contact.Email,
		ToName:    evt.Booking.Contact.Name,
		Subject:   fmt.Sprintf("Ihre Anfrage bei %s (%s)", v.Studio, v.Reference),
		Body:      customerText(v),
		HTML:      html,
		ReplyTo:   n.cfg.StudioEmail,
		Reference: v.Reference,
	}, nil
}

func (n *BookingNotifier) studioMessage(evt events.BookingAcceptedV1) (EmailMessage, error) {
	v := n.view(evt, booking.LangDE)
	html, err := render(studioHTML, v)
	if err != nil {
		return EmailMessage{}, err
	}
	return EmailMessage{
		To:        n.cfg.StudioEmail,
		Subject:   fmt.Sprintf("Neue Buchungsanfrage: %s - %s (%s)", v.Summary.Service, evt.Booking.Contact.Name, v.Reference),
		Body:      studioText(v),
		HTML:      html,
		ReplyTo:   evt.Booking.Contact.Email,
		Reference: v.Reference,
	}, nil
}

func customerText(v mailView) string {
	var b strings.Builder
	name := "Hallo"
	for _, item := range v.Summary.Contact {
		if item.Field == "name" {
			name = "Hallo " + item.Value
		}
	}
	fmt.Fprintf(&b, "%s,\n\nvielen Dank für Ihre Anfrage. Wir melden uns in Kürze bei Ihnen.\n\n", name)
	fmt.Fprintf(&b, "Referenz: %s\nEingegangen: %s\nLeistung: %s\n\n", v.Reference, v.ReceivedAt, v.Summary.Service)
	writeItems(&b, v.Summary.Details)
	fmt.Fprintf(&b, "\nHerzliche Grüße\n%s\n", v.Studio)
	return b.String()
}

func studioText(v mailView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Neue Anfrage %s (%s), eingegangen %s\n\n", v.Reference, v.Summary.Service, v.ReceivedAt)
	writeItems(&b, v.Summary.Contact)
	b.WriteString("\n")
	writeItems(&b, v.Summary.Details)
	return b.String()
}

func writeItems(b *strings.Builder, items []booking.SummaryItem) {
	for _, item := range items {
		fmt.Fprintf(b, "%s: %s\n", item.Label, item.Value)
	}
}

const rowTemplate = `{{define "rows"}}{{range .}}<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>{{.Label}}:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">{{.Value}}</td></tr>
{{end}}{{end}}`

var customerHTML = template.Must(template.New("customer").Parse(rowTemplate + `<div style="font-family: sans-serif; max-width: 600px;">
<h2>Vielen Dank für Ihre Anfrage!</h2>
<p>Wir haben Ihre Anfrage für <strong>{{.Summary.Service}}</strong> erhalten und melden uns in Kürze.</p>
<p>Referenz: <strong>{{.Reference}}</strong><br>Eingegangen: {{.ReceivedAt}}</p>
<table style="border-collapse: collapse; margin: 20px 0;">
{{template "rows" .Summary.Details}}</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">{{.Studio}}</p>
</div>`))

var studioHTML = template.Must(template.New("studio").Parse(rowTemplate + `<div style="font-family: sans-serif; max-width: 600px;">
<h2>Neue Buchungsanfrage: {{.Summary.Service}}</h2>
<p>Referenz: <strong>{{.Reference}}</strong><br>Eingegangen: {{.ReceivedAt}}</p>
<table style="border-collapse: collapse; margin: 20px 0;">
{{template "rows" .Summary.Contact}}{{template "rows" .Summary.Details}}</table>
</div>`))

func render(t *template.Template, v mailView) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

var _ events.DeliveryHandler = (*BookingNotifier)(nil)
