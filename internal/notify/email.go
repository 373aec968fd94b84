package notify

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// EmailSender delivers a single message. SendGrid, SES and the stub are
// interchangeable behind it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To        string
	ToName    string
	Subject   string
	Body      string // plain text
	HTML      string // optional
	ReplyTo   string
	Reference string // booking reference, attached as provider metadata
}

// DefaultFromName is used when no sender name is configured.
const DefaultFromName = "Vocal Studio"

// ErrRejected marks a message the provider will never accept as sent.
// Retrying it is pointless.
var ErrRejected = errors.New("notify: message rejected")

func (m EmailMessage) validate() error {
	if _, err := netmail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: invalid recipient: %v", ErrRejected, err)
	}
	if m.ReplyTo != "" {
		if _, err := netmail.ParseAddress(m.ReplyTo); err != nil {
			return fmt.Errorf("%w: invalid reply-to: %v", ErrRejected, err)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: empty subject", ErrRejected)
	}
	if m.Body == "" && m.HTML == "" {
		return fmt.Errorf("%w: empty body", ErrRejected)
	}
	return nil
}

// maskAddress keeps customer addresses out of the logs: anna@example.com
// becomes a***@example.com.
func maskAddress(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(mail.NewEmail(s.fromName, s.fromEmail), msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, html)
	message.AddCategories("booking")
	if msg.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Reference != "" {
		message.SetCustomArg("reference", msg.Reference)
	}

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", maskAddress(msg.To), "reference", msg.Reference)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if err := classifyStatus("sendgrid", resp.StatusCode); err != nil {
		s.logger.Error("sendgrid returned error status", "status", resp.StatusCode, "body", resp.Body, "to", maskAddress(msg.To), "reference", msg.Reference)
		return err
	}

	s.logger.Info("email sent via sendgrid", "to", maskAddress(msg.To), "reference", msg.Reference, "status", resp.StatusCode)
	return nil
}

// classifyStatus treats 4xx other than 429 as permanent.
func classifyStatus(provider string, code int) error {
	switch {
	case code < 400:
		return nil
	case code < 500 && code != 429:
		return fmt.Errorf("notify: %s rejected message with status %d: %w", provider, code, ErrRejected)
	default:
		return fmt.Errorf("notify: %s returned status %d", provider, code)
	}
}

// StubEmailSender logs instead of sending and remembers what it would have
// sent. Used in development and tests.
type StubEmailSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []EmailMessage
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("stub email sender: would send email", "to", maskAddress(msg.To), "subject", msg.Subject, "reference", msg.Reference)
	return nil
}

// Sent returns a copy of every accepted message.
func (s *StubEmailSender) Sent() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailMessage(nil), s.sent...)
}
