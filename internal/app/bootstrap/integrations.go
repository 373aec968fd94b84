package bootstrap

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/vocal-booking/internal/archive"
	"github.com/wolfman30/vocal-booking/internal/calendar"
	appconfig "github.com/wolfman30/vocal-booking/internal/config"
	"github.com/wolfman30/vocal-booking/internal/events"
	"github.com/wolfman30/vocal-booking/internal/notify"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// Consumer names recorded in processed_events.
const (
	ConsumerEmail = "booking-email"
)

// Integrations carries the clients the outbox handlers talk to. Nil clients
// disable the matching handler.
type Integrations struct {
	Email     notify.EmailSender
	S3        archive.S3API
	SQS       events.SQSAPI
	Calendar  events.DeliveryHandler
	Processed *events.ProcessedStore
}

// AWSClients builds the SDK clients from a loaded AWS config. S3 uses
// path-style addressing when an endpoint override (LocalStack, MinIO) is set.
func AWSClients(awsCfg aws.Config, cfg *appconfig.Config) (*sqs.Client, *s3.Client, *sesv2.Client) {
	pathStyle := cfg != nil && strings.TrimSpace(cfg.AWSEndpointOverride) != ""
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	})
	return sqs.NewFromConfig(awsCfg), s3Client, sesv2.NewFromConfig(awsCfg)
}

// BuildEmailSender returns the configured provider, falling back to the
// stub sender when the provider cannot be built.
func BuildEmailSender(cfg *appconfig.Config, sesClient notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			logger.Info("email via sendgrid", "from", cfg.EmailFromAddress)
			return sender
		}
		logger.Warn("sendgrid selected without api key; emails are logged only")
	case "ses":
		if sesClient != nil {
			logger.Info("email via ses", "from", cfg.EmailFromAddress, "region", cfg.AWSRegion)
			return notify.NewSESSender(sesClient, notify.SESConfig{
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
		logger.Warn("ses selected without client; emails are logged only")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildDispatcher registers one outbox handler per configured integration.
// The returned dispatcher's Types are the event types a booking must write.
func BuildDispatcher(ctx context.Context, cfg *appconfig.Config, deps Integrations, logger *logging.Logger) (*events.Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := events.NewDispatcher(logger)

	email := deps.Email
	if email == nil {
		email = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewBookingNotifier(email, notify.NotifierConfig{
		StudioName:  cfg.StudioName,
		StudioEmail: cfg.StudioNotificationEmail,
		Location:    cfg.Location(),
	}, logger)
	var emailHandler events.DeliveryHandler = notifier
	if deps.Processed != nil {
		emailHandler = events.Once(deps.Processed, ConsumerEmail, notifier)
	}
	d.Register(events.TypeBookingEmail, emailHandler)

	cal := deps.Calendar
	if cal == nil && cfg.GoogleCalendarID != "" {
		gc, err := calendar.NewGoogleCalendar(ctx, cfg.GoogleCredentialsFile, cfg.GoogleCalendarID, cfg.Location(), logger)
		if err != nil {
			return nil, err
		}
		cal = gc
	}
	if cal != nil {
		d.Register(events.TypeBookingCalendar, cal)
	}

	if cfg.ArchiveBucket != "" && deps.S3 != nil {
		d.Register(events.TypeBookingArchive, archive.NewStore(deps.S3, cfg.ArchiveBucket, logger))
	}

	if cfg.BookingEventsQueueURL != "" && deps.SQS != nil {
		d.Register(events.TypeBookingSubmitted, events.NewSQSForwarder(deps.SQS, cfg.BookingEventsQueueURL))
	}

	logger.Info("outbox handlers registered", "types", d.Types())
	return d, nil
}
