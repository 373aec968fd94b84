package bootstrap

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/internal/bookings"
	appconfig "github.com/wolfman30/vocal-booking/internal/config"
	"github.com/wolfman30/vocal-booking/internal/events"
	"github.com/wolfman30/vocal-booking/internal/submit"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// BuildSubmitter returns the booking backend selected by SUBMISSION_MODE.
// In store mode every accepted booking also writes one outbox entry per
// eventTypes element.
func BuildSubmitter(cfg *appconfig.Config, pool *pgxpool.Pool, eventTypes []string, logger *logging.Logger) (booking.Submitter, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.SubmissionMode {
	case appconfig.SubmissionStore:
		if pool == nil {
			return nil, errors.New("bootstrap: store submission requires a database")
		}
		outbox := events.NewOutboxStore(pool).WithMaxAttempts(cfg.OutboxMaxAttempts)
		repo := bookings.NewRepository(pool, outbox, eventTypes)
		logger.Info("bookings persisted to postgres", "event_types", eventTypes)
		return bookings.NewStoreSubmitter(repo, logger), nil
	case appconfig.SubmissionHTTP:
		client := &http.Client{Timeout: cfg.SubmitTimeout}
		sub, err := submit.NewHTTPSubmitter(cfg.BookingBackendURL, cfg.BookingBackendToken, client, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: http submitter: %w", err)
		}
		logger.Info("bookings forwarded to backend", "url", cfg.BookingBackendURL)
		return sub, nil
	case appconfig.SubmissionStub, "":
		logger.Warn("using stub submitter; bookings are not persisted", "delay", cfg.StubSubmitDelay)
		return submit.NewStubSubmitter(cfg.StubSubmitDelay, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown submission mode %q", cfg.SubmissionMode)
	}
}
