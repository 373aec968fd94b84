package bookings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

var bookingsTracer = otel.Tracer("vocalbooking.internal.bookings")

const maxReferenceAttempts = 3

type creator interface {
	Create(ctx context.Context, reference string, payload booking.Payload, receivedAt time.Time) (*Record, error)
}

// StoreSubmitter accepts bookings by persisting them. Integrations run later
// from the outbox, so a booking counts as received once it is stored.
type StoreSubmitter struct {
	repo   creator
	logger *logging.Logger
	now    func() time.Time
}

// NewStoreSubmitter constructs a submitter over repo.
func NewStoreSubmitter(repo *Repository, logger *logging.Logger) *StoreSubmitter {
	if repo == nil {
		panic("bookings: repository required")
	}
	return newStoreSubmitter(repo, logger)
}

func newStoreSubmitter(repo creator, logger *logging.Logger) *StoreSubmitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &StoreSubmitter{repo: repo, logger: logger, now: time.Now}
}

// Submit implements booking.Submitter. Database failures are retryable.
func (s *StoreSubmitter) Submit(ctx context.Context, payload booking.Payload) (*booking.Confirmation, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.store")
	defer span.End()
	span.SetAttributes(attribute.String("vocalbooking.service_type", string(payload.ServiceType)))

	var (
		rec *Record
		err error
	)
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		now := s.now()
		rec, err = s.repo.Create(ctx, booking.NewReference(now), payload, now)
		if !errors.Is(err, ErrDuplicateReference) {
			break
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store booking")
		return nil, &booking.SubmissionError{
			Op:        "store booking",
			Retryable: !errors.Is(err, context.Canceled),
			Err:       err,
		}
	}

	span.SetAttributes(attribute.String("vocalbooking.reference", rec.Reference))
	s.logger.Info("booking stored", "reference", rec.Reference, "booking_id", rec.ID, "service_type", payload.ServiceType)
	return &booking.Confirmation{Reference: rec.Reference, ReceivedAt: rec.ReceivedAt}, nil
}
