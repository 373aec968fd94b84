package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/internal/events"
)

// ErrDuplicateReference is returned when a reference is already stored.
var ErrDuplicateReference = errors.New("bookings: duplicate reference")

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type outboxWriter interface {
	InsertTx(ctx context.Context, exec events.Execer, aggregateID string, eventType string, payload any) (uuid.UUID, error)
}

// Record is a persisted booking.
type Record struct {
	ID         uuid.UUID
	Reference  string
	ReceivedAt time.Time
}

// Repository stores accepted bookings together with their integration
// events.
type Repository struct {
	db         txBeginner
	outbox     outboxWriter
	eventTypes []string
}

// NewRepository creates a repository backed by pgx pool. eventTypes are the
// outbox events written for every booking; nil means events.BookingTypes.
func NewRepository(pool *pgxpool.Pool, outbox *events.OutboxStore, eventTypes []string) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	if outbox == nil {
		panic("bookings: outbox required")
	}
	return newRepository(pool, outbox, eventTypes)
}

func newRepository(db txBeginner, outbox outboxWriter, eventTypes []string) *Repository {
	if eventTypes == nil {
		eventTypes = events.BookingTypes
	}
	return &Repository{db: db, outbox: outbox, eventTypes: append([]string(nil), eventTypes...)}
}

// Create inserts the booking row and its outbox entries in one transaction.
func (r *Repository) Create(ctx context.Context, reference string, payload booking.Payload, receivedAt time.Time) (rec *Record, err error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bookings: marshal payload: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	id := uuid.New()
	receivedAt = receivedAt.UTC()
	query := `
		INSERT INTO bookings (id, reference, service_type, customer_name, customer_email, customer_phone, service_date, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err = tx.Exec(ctx, query,
		id,
		reference,
		string(payload.ServiceType),
		payload.Contact.Name,
		payload.Contact.Email,
		payload.Contact.Phone,
		firstDate(payload),
		data,
		receivedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("bookings: insert booking: %w", err)
	}

	evt := events.BookingAcceptedV1{
		BookingID:  id.String(),
		Reference:  reference,
		ReceivedAt: receivedAt,
		Booking:    payload,
	}
	for _, eventType := range r.eventTypes {
		evt.EventID = uuid.NewString()
		if _, err = r.outbox.InsertTx(ctx, tx, reference, eventType, evt); err != nil {
			return nil, fmt.Errorf("bookings: enqueue %s: %w", eventType, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit: %w", err)
	}
	return &Record{ID: id, Reference: reference, ReceivedAt: receivedAt}, nil
}

func firstDate(p booking.Payload) pgtype.Date {
	dates := p.Dates()
	if len(dates) == 0 {
		return pgtype.Date{}
	}
	day, err := time.Parse(booking.DateLayout, dates[0])
	if err != nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: day, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
