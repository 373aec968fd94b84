package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/internal/events"
)

type recordingOutbox struct {
	types []string
	evts  []events.BookingAcceptedV1
	err   error
}

func (o *recordingOutbox) InsertTx(_ context.Context, exec events.Execer, aggregateID string, eventType string, payload any) (uuid.UUID, error) {
	if exec == nil {
		return uuid.Nil, errors.New("no tx")
	}
	if o.err != nil {
		return uuid.Nil, o.err
	}
	o.types = append(o.types, eventType)
	o.evts = append(o.evts, payload.(events.BookingAcceptedV1))
	return uuid.New(), nil
}

func samplePayload() booking.Payload {
	return booking.Payload{
		ServiceType:     booking.ServiceLiveSinging,
		Contact:         booking.Contact{Name: "Anna Schmidt", Email: "anna@example.com", Phone: "+49 170 1234567"},
		EventType:       booking.EventWedding,
		EventDate:       "2025-07-12",
		TermsAccepted:   true,
		PrivacyAccepted: true,
	}
}

func TestRepositoryCreateWritesBookingAndOutboxInOneTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	outbox := &recordingOutbox{}
	repo := newRepository(mock, outbox, []string{events.TypeBookingEmail, events.TypeBookingArchive})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(pgxmock.AnyArg(), "VB-20250602-AAAA0001", "live-singing", "Anna Schmidt", "anna@example.com", "+49 170 1234567", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	received := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	rec, err := repo.Create(context.Background(), "VB-20250602-AAAA0001", samplePayload(), received)
	require.NoError(t, err)
	assert.Equal(t, "VB-20250602-AAAA0001", rec.Reference)
	assert.True(t, rec.ReceivedAt.Equal(received))

	assert.Equal(t, []string{events.TypeBookingEmail, events.TypeBookingArchive}, outbox.types)
	require.Len(t, outbox.evts, 2)
	assert.Equal(t, rec.ID.String(), outbox.evts[0].BookingID)
	assert.NotEqual(t, outbox.evts[0].EventID, outbox.evts[1].EventID)
	assert.Equal(t, "2025-07-12", outbox.evts[0].Booking.EventDate)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateRollsBackWhenOutboxFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepository(mock, &recordingOutbox{err: errors.New("outbox down")}, nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), "VB-1", samplePayload(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue booking.email.v1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateReportsDuplicateReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newRepository(mock, &recordingOutbox{}, nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bookings").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), "VB-1", samplePayload(), time.Now())
	require.ErrorIs(t, err, ErrDuplicateReference)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFirstDate(t *testing.T) {
	p := booking.Payload{ServiceType: booking.ServiceWorkshop, PreferredDates: []string{"2025-08-01", "2025-08-15"}}
	d := firstDate(p)
	require.True(t, d.Valid)
	assert.Equal(t, "2025-08-01", d.Time.Format(booking.DateLayout))

	assert.False(t, firstDate(booking.Payload{ServiceType: booking.ServiceVocalCoaching}).Valid)
}
