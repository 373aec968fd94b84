package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vocal-booking/pkg/logging"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, 5 * time.Second},
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{3, 40 * time.Second},
		{8, 21*time.Minute + 20*time.Second},
		{9, 30 * time.Minute},
		{50, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newOutboxStoreWithExec(mock).WithMaxAttempts(5).WithLease(30 * time.Second)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "VB-1", TypeBookingEmail, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	_, err = store.Insert(ctx, "VB-1", TypeBookingEmail, map[string]string{"foo": "bar"})
	require.NoError(t, err)

	now := time.Now().UTC()
	older, newer := uuid.New(), uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate_id", "type", "payload", "attempts", "created_at"}).
		AddRow(newer, "VB-2", TypeBookingArchive, []byte(`{}`), 0, now).
		AddRow(older, "VB-1", TypeBookingEmail, []byte(`{"foo":"bar"}`), 2, now.Add(-time.Minute))
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WithArgs(5, int32(10), 30.0).WillReturnRows(rows)

	entries, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, older, entries[0].ID, "claimed entries are returned oldest first")
	assert.Equal(t, 2, entries[0].Attempts)
	assert.JSONEq(t, `{"foo":"bar"}`, string(entries[0].Payload))

	mock.ExpectExec("SET next_attempt_at").WithArgs(older, 45.0).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	renewed, err := store.Renew(ctx, older, 45*time.Second)
	require.NoError(t, err)
	assert.True(t, renewed)

	mock.ExpectExec("UPDATE outbox").
		WithArgs(older, "smtp down", RetryDelay(2).Seconds()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkFailed(ctx, entries[0], errors.New("smtp down")))

	mock.ExpectExec("UPDATE outbox").WithArgs(newer).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(ctx, newer)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE outbox").WithArgs(newer).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = store.MarkDelivered(ctx, newer)
	require.NoError(t, err)
	assert.False(t, ok, "second delivery mark is a no-op")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxClaimError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnError(errors.New("connection reset"))
	_, err = newOutboxStoreWithExec(mock).ClaimDue(context.Background(), 5)
	assert.ErrorContains(t, err, "claim due")
}

func TestOutboxInsertTxUsesCallerTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "VB-2", TypeBookingArchive, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	_, err = store.InsertTx(ctx, tx, "VB-2", TypeBookingArchive, BookingAcceptedV1{Reference: "VB-2"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeDeliveryStore struct {
	mu          sync.Mutex
	entries     []OutboxEntry
	maxAttempts int
	lease       time.Duration
	delivered   []uuid.UUID
	failed      map[uuid.UUID]string
	renewed     map[uuid.UUID]time.Duration
	claims      int
}

func (f *fakeDeliveryStore) ClaimDue(context.Context, int32) ([]OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	out := f.entries
	f.entries = nil
	return out, nil
}

func (f *fakeDeliveryStore) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, id)
	return true, nil
}

func (f *fakeDeliveryStore) MarkFailed(_ context.Context, entry OutboxEntry, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[uuid.UUID]string{}
	}
	f.failed[entry.ID] = cause.Error()
	return nil
}

func (f *fakeDeliveryStore) Renew(_ context.Context, id uuid.UUID, d time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renewed == nil {
		f.renewed = map[uuid.UUID]time.Duration{}
	}
	f.renewed[id] = d
	return true, nil
}

func (f *fakeDeliveryStore) Lease() time.Duration {
	if f.lease == 0 {
		return DefaultLease
	}
	return f.lease
}

func (f *fakeDeliveryStore) MaxAttempts() int {
	if f.maxAttempts == 0 {
		return DefaultMaxAttempts
	}
	return f.maxAttempts
}

type countingObserver struct {
	counts map[string]int
}

func (c *countingObserver) ObserveDelivery(eventType, outcome string) {
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[eventType+"/"+outcome]++
}

func TestDelivererDrain(t *testing.T) {
	ok := OutboxEntry{ID: uuid.New(), Type: TypeBookingEmail}
	bad := OutboxEntry{ID: uuid.New(), Type: TypeBookingCalendar}
	last := OutboxEntry{ID: uuid.New(), Type: TypeBookingCalendar, Attempts: 2}
	unknown := OutboxEntry{ID: uuid.New(), Type: "legacy.v0"}
	store := &fakeDeliveryStore{entries: []OutboxEntry{ok, bad, last, unknown}, maxAttempts: 3}

	dispatcher := NewDispatcher(logging.New("error")).
		Register(TypeBookingEmail, HandlerFunc(func(context.Context, OutboxEntry) error { return nil })).
		Register(TypeBookingCalendar, HandlerFunc(func(context.Context, OutboxEntry) error { return errors.New("calendar unavailable") }))

	obs := &countingObserver{}
	d := newDeliverer(store, dispatcher, logging.New("error")).WithMetrics(obs)
	assert.Equal(t, 4, d.drain(context.Background()))

	assert.ElementsMatch(t, []uuid.UUID{ok.ID, unknown.ID}, store.delivered)
	assert.Equal(t, map[uuid.UUID]string{bad.ID: "calendar unavailable", last.ID: "calendar unavailable"}, store.failed)
	assert.Equal(t, map[string]int{
		TypeBookingEmail + "/delivered":    1,
		"legacy.v0/delivered":              1,
		TypeBookingCalendar + "/failed":    1,
		TypeBookingCalendar + "/exhausted": 1,
	}, obs.counts)
}

func TestDelivererRenewsLeaseBeforeEachEntry(t *testing.T) {
	first := OutboxEntry{ID: uuid.New(), Type: TypeBookingEmail}
	second := OutboxEntry{ID: uuid.New(), Type: TypeBookingEmail}
	third := OutboxEntry{ID: uuid.New(), Type: TypeBookingEmail}
	store := &fakeDeliveryStore{entries: []OutboxEntry{first, second, third}, lease: time.Minute}

	clock := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	// each delivery takes 40s
	h := HandlerFunc(func(context.Context, OutboxEntry) error {
		clock = clock.Add(40 * time.Second)
		return nil
	})
	d := newDeliverer(store, h, logging.New("error"))
	d.now = func() time.Time { return clock }

	assert.Equal(t, 3, d.drain(context.Background()))

	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, store.delivered)
	assert.Equal(t, map[uuid.UUID]time.Duration{first.ID: time.Minute, second.ID: time.Minute}, store.renewed)
	assert.NotContains(t, store.failed, third.ID, "an entry past its lease is left for the next claim")
}

func TestDelivererRenewCoversHandlerTimeout(t *testing.T) {
	entry := OutboxEntry{ID: uuid.New(), Type: TypeBookingArchive}
	store := &fakeDeliveryStore{entries: []OutboxEntry{entry}, lease: 10 * time.Second}
	h := HandlerFunc(func(context.Context, OutboxEntry) error { return nil })

	newDeliverer(store, h, logging.New("error")).WithHandlerTimeout(time.Minute).drain(context.Background())

	assert.Equal(t, time.Minute+renewSlack, store.renewed[entry.ID])
	assert.Equal(t, []uuid.UUID{entry.ID}, store.delivered)
}

func TestDelivererHandlerTimeout(t *testing.T) {
	slow := OutboxEntry{ID: uuid.New(), Type: TypeBookingArchive}
	store := &fakeDeliveryStore{entries: []OutboxEntry{slow}}
	h := HandlerFunc(func(ctx context.Context, _ OutboxEntry) error {
		<-ctx.Done()
		return ctx.Err()
	})

	d := newDeliverer(store, h, logging.New("error")).WithHandlerTimeout(10 * time.Millisecond)
	d.drain(context.Background())

	assert.Contains(t, store.failed[slow.ID], "deadline exceeded")
}

func TestDelivererStartStopsOnCancel(t *testing.T) {
	store := &fakeDeliveryStore{entries: []OutboxEntry{{ID: uuid.New(), Type: TypeBookingEmail}}}
	h := HandlerFunc(func(context.Context, OutboxEntry) error { return nil })
	d := newDeliverer(store, h, logging.New("error")).WithInterval(5 * time.Millisecond).WithBatchSize(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.delivered, 1)
	assert.GreaterOrEqual(t, store.claims, 2, "a full batch triggers an immediate follow-up claim")
}

func TestDispatcherTypes(t *testing.T) {
	noop := HandlerFunc(func(context.Context, OutboxEntry) error { return nil })
	d := NewDispatcher(nil).
		Register(TypeBookingArchive, noop).
		Register(TypeBookingEmail, noop)
	assert.Equal(t, []string{TypeBookingEmail, TypeBookingArchive}, d.Types())
}
