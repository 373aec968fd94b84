package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/vocal-booking/pkg/logging"
)

const (
	// DefaultMaxAttempts caps redelivery of a failing entry.
	DefaultMaxAttempts = 10
	// DefaultLease is how long a claimed entry stays invisible to other
	// deliverers before it can be claimed again.
	DefaultLease = time.Minute

	retryBase = 5 * time.Second
	retryMax  = 30 * time.Minute

	// renewSlack is added to the handler timeout when an entry's lease is
	// renewed right before delivery.
	renewSlack = 5 * time.Second
)

// RetryDelay is the wait before attempt number attempts+1: 5s doubling up
// to 30 minutes.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := retryBase
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= retryMax {
			return retryMax
		}
	}
	return d
}

// OutboxEntry represents a pending event.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	Type        string
	Payload     json.RawMessage
	Attempts    int
	CreatedAt   time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// HandlerFunc adapts a function to DeliveryHandler.
type HandlerFunc func(ctx context.Context, entry OutboxEntry) error

func (f HandlerFunc) Handle(ctx context.Context, entry OutboxEntry) error { return f(ctx, entry) }

// Execer is satisfied by pgxpool.Pool and pgx.Tx, so entries can be written
// in the caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type outboxDB interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore persists booking events until every integration has seen them.
// Several API replicas may deliver from the same table; claims use
// FOR UPDATE SKIP LOCKED plus a lease on next_attempt_at.
type OutboxStore struct {
	db          outboxDB
	maxAttempts int
	lease       time.Duration
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newOutboxStoreWithExec(pool)
}

func newOutboxStoreWithExec(db outboxDB) *OutboxStore {
	if db == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: db, maxAttempts: DefaultMaxAttempts, lease: DefaultLease}
}

// WithMaxAttempts sets how many failed deliveries an entry survives.
func (s *OutboxStore) WithMaxAttempts(n int) *OutboxStore {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

func (s *OutboxStore) WithLease(d time.Duration) *OutboxStore {
	if d > 0 {
		s.lease = d
	}
	return s
}

// MaxAttempts reports the configured attempt cap.
func (s *OutboxStore) MaxAttempts() int { return s.maxAttempts }

// Lease reports how long ClaimDue hides a claimed entry.
func (s *OutboxStore) Lease() time.Duration { return s.lease }

func (s *OutboxStore) Insert(ctx context.Context, aggregateID string, eventType string, payload any) (uuid.UUID, error) {
	return s.InsertTx(ctx, s.db, aggregateID, eventType, payload)
}

// InsertTx writes an entry through exec, typically an open transaction.
func (s *OutboxStore) InsertTx(ctx context.Context, exec Execer, aggregateID string, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	id := uuid.New()
	const query = `
		INSERT INTO outbox (id, aggregate_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.Exec(ctx, query, id, aggregateID, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox %s: %w", eventType, err)
	}
	return id, nil
}

// ClaimDue leases up to limit entries whose retry time has come, oldest
// first. A claimed entry is not returned again until the lease expires or
// MarkFailed schedules it.
func (s *OutboxStore) ClaimDue(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	const query = `
		UPDATE outbox o
		SET next_attempt_at = now() + make_interval(secs => $3)
		FROM (
			SELECT id FROM outbox
			WHERE delivered_at IS NULL AND attempts < $1 AND next_attempt_at <= now()
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE o.id = due.id
		RETURNING o.id, o.aggregate_id, o.type, o.payload, o.attempts, o.created_at
	`
	rows, err := s.db.Query(ctx, query, s.maxAttempts, limit, s.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("events: claim due: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.AggregateID, &entry.Type, &payload, &entry.Attempts, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: claim due: %w", err)
	}
	// RETURNING does not keep the subquery order.
	slices.SortStableFunc(entries, func(a, b OutboxEntry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return entries, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
		UPDATE outbox
		SET delivered_at = now(), last_error = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Renew pushes the lease of a claimed, undelivered entry to d from now. It
// reports false when the entry was delivered meanwhile.
func (s *OutboxStore) Renew(ctx context.Context, id uuid.UUID, d time.Duration) (bool, error) {
	const query = `
		UPDATE outbox
		SET next_attempt_at = now() + make_interval(secs => $2)
		WHERE id = $1 AND delivered_at IS NULL
	`
	ct, err := s.db.Exec(ctx, query, id, d.Seconds())
	if err != nil {
		return false, fmt.Errorf("events: renew lease: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed counts the failed attempt, keeps its error and schedules the
// next one after RetryDelay.
func (s *OutboxStore) MarkFailed(ctx context.Context, entry OutboxEntry, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 1000 {
			msg = msg[:1000]
		}
	}
	const query = `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = now() + make_interval(secs => $3)
		WHERE id = $1 AND delivered_at IS NULL
	`
	if _, err := s.db.Exec(ctx, query, entry.ID, msg, RetryDelay(entry.Attempts).Seconds()); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

type deliveryStore interface {
	ClaimDue(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, entry OutboxEntry, cause error) error
	Renew(ctx context.Context, id uuid.UUID, d time.Duration) (bool, error)
	MaxAttempts() int
	Lease() time.Duration
}

type deliveryObserver interface {
	ObserveDelivery(eventType, outcome string)
}

// Deliverer polls the outbox and invokes the handler.
type Deliverer struct {
	store          deliveryStore
	handler        DeliveryHandler
	logger         *logging.Logger
	metrics        deliveryObserver
	batchSize      int32
	interval       time.Duration
	handlerTimeout time.Duration
	now            func() time.Time
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	return newDeliverer(store, handler, logger)
}

func newDeliverer(store deliveryStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:          store,
		handler:        handler,
		logger:         logger,
		batchSize:      25,
		interval:       2 * time.Second,
		handlerTimeout: 30 * time.Second,
		now:            time.Now,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithHandlerTimeout bounds a single delivery.
func (d *Deliverer) WithHandlerTimeout(timeout time.Duration) *Deliverer {
	if timeout > 0 {
		d.handlerTimeout = timeout
	}
	return d
}

func (d *Deliverer) WithMetrics(m deliveryObserver) *Deliverer {
	d.metrics = m
	return d
}

func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A full batch usually means a backlog; keep going until it
			// is worked off.
			for ctx.Err() == nil {
				if d.drain(ctx) < int(d.batchSize) {
					break
				}
			}
		}
	}
}

// drain delivers one claimed batch and returns its size. Each entry's lease
// is renewed right before its handler runs; entries whose claim lease has
// (nearly) run out are left alone since another deliverer may own them.
func (d *Deliverer) drain(ctx context.Context) int {
	claimed := d.now()
	entries, err := d.store.ClaimDue(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox claim failed", "error", err)
		return 0
	}
	lease := d.store.Lease()
	hold := max(d.handlerTimeout+renewSlack, lease)
	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if d.now().Sub(claimed) >= lease-lease/10 {
			d.logger.Warn("outbox lease ran out mid-batch", "skipped", len(entries)-i, "lease", lease)
			break
		}
		ok, err := d.store.Renew(ctx, entry.ID, hold)
		if err != nil {
			d.logger.Error("failed to renew outbox lease", "error", err, "event_id", entry.ID)
			continue
		}
		if !ok {
			continue
		}
		d.deliver(ctx, entry)
	}
	return len(entries)
}

func (d *Deliverer) deliver(ctx context.Context, entry OutboxEntry) {
	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	err := d.handler.Handle(hctx, entry)
	cancel()

	if err != nil {
		attempt := entry.Attempts + 1
		outcome := "failed"
		if attempt >= d.store.MaxAttempts() {
			outcome = "exhausted"
			d.logger.Error("outbox entry exhausted retries", "error", err, "event_id", entry.ID, "type", entry.Type, "aggregate_id", entry.AggregateID, "attempt", attempt)
		} else {
			d.logger.Warn("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type, "attempt", attempt, "retry_in", RetryDelay(entry.Attempts))
		}
		d.observe(entry.Type, outcome)
		if markErr := d.store.MarkFailed(ctx, entry, err); markErr != nil {
			d.logger.Error("failed to record outbox failure", "error", markErr, "event_id", entry.ID)
		}
		return
	}

	ok, err := d.store.MarkDelivered(ctx, entry.ID)
	if err != nil {
		d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		return
	}
	if ok {
		d.observe(entry.Type, "delivered")
		d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
	}
}

func (d *Deliverer) observe(eventType, outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveDelivery(eventType, outcome)
	}
}
