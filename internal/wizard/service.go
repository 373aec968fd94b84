// Package wizard runs booking wizards as server-side sessions: it loads a
// draft from the session store, applies one transition under a per-session
// lock, saves it back, and drives submissions through a booking.Submitter.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/internal/observability/metrics"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// DefaultSubmitTimeout bounds a single hand-off to the booking backend.
const DefaultSubmitTimeout = 15 * time.Second

// orphanGrace is added to the submit timeout before a submitting session
// with no live call in this process is treated as abandoned.
const orphanGrace = 5 * time.Second

var (
	// ErrSubmissionCancelled is returned by Submit when Cancel aborted it.
	ErrSubmissionCancelled = errors.New("wizard: submission cancelled")
	// ErrNothingToCancel is returned by Cancel when no submission is running.
	ErrNothingToCancel = errors.New("wizard: no submission in progress")
	// ErrSubmissionInProgress is returned by Cancel when the submission runs
	// in another process and has not yet timed out.
	ErrSubmissionInProgress = errors.New("wizard: submission still running elsewhere")
)

// View is what clients see of a session.
type View struct {
	ID           string                `json:"id"`
	Step         booking.Step          `json:"step"`
	StepIndex    int                   `json:"stepIndex"`
	StepCount    int                   `json:"stepCount"`
	Status       booking.Status        `json:"status"`
	Data         booking.FormData      `json:"data"`
	CanAdvance   bool                  `json:"canAdvance"`
	CanSubmit    bool                  `json:"canSubmit"`
	LastError    string                `json:"lastError,omitempty"`
	Confirmation *booking.Confirmation `json:"confirmation,omitempty"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// Service orchestrates wizard sessions.
type Service struct {
	store         Store
	submitter     booking.Submitter
	cal           booking.Calendar
	logger        *logging.Logger
	metrics       *metrics.BookingMetrics
	tracer        trace.Tracer
	submitTimeout time.Duration
	now           func() time.Time
	newID         func() string

	locks Locker

	inflightMu sync.Mutex
	inflight   map[string]*submission
}

type submission struct {
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled bool
}

// Option customizes a Service.
type Option func(*Service)

// WithCalendar sets the studio calendar used for date checks.
func WithCalendar(cal booking.Calendar) Option {
	return func(s *Service) { s.cal = cal }
}

// WithMetrics records wizard metrics.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSubmitTimeout bounds each submitter call.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

// WithLocker replaces the process-local session lock, e.g. with a
// RedisLocker when several replicas share a session store.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locks = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService wires a session store to a submitter.
func NewService(store Store, submitter booking.Submitter, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("wizard: store required")
	}
	if submitter == nil {
		panic("wizard: submitter required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		store:         store,
		submitter:     submitter,
		logger:        logger,
		tracer:        otel.Tracer("vocalbooking.internal.wizard"),
		submitTimeout: DefaultSubmitTimeout,
		now:           time.Now,
		newID:         uuid.NewString,
		locks:         newKeyedMutex(),
		inflight:      make(map[string]*submission),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calendar returns the studio calendar.
func (s *Service) Calendar() booking.Calendar { return s.cal }

// Start creates a session. A non-empty svc preselects the service and starts
// on the personal step.
func (s *Service) Start(ctx context.Context, svc booking.ServiceType) (*View, error) {
	var (
		w   *booking.Wizard
		err error
	)
	if svc == booking.ServiceNone {
		w = booking.NewWizard(s.cal)
	} else if w, err = booking.NewWizardForService(s.cal, svc); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	session := &Session{ID: s.newID(), Wizard: w, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.ObserveSessionStarted(string(svc))
	s.logger.Debug("wizard session started", "session_id", session.ID, "service", svc)
	return s.view(session), nil
}

// Get returns the current view of a session.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

func (s *Service) SelectService(ctx context.Context, id string, svc booking.ServiceType) (*View, error) {
	return s.mutate(ctx, id, func(w *booking.Wizard) error { return w.SelectService(svc) })
}

func (s *Service) Update(ctx context.Context, id string, patch booking.Patch) (*View, error) {
	return s.mutate(ctx, id, func(w *booking.Wizard) error { return w.Update(patch) })
}

func (s *Service) Toggle(ctx context.Context, id string, field booking.MultiField, value string) (*View, error) {
	return s.mutate(ctx, id, func(w *booking.Wizard) error { return w.Toggle(field, value) })
}

func (s *Service) Advance(ctx context.Context, id string) (*View, error) {
	return s.mutate(ctx, id, func(w *booking.Wizard) error { return w.Advance() })
}

func (s *Service) Retreat(ctx context.Context, id string) (*View, error) {
	return s.mutate(ctx, id, func(w *booking.Wizard) error { return w.Retreat() })
}

// Summary renders the confirmation view of the current draft.
func (s *Service) Summary(ctx context.Context, id string, lang booking.Lang) (*booking.Summary, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := booking.Summarize(session.Wizard.Data, lang)
	return &summary, nil
}

// Submit validates the whole draft and hands it to the submitter. The call
// runs outside the session lock so Cancel can interrupt it. On failure the
// returned view carries the intact draft in the failed state.
func (s *Service) Submit(ctx context.Context, id string) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "wizard.submit", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	session, err := s.load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	payload, err := session.Wizard.BeginSubmit(s.now())
	if err != nil {
		unlock()
		if ve, ok := booking.IsValidationError(err); ok {
			s.metrics.ObserveValidationFailure(ve.Step.String())
			s.metrics.ObserveSubmission(string(session.Wizard.Data.ServiceType), "invalid", 0)
		}
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		unlock()
		return nil, err
	}
	// The hand-off must survive the caller going away; only Cancel or the
	// timeout stop it. It is registered before the lock is released so a
	// Cancel queued on the lock finds it.
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	sub := s.register(id, cancel)
	unlock()
	defer s.release(id, sub)

	service := string(payload.ServiceType)
	span.SetAttributes(attribute.String("booking.service_type", service))
	started := s.now()
	conf, submitErr := s.submitter.Submit(subCtx, payload)
	elapsed := s.now().Sub(started).Seconds()
	cancelled := s.wasCancelled(sub)
	if submitErr == nil {
		if conf == nil {
			conf = &booking.Confirmation{}
		}
		if conf.ReceivedAt.IsZero() {
			conf.ReceivedAt = s.now().UTC()
		}
	}

	// settle even if the caller has gone away
	settleCtx := context.WithoutCancel(ctx)
	unlock, err = s.locks.Lock(settleCtx, id)
	if err != nil {
		if submitErr == nil {
			s.logger.Error("booking accepted but session could not be locked", "session_id", id, "reference", conf.Reference, "error", err)
			_ = session.Wizard.CompleteSubmit(*conf)
			return s.view(session), nil
		}
		return nil, err
	}
	defer unlock()
	ctx = settleCtx

	current, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) && submitErr == nil {
			// dismissed or expired mid-flight; the booking still exists
			s.logger.Warn("booking accepted for vanished session", "session_id", id, "reference", conf.Reference)
			_ = session.Wizard.CompleteSubmit(*conf)
			s.metrics.ObserveSubmission(service, "success", elapsed)
			return s.view(session), nil
		}
		return nil, err
	}
	w := current.Wizard
	if w.Status != booking.StatusSubmitting {
		if submitErr != nil {
			s.logger.Warn("submission finished for released session", "session_id", id, "status", w.Status, "error", submitErr)
			return s.view(current), ErrSubmissionCancelled
		}
		// released by a Cancel that could not reach the call; the booking
		// exists, so the confirmation replaces the draft
		if err := w.HonorConfirmation(*conf); err != nil {
			s.logger.Warn("submission finished for completed session", "session_id", id, "reference", conf.Reference)
			return s.view(current), nil
		}
		s.metrics.ObserveSubmission(service, "success", elapsed)
		s.logger.Warn("booking accepted after submission was released", "session_id", id, "reference", conf.Reference)
		if err := s.save(ctx, current); err != nil {
			return nil, err
		}
		return s.view(current), nil
	}

	switch {
	case submitErr == nil:
		if cancelled {
			s.logger.Info("submission succeeded despite cancel", "session_id", id, "reference", conf.Reference)
		}
		_ = w.CompleteSubmit(*conf)
		s.metrics.ObserveSubmission(service, "success", elapsed)
		s.logger.Info("booking submitted", "session_id", id, "service", service, "reference", conf.Reference)
	case cancelled && errors.Is(submitErr, context.Canceled):
		_ = w.AbortSubmit()
		s.metrics.ObserveSubmission(service, "cancelled", elapsed)
		s.logger.Info("submission cancelled", "session_id", id)
		if err := s.save(ctx, current); err != nil {
			return nil, err
		}
		return s.view(current), ErrSubmissionCancelled
	default:
		submitErr = asSubmissionError(submitErr)
		_ = w.FailSubmit(submitErr)
		span.RecordError(submitErr)
		span.SetStatus(codes.Error, "submission failed")
		s.metrics.ObserveSubmission(service, "failed", elapsed)
		s.logger.Error("booking submission failed", "session_id", id, "service", service, "retryable", booking.IsRetryable(submitErr), "error", submitErr)
		if err := s.save(ctx, current); err != nil {
			return nil, err
		}
		return s.view(current), submitErr
	}

	if err := s.save(ctx, current); err != nil {
		return nil, err
	}
	return s.view(current), nil
}

// Cancel aborts an in-flight submission and waits for Submit to settle the
// session. A session stuck in submitting with no live call here is released
// only once its submission must have timed out, e.g. after a restart;
// before that the call may be running in another replica.
func (s *Service) Cancel(ctx context.Context, id string) (*View, error) {
	if sub := s.signalCancel(id); sub != nil {
		return s.awaitSubmission(ctx, id, sub)
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	// Submit registers before releasing the lock, so a call that began
	// while we waited is visible now.
	if sub := s.signalCancel(id); sub != nil {
		unlock()
		return s.awaitSubmission(ctx, id, sub)
	}
	defer unlock()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Wizard.Status != booking.StatusSubmitting {
		return nil, ErrNothingToCancel
	}
	if age := s.now().Sub(session.UpdatedAt); age < s.submitTimeout+orphanGrace {
		return s.view(session), ErrSubmissionInProgress
	}
	_ = session.Wizard.AbortSubmit()
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Warn("released orphaned submission", "session_id", id)
	return s.view(session), nil
}

// signalCancel cancels the call registered for id, if any.
func (s *Service) signalCancel(id string) *submission {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	sub, ok := s.inflight[id]
	if !ok {
		return nil
	}
	sub.cancelled = true
	sub.cancel()
	return sub
}

func (s *Service) awaitSubmission(ctx context.Context, id string, sub *submission) (*View, error) {
	select {
	case <-sub.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Get(ctx, id)
}

// Dismiss cancels any running submission and discards the draft.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	if _, err := s.Cancel(ctx, id); err != nil &&
		!errors.Is(err, ErrNothingToCancel) && !errors.Is(err, ErrSessionNotFound) &&
		!errors.Is(err, ErrSubmissionInProgress) {
		return err
	}
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("wizard session dismissed", "session_id", id)
	return nil
}

// mutate applies fn under the session lock and saves the result. Rejected
// transitions leave the stored session untouched.
func (s *Service) mutate(ctx context.Context, id string, fn func(*booking.Wizard) error) (*View, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := session.Wizard.Step
	if err := fn(session.Wizard); err != nil {
		if ve, ok := booking.IsValidationError(err); ok {
			s.metrics.ObserveValidationFailure(ve.Step.String())
		}
		return nil, err
	}
	if to := session.Wizard.Step; to != from {
		s.metrics.ObserveStep(from.String(), to.String())
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	return s.view(session), nil
}

func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Wizard.SetCalendar(s.cal)
	return session, nil
}

func (s *Service) save(ctx context.Context, session *Session) error {
	session.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, session); err != nil {
		return fmt.Errorf("wizard: save session %s: %w", session.ID, err)
	}
	return nil
}

func (s *Service) register(id string, cancel context.CancelFunc) *submission {
	sub := &submission{cancel: cancel, done: make(chan struct{})}
	s.inflightMu.Lock()
	s.inflight[id] = sub
	s.inflightMu.Unlock()
	return sub
}

func (s *Service) wasCancelled(sub *submission) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	return sub.cancelled
}

// release drops the registration and wakes any waiting Cancel. It runs on
// every exit path of Submit.
func (s *Service) release(id string, sub *submission) {
	s.inflightMu.Lock()
	if s.inflight[id] == sub {
		delete(s.inflight, id)
	}
	s.inflightMu.Unlock()
	sub.cancel()
	close(sub.done)
}

func (s *Service) view(session *Session) *View {
	w := session.Wizard
	v := &View{
		ID:           session.ID,
		Step:         w.Step,
		StepIndex:    int(w.Step),
		StepCount:    len(booking.Steps),
		Status:       w.Status,
		Data:         w.Data.Clone(),
		LastError:    w.LastError,
		Confirmation: w.Confirmation,
		UpdatedAt:    session.UpdatedAt,
	}
	editable := w.Status == booking.StatusEditing || w.Status == booking.StatusFailed
	v.CanAdvance = editable && w.Step < booking.StepConfirm && w.IsStepValid(w.Step)
	if editable && w.Step == booking.StepConfirm {
		v.CanSubmit = true
		for _, step := range booking.Steps {
			if !w.IsStepValid(step) {
				v.CanSubmit = false
				break
			}
		}
	}
	return v
}

// asSubmissionError classifies raw submitter errors. Timeouts are
// retryable; anything already classified is kept.
func asSubmissionError(err error) error {
	var se *booking.SubmissionError
	if errors.As(err, &se) {
		return err
	}
	return &booking.SubmissionError{Op: "submit booking", Retryable: true, Err: err}
}
