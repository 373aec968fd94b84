package submit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// DefaultStubDelay mimics a slow backend during local development.
const DefaultStubDelay = 1500 * time.Millisecond

// StubSubmitter logs the payload after a fixed delay and accepts it. It
// honors cancellation during the delay.
type StubSubmitter struct {
	delay  time.Duration
	logger *logging.Logger
	now    func() time.Time
}

func NewStubSubmitter(delay time.Duration, logger *logging.Logger) *StubSubmitter {
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSubmitter{delay: delay, logger: logger, now: time.Now}
}

func (s *StubSubmitter) Submit(ctx context.Context, payload booking.Payload) (*booking.Confirmation, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	raw, _ := json.Marshal(payload)
	received := s.now().UTC()
	ref := booking.NewReference(received)
	s.logger.Info("stub booking accepted", "reference", ref, "payload", string(raw))
	return &booking.Confirmation{Reference: ref, ReceivedAt: received}, nil
}
