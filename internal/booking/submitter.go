package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Submitter hands a finished booking to the backend that owns it.
type Submitter interface {
	Submit(ctx context.Context, payload Payload) (*Confirmation, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, payload Payload) (*Confirmation, error)

func (f SubmitterFunc) Submit(ctx context.Context, payload Payload) (*Confirmation, error) {
	return f(ctx, payload)
}

// Confirmation is returned by the backend once a booking is accepted.
type Confirmation struct {
	Reference  string    `json:"reference"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// NewReference returns a human-friendly booking reference such as
// VB-20250602-3F9A1C2B.
func NewReference(at time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "VB-" + at.UTC().Format("20060102") + "-" + strings.ToUpper(id[:8])
}

// SubmissionError reports a failed hand-off. Retryable errors leave the
// draft intact so the client can try again.
type SubmissionError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return "booking: " + e.Op + " failed"
	}
	return fmt.Sprintf("booking: %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying. Errors that are not
// SubmissionErrors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return !errors.Is(err, context.Canceled)
}
