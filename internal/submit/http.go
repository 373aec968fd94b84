// Package submit holds booking.Submitter implementations that hand the
// payload to something outside this service.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// HTTPSubmitter POSTs the payload as JSON to a remote booking backend.
type HTTPSubmitter struct {
	httpClient *http.Client
	endpoint   string
	token      string
	logger     *logging.Logger
	now        func() time.Time
}

// NewHTTPSubmitter constructs a submitter for endpoint. token, when set, is
// sent as a bearer token.
func NewHTTPSubmitter(endpoint, token string, client *http.Client, logger *logging.Logger) (*HTTPSubmitter, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("submit: backend url required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPSubmitter{
		httpClient: client,
		endpoint:   endpoint,
		token:      strings.TrimSpace(token),
		logger:     logger,
		now:        time.Now,
	}, nil
}

type backendResponse struct {
	Reference  string    `json:"reference"`
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// Submit implements booking.Submitter. Network errors, 429 and 5xx are
// retryable; other non-2xx responses are not.
func (s *HTTPSubmitter) Submit(ctx context.Context, payload booking.Payload) (*booking.Confirmation, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &booking.SubmissionError{Op: "marshal payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &booking.SubmissionError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		retryable := !errors.Is(err, context.Canceled)
		return nil, &booking.SubmissionError{Op: "post booking", Retryable: retryable, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		s.logger.Warn("booking backend rejected submission",
			"status", resp.StatusCode,
			"retryable", retryable,
			"body", truncate(string(respBody), 256),
		)
		return nil, &booking.SubmissionError{
			Op:        "post booking",
			Retryable: retryable,
			Err:       fmt.Errorf("backend returned %d", resp.StatusCode),
		}
	}

	var decoded backendResponse
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			// the booking was accepted; a malformed body must not turn it into a retry
			s.logger.Warn("booking backend returned unreadable body", "error", err)
		}
	}
	conf := &booking.Confirmation{Reference: decoded.Reference, ReceivedAt: decoded.ReceivedAt}
	if conf.Reference == "" {
		conf.Reference = decoded.ID
	}
	if conf.ReceivedAt.IsZero() {
		conf.ReceivedAt = s.now().UTC()
	}
	return conf, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
