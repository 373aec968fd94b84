package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/vocal-booking/internal/events"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ManifestEntry is one line of the monthly JSONL manifest.
type ManifestEntry struct {
	Reference   string `json:"reference"`
	S3Key       string `json:"s3_key"`
	ServiceType string `json:"service_type"`
	EmailHash   string `json:"email_hash"`
	PhoneHash   string `json:"phone_hash"`
	ReceivedAt  string `json:"received_at"`
}

// Store archives submitted booking payloads to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Key returns the object key for a booking received at t.
func Key(reference string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("bookings/v1/by-date/%d/%02d/%02d/%s.json", t.Year(), t.Month(), t.Day(), reference)
}

func manifestKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("bookings/v1/manifests/%d-%02d.jsonl", t.Year(), t.Month())
}

// Handle implements events.DeliveryHandler for booking.archive.v1.
func (s *Store) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if !s.Enabled() {
		return nil
	}
	evt, err := events.DecodeBookingAccepted(entry)
	if err != nil {
		s.logger.Error("archive: dropping undecodable booking event", "error", err, "event_id", entry.ID)
		return nil
	}
	return s.ArchiveBooking(ctx, evt)
}

// ArchiveBooking writes the booking payload as JSON and appends it to the
// monthly manifest. Rewriting the same reference overwrites the object.
func (s *Store) ArchiveBooking(ctx context.Context, evt events.BookingAcceptedV1) error {
	if !s.Enabled() {
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("archive: marshal booking: %w", err)
	}

	receivedAt := evt.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	key := Key(evt.Reference, receivedAt)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived booking to S3", "reference", evt.Reference, "s3_key", key)

	entry := ManifestEntry{
		Reference:   evt.Reference,
		S3Key:       key,
		ServiceType: string(evt.Booking.ServiceType),
		EmailHash:   HashContact(evt.Booking.Contact.Email),
		PhoneHash:   HashContact(evt.Booking.Contact.Phone),
		ReceivedAt:  receivedAt.UTC().Format(time.RFC3339),
	}
	if err := s.AppendManifest(ctx, receivedAt, entry); err != nil {
		// the payload is already stored
		s.logger.Warn("failed to append manifest", "error", err, "reference", evt.Reference)
	}
	return nil
}

// AppendManifest appends a JSONL line to the manifest of at's month.
// S3 has no append, so this is read-modify-write.
func (s *Store) AppendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	key := manifestKey(at)

	existing, err := s.get(ctx, key)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

// Manifest returns the entries recorded for at's month.
func (s *Store) Manifest(ctx context.Context, at time.Time) ([]ManifestEntry, error) {
	if !s.Enabled() {
		return nil, nil
	}
	data, err := s.get(ctx, manifestKey(at))
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []ManifestEntry
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry ManifestEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("archive: decode manifest line: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

var errNotFound = errors.New("archive: object not found")

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("archive: s3 get %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}

var _ events.DeliveryHandler = (*Store)(nil)
