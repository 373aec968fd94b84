package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vocal-booking/pkg/logging"
)

func validMessage() EmailMessage {
	return EmailMessage{
		To:        "anna@example.com",
		ToName:    "Anna Schmidt",
		Subject:   "Ihre Anfrage",
		Body:      "Hallo",
		HTML:      "<p>Hallo</p>",
		ReplyTo:   "studio@example.com",
		Reference: "VB-20250602-3F9A1C2B",
	}
}

func TestEmailMessageValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EmailMessage)
		ok     bool
	}{
		{"valid", func(*EmailMessage) {}, true},
		{"text only", func(m *EmailMessage) { m.HTML = "" }, true},
		{"bad recipient", func(m *EmailMessage) { m.To = "not-an-address" }, false},
		{"bad reply-to", func(m *EmailMessage) { m.ReplyTo = "@" }, false},
		{"no subject", func(m *EmailMessage) { m.Subject = "  " }, false},
		{"no body", func(m *EmailMessage) { m.Body, m.HTML = "", "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(&msg)
			err := msg.validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrRejected)
		})
	}
}

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "a***@example.com", maskAddress("anna@example.com"))
	assert.Equal(t, "***", maskAddress("nobody"))
	assert.Equal(t, "***", maskAddress("@example.com"))
}

func TestNewSendGridSender(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "studio@example.com"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromEmail: "studio@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, DefaultFromName, sender.fromName)

	sender = NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromEmail: "studio@example.com", FromName: "Studio Kühn"}, nil)
	assert.Equal(t, "Studio Kühn", sender.fromName)
}

func newSendGridTestSender(t *testing.T, status int, capture *map[string]any) *SendGridSender {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		if capture != nil {
			_ = json.Unmarshal(body, capture)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromEmail: "studio@example.com"}, logging.New("error"))
	require.NotNil(t, sender)
	sender.client.BaseURL = srv.URL + "/v3/mail/send"
	return sender
}

func TestSendGridSender_Send(t *testing.T) {
	var payload map[string]any
	sender := newSendGridTestSender(t, http.StatusAccepted, &payload)

	require.NoError(t, sender.Send(context.Background(), validMessage()))
	assert.Equal(t, "Ihre Anfrage", payload["subject"])
	assert.Equal(t, map[string]any{"reference": "VB-20250602-3F9A1C2B"}, payload["custom_args"])
	assert.Equal(t, []any{"booking"}, payload["categories"])
}

func TestSendGridSender_StatusClassification(t *testing.T) {
	err := newSendGridTestSender(t, http.StatusBadRequest, nil).Send(context.Background(), validMessage())
	assert.ErrorIs(t, err, ErrRejected)

	err = newSendGridTestSender(t, http.StatusTooManyRequests, nil).Send(context.Background(), validMessage())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)

	err = newSendGridTestSender(t, http.StatusBadGateway, nil).Send(context.Background(), validMessage())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestSendGridSender_NilClient(t *testing.T) {
	assert.Error(t, (&SendGridSender{}).Send(context.Background(), validMessage()))
}

func TestStubEmailSender(t *testing.T) {
	sender := NewStubEmailSender(logging.New("error"))

	require.NoError(t, sender.Send(context.Background(), validMessage()))
	assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{To: "broken"}), ErrRejected)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "VB-20250602-3F9A1C2B", sent[0].Reference)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "studio@example.com", FromName: "Studio Kühn", ConfigurationSet: "bookings"}, logging.New("error"))

	require.NoError(t, sender.Send(context.Background(), validMessage()))

	in := client.input
	require.Len(t, in.Destination.ToAddresses, 1)
	assert.True(t, strings.HasSuffix(in.Destination.ToAddresses[0], "<anna@example.com>"))
	assert.True(t, strings.HasSuffix(aws.ToString(in.FromEmailAddress), "<studio@example.com>"))
	assert.Equal(t, "<p>Hallo</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
	assert.Equal(t, "Hallo", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Equal(t, []string{"studio@example.com"}, in.ReplyToAddresses)
	assert.Equal(t, "bookings", aws.ToString(in.ConfigurationSetName))

	tags := map[string]string{}
	for _, tag := range in.EmailTags {
		tags[aws.ToString(tag.Name)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{"kind": "booking", "reference": "VB-20250602-3F9A1C2B"}, tags)
}

func TestSESSender_Errors(t *testing.T) {
	logger := logging.New("error")

	err := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "studio@example.com"}, logger).
		Send(context.Background(), validMessage())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)

	err = NewSESSender(&fakeSES{err: &types.MessageRejected{Message: aws.String("address blacklisted")}}, SESConfig{FromEmail: "studio@example.com"}, logger).
		Send(context.Background(), validMessage())
	assert.ErrorIs(t, err, ErrRejected)

	client := &fakeSES{}
	err = NewSESSender(client, SESConfig{FromEmail: "studio@example.com"}, logger).
		Send(context.Background(), EmailMessage{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Nil(t, client.input)

	assert.Nil(t, NewSESSender(nil, SESConfig{}, logger))
}
