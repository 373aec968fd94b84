package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

func newTestRouter(t *testing.T, sub booking.Submitter) http.Handler {
	t.Helper()
	h := NewHandler(newTestService(t, sub), logging.New("error"))
	r := chi.NewRouter()
	r.Mount("/booking", h.Routes(nil))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandler_FullFlow(t *testing.T) {
	router := newTestRouter(t, &recordingSubmitter{})

	rec := do(t, router, http.MethodPost, "/booking/sessions", `{"service":"coaching"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[View](t, rec)
	assert.Equal(t, booking.StepPersonal, view.Step)
	base := "/booking/sessions/" + view.ID

	rec = do(t, router, http.MethodPatch, base+"/data", `{"name":"Ada","email":"ada@example.com","phone":"0301234"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[View](t, rec).CanAdvance)

	rec = do(t, router, http.MethodPost, base+"/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPatch, base+"/data", `{"sessionType":"1:1","skillLevel":"beginner"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, base+"/toggle", `{"field":"focusArea","value":"breathing"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"breathing"}, decode[View](t, rec).Data.FocusArea)

	rec = do(t, router, http.MethodPost, base+"/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booking.StepConfirm, decode[View](t, rec).Step)

	rec = do(t, router, http.MethodPatch, base+"/data", `{"termsAccepted":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[struct {
		Issues []booking.Issue `json:"issues"`
	}](t, rec)
	require.Len(t, body.Issues, 1)
	assert.Equal(t, "privacyAccepted", body.Issues[0].Field)

	rec = do(t, router, http.MethodGet, base+"/summary?lang=en", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[booking.Summary](t, rec)
	assert.Equal(t, "Vocal Coaching", summary.Service)
	assert.Equal(t, []string{"Privacy Policy (Datenschutzerklärung)"}, summary.MissingConsents)

	rec = do(t, router, http.MethodPatch, base+"/data", `{"privacyAccepted":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[View](t, rec)
	assert.Equal(t, booking.StatusDone, done.Status)
	assert.Equal(t, "VB-TEST", done.Confirmation.Reference)

	rec = do(t, router, http.MethodPost, base+"/retreat", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_ErrorMapping(t *testing.T) {
	router := newTestRouter(t, &recordingSubmitter{})
	rec := do(t, router, http.MethodPost, "/booking/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/booking/sessions/" + decode[View](t, rec).ID

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown session", http.MethodGet, "/booking/sessions/missing", "", http.StatusNotFound},
		{"malformed json", http.MethodPatch, base + "/data", `{"name":`, http.StatusBadRequest},
		{"unknown field", http.MethodPatch, base + "/data", `{"serviceType":"workshop"}`, http.StatusBadRequest},
		{"advance without service", http.MethodPost, base + "/advance", "", http.StatusUnprocessableEntity},
		{"unknown service", http.MethodPut, base + "/service", `{"serviceType":"karaoke"}`, http.StatusUnprocessableEntity},
		{"inactive group", http.MethodPatch, base + "/data", `{"eventType":"wedding"}`, http.StatusUnprocessableEntity},
		{"nothing to cancel", http.MethodPost, base + "/cancel", "", http.StatusConflict},
		{"bad deep link", http.MethodPost, "/booking/sessions?service=karaoke", "", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_SubmitFailureReturnsSession(t *testing.T) {
	sub := &recordingSubmitter{fn: func(context.Context, booking.Payload) (*booking.Confirmation, error) {
		return nil, &booking.SubmissionError{Op: "post booking", Retryable: true, Err: errors.New("503 from backend")}
	}}
	svc := newTestService(t, sub)
	id := readyToSubmit(t, svc)
	r := chi.NewRouter()
	r.Mount("/booking", NewHandler(svc, logging.New("error")).Routes(nil))

	rec := do(t, r, http.MethodPost, "/booking/sessions/"+id+"/submit", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode[struct {
		Retryable bool `json:"retryable"`
		Session   View `json:"session"`
	}](t, rec)
	assert.True(t, body.Retryable)
	assert.Equal(t, booking.StatusFailed, body.Session.Status)
	assert.Equal(t, "Ada", body.Session.Data.Name)
}

func TestHandler_DismissAndSelectService(t *testing.T) {
	router := newTestRouter(t, &recordingSubmitter{})
	rec := do(t, router, http.MethodPost, "/booking/sessions", "")
	base := "/booking/sessions/" + decode[View](t, rec).ID

	rec = do(t, router, http.MethodPut, base+"/service", `{"serviceType":"live-singing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, booking.ServiceLiveSinging, decode[View](t, rec).Data.ServiceType)

	rec = do(t, router, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CatalogAndCalendar(t *testing.T) {
	router := newTestRouter(t, &recordingSubmitter{})

	rec := do(t, router, http.MethodGet, "/booking/services?lang=de", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hochzeit")
	assert.Contains(t, rec.Body.String(), `"maxPreferredDates":5`)

	rec = do(t, router, http.MethodGet, "/booking/calendar?service=vocal-coaching&from=2025-06-06&days=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cal := decode[struct {
		Today string        `json:"today"`
		Days  []booking.Day `json:"days"`
	}](t, rec)
	assert.Equal(t, "2025-06-02", cal.Today)
	require.Len(t, cal.Days, 3)
	assert.False(t, cal.Days[0].Disabled)
	assert.True(t, cal.Days[1].Disabled)
	assert.True(t, cal.Days[2].Disabled)

	for _, bad := range []string{"days=0", "days=abc", "from=06.06.2025", "service=karaoke"} {
		rec = do(t, router, http.MethodGet, "/booking/calendar?"+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestHandler_RateLimitMiddlewareApplied(t *testing.T) {
	var hits int
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			if strings.HasSuffix(r.URL.Path, "/submit") {
				http.Error(w, "slow down", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	h := NewHandler(newTestService(t, &recordingSubmitter{}), logging.New("error"))
	r := chi.NewRouter()
	r.Mount("/booking", h.Routes(limit))

	rec := do(t, r, http.MethodPost, "/booking/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[View](t, rec).ID

	do(t, r, http.MethodGet, "/booking/sessions/"+id, "")
	rec = do(t, r, http.MethodPost, "/booking/sessions/"+id+"/submit", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, hits)
}

func TestHandler_SubmitBeforeConfirmConflicts(t *testing.T) {
	sub := &recordingSubmitter{}
	router := newTestRouter(t, sub)
	rec := do(t, router, http.MethodPost, "/booking/sessions", `{"service":"coaching"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/booking/sessions/" + decode[View](t, rec).ID

	rec = do(t, router, http.MethodPatch, base+"/data", `{"name":"Ada","email":"ada@example.com","phone":"0301234","sessionType":"1:1","skillLevel":"beginner","termsAccepted":true,"privacyAccepted":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[View](t, rec).CanSubmit)

	rec = do(t, router, http.MethodPost, base+"/submit", "")
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Zero(t, sub.calls())
}
