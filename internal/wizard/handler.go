package wizard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

const (
	defaultCalendarDays = 42
	maxCalendarDays     = 120
	maxBodyBytes        = 64 << 10
)

// Handler exposes the wizard over JSON HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new wizard handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the booking API. limit, when set, guards session creation
// and submission.
func (h *Handler) Routes(limit func(http.Handler) http.Handler) chi.Router {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	r := chi.NewRouter()
	r.Get("/services", h.Catalog)
	r.Get("/calendar", h.Calendar)
	r.With(limit).Post("/sessions", h.Start)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Dismiss)
		r.Put("/service", h.SelectService)
		r.Patch("/data", h.Update)
		r.Post("/toggle", h.Toggle)
		r.Post("/advance", h.Advance)
		r.Post("/retreat", h.Retreat)
		r.Get("/summary", h.Summary)
		r.With(limit).Post("/submit", h.Submit)
		r.Post("/cancel", h.Cancel)
	})
	return r
}

type option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type serviceCatalog struct {
	Value    booking.ServiceType `json:"value"`
	Label    string              `json:"label"`
	Required []string            `json:"required"`
	Options  map[string][]option `json:"options"`
}

func options[T ~string](values []T, lang booking.Lang) []option {
	out := make([]option, 0, len(values))
	for _, v := range values {
		out = append(out, option{Value: string(v), Label: booking.ValueLabel(string(v), lang)})
	}
	return out
}

// Catalog handles GET /booking/services.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	lang := booking.ParseLang(r.URL.Query().Get("lang"))
	guestCounts := make([]option, 0, len(booking.GuestCounts))
	for _, g := range booking.GuestCounts {
		guestCounts = append(guestCounts, option{Value: string(g), Label: string(g)})
	}
	groupSizes := make([]option, 0, len(booking.GroupSizes))
	for _, g := range booking.GroupSizes {
		groupSizes = append(groupSizes, option{Value: string(g), Label: string(g)})
	}
	catalog := []serviceCatalog{
		{
			Value:    booking.ServiceLiveSinging,
			Label:    booking.ValueLabel(string(booking.ServiceLiveSinging), lang),
			Required: []string{"eventType", "eventDate"},
			Options: map[string][]option{
				"eventType":        options(booking.EventTypes, lang),
				"guestCount":       guestCounts,
				"performanceType":  options(booking.PerformanceTypes, lang),
				"musicPreferences": options(booking.MusicPreferenceOptions, lang),
			},
		},
		{
			Value:    booking.ServiceVocalCoaching,
			Label:    booking.ValueLabel(string(booking.ServiceVocalCoaching), lang),
			Required: []string{"sessionType", "skillLevel"},
			Options: map[string][]option{
				"sessionType": options(booking.SessionTypes, lang),
				"skillLevel":  options(booking.SkillLevels, lang),
				"focusArea":   options(booking.FocusAreaOptions, lang),
			},
		},
		{
			Value:    booking.ServiceWorkshop,
			Label:    booking.ValueLabel(string(booking.ServiceWorkshop), lang),
			Required: []string{"workshopTheme", "groupSize"},
			Options: map[string][]option{
				"workshopTheme":    options(booking.WorkshopThemes, lang),
				"groupSize":        groupSizes,
				"workshopDuration": options(booking.WorkshopDurations, lang),
			},
		},
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services":          catalog,
		"maxPreferredDates": booking.MaxPreferredDates,
	})
}

// Calendar handles GET /booking/calendar?service=&from=&days=.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	cal := h.service.Calendar()
	q := r.URL.Query()

	svc := booking.ServiceNone
	if raw := q.Get("service"); raw != "" {
		parsed, ok := booking.ParseServiceType(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown service")
			return
		}
		svc = parsed
	}

	from := cal.Today()
	if raw := q.Get("from"); raw != "" {
		parsed, err := cal.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = parsed
	}

	days := defaultCalendarDays
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxCalendarDays {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 120")
			return
		}
		days = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": svc,
		"today":   cal.FormatDate(cal.Today()),
		"days":    cal.Days(svc, from, days),
	})
}

type startRequest struct {
	Service string `json:"service"`
}

// Start handles POST /booking/sessions. The service deep link may come from
// the body or the query string.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	raw := req.Service
	if raw == "" {
		raw = r.URL.Query().Get("service")
	}
	svc := booking.ServiceNone
	if raw != "" {
		parsed, ok := booking.ParseServiceType(raw)
		if !ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "unknown service",
				"issues": []booking.Issue{{Field: "serviceType", Code: booking.CodeInvalid, Message: "unsupported value"}},
			})
			return
		}
		svc = parsed
	}

	view, err := h.service.Start(r.Context(), svc)
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}
	logging.FromContext(r.Context(), h.logger).Info("booking session started", "session_id", view.ID, "service", svc)
	writeJSON(w, http.StatusCreated, view)
}

// Get handles GET /booking/sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// Dismiss handles DELETE /booking/sessions/{id}.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Dismiss(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectServiceRequest struct {
	ServiceType string `json:"serviceType"`
}

// SelectService handles PUT /booking/sessions/{id}/service.
func (h *Handler) SelectService(w http.ResponseWriter, r *http.Request) {
	var req selectServiceRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	svc, ok := booking.ParseServiceType(req.ServiceType)
	if !ok {
		svc = booking.ServiceType(req.ServiceType)
	}
	view, err := h.service.SelectService(r.Context(), chi.URLParam(r, "id"), svc)
	h.respond(w, view, err)
}

// Update handles PATCH /booking/sessions/{id}/data.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var patch booking.Patch
	if err := decodeStrict(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	h.respond(w, view, err)
}

type toggleRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Toggle handles POST /booking/sessions/{id}/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.service.Toggle(r.Context(), chi.URLParam(r, "id"), booking.MultiField(req.Field), req.Value)
	h.respond(w, view, err)
}

// Advance handles POST /booking/sessions/{id}/advance.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Advance(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// Retreat handles POST /booking/sessions/{id}/retreat.
func (h *Handler) Retreat(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Retreat(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

// Summary handles GET /booking/sessions/{id}/summary?lang=.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	lang := booking.ParseLang(r.URL.Query().Get("lang"))
	summary, err := h.service.Summary(r.Context(), chi.URLParam(r, "id"), lang)
	if err != nil {
		h.writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Submit handles POST /booking/sessions/{id}/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Cancel handles POST /booking/sessions/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, view, err)
}

func (h *Handler) respond(w http.ResponseWriter, view *View, err error) {
	if err != nil {
		h.writeServiceError(w, err, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// writeServiceError maps service errors onto status codes. view, when
// present, is the session state after the failed call.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, view *View) {
	if ve, ok := booking.IsValidationError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"step":   ve.Step,
			"issues": ve.Issues,
		})
		return
	}

	body := map[string]any{"error": err.Error()}
	if view != nil {
		body["session"] = view
	}

	var se *booking.SubmissionError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, booking.ErrSubmitting),
		errors.Is(err, booking.ErrCompleted),
		errors.Is(err, booking.ErrLastStep),
		errors.Is(err, booking.ErrNotAtConfirm),
		errors.Is(err, ErrNothingToCancel),
		errors.Is(err, ErrSubmissionInProgress),
		errors.Is(err, ErrSubmissionCancelled):
		writeJSON(w, http.StatusConflict, body)
	case errors.As(err, &se):
		body["error"] = "booking could not be submitted"
		body["retryable"] = se.Retryable
		writeJSON(w, http.StatusBadGateway, body)
	default:
		h.logger.Error("booking request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
