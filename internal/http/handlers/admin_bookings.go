package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/vocal-booking/internal/booking"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// AdminBookingsHandler serves the studio's inbox of received bookings.
type AdminBookingsHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminBookingsHandler creates a new admin bookings handler.
func NewAdminBookingsHandler(db *sql.DB, logger *logging.Logger) *AdminBookingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminBookingsHandler{db: db, logger: logger}
}

// Routes mounts the inbox endpoints.
func (h *AdminBookingsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListBookings)
	r.Get("/{id}", h.GetBooking)
	r.Post("/{id}/redeliver", h.Redeliver)
	return r
}

// BookingResponse is one row of the inbox.
type BookingResponse struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	ServiceType string `json:"service_type"`
	Service     string `json:"service"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	ServiceDate string `json:"service_date,omitempty"`
	ReceivedAt  string `json:"received_at"`
}

// BookingsListResponse is a page of bookings.
type BookingsListResponse struct {
	Bookings   []BookingResponse `json:"bookings"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// DeliveryStatus reports one outbox entry written for the booking.
type DeliveryStatus struct {
	Type        string  `json:"type"`
	Attempts    int     `json:"attempts"`
	LastError   string  `json:"last_error,omitempty"`
	DeliveredAt *string `json:"delivered_at,omitempty"`
}

// BookingDetailResponse adds the stored payload, its readable summary and
// the integration status.
type BookingDetailResponse struct {
	BookingResponse
	Payload    booking.Payload  `json:"payload"`
	Summary    booking.Summary  `json:"summary"`
	Deliveries []DeliveryStatus `json:"deliveries"`
}

const bookingColumns = `id, reference, service_type, customer_name, customer_email, customer_phone, service_date, received_at`

// ListBookings returns received bookings, newest first.
// GET /admin/bookings?page=&page_size=&service=a,b&search=
func (h *AdminBookingsHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var services []string
	if raw := strings.TrimSpace(q.Get("service")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			svc, ok := booking.ParseServiceType(part)
			if !ok {
				http.Error(w, "invalid service", http.StatusBadRequest)
				return
			}
			services = append(services, string(svc))
		}
	}
	search := strings.TrimSpace(q.Get("search"))

	where := " WHERE 1=1"
	var args []any
	argNum := 1
	if len(services) > 0 {
		where += " AND service_type = ANY($" + strconv.Itoa(argNum) + ")"
		args = append(args, pq.Array(services))
		argNum++
	}
	if search != "" {
		n := strconv.Itoa(argNum)
		where += " AND (customer_name ILIKE $" + n + " OR customer_email ILIKE $" + n + " OR reference ILIKE $" + n + ")"
		args = append(args, "%"+search+"%")
		argNum++
	}

	var total int
	if err := h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM bookings"+where, args...).Scan(&total); err != nil {
		h.logger.Error("failed to count bookings", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	query := "SELECT " + bookingColumns + " FROM bookings" + where +
		" ORDER BY received_at DESC LIMIT $" + strconv.Itoa(argNum) + " OFFSET $" + strconv.Itoa(argNum+1)
	rows, err := h.db.QueryContext(r.Context(), query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		h.logger.Error("failed to query bookings", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	bookings := []BookingResponse{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			h.logger.Error("failed to scan booking", "error", err)
			continue
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("failed to iterate bookings", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeAdminJSON(w, http.StatusOK, BookingsListResponse{
		Bookings:   bookings,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

// GetBooking returns one booking by id or reference.
// GET /admin/bookings/{id}?lang=en
func (h *AdminBookingsHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	column, key, ok := bookingKey(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}

	query := "SELECT " + bookingColumns + ", payload FROM bookings WHERE " + column + " = $1"
	var (
		detail  BookingDetailResponse
		payload []byte
	)
	base, err := scanBooking(h.db.QueryRowContext(r.Context(), query, key), &payload)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get booking", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	detail.BookingResponse = base
	if err := json.Unmarshal(payload, &detail.Payload); err != nil {
		h.logger.Error("stored booking payload unreadable", "error", err, "reference", base.Reference)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	detail.Summary = booking.Summarize(detail.Payload.FormData(), booking.ParseLang(r.URL.Query().Get("lang")))

	rows, err := h.db.QueryContext(r.Context(),
		`SELECT type, attempts, last_error, delivered_at FROM outbox WHERE aggregate_id = $1 ORDER BY created_at`,
		base.Reference,
	)
	if err != nil {
		h.logger.Error("failed to query deliveries", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	detail.Deliveries = []DeliveryStatus{}
	for rows.Next() {
		var (
			d           DeliveryStatus
			lastError   sql.NullString
			deliveredAt sql.NullTime
		)
		if err := rows.Scan(&d.Type, &d.Attempts, &lastError, &deliveredAt); err != nil {
			h.logger.Error("failed to scan delivery", "error", err)
			continue
		}
		d.LastError = lastError.String
		if deliveredAt.Valid {
			formatted := deliveredAt.Time.Format(time.RFC3339)
			d.DeliveredAt = &formatted
		}
		detail.Deliveries = append(detail.Deliveries, d)
	}

	writeAdminJSON(w, http.StatusOK, detail)
}

// Redeliver resets the attempt counter of undelivered integration events so
// the outbox picks them up again.
// POST /admin/bookings/{id}/redeliver
func (h *AdminBookingsHandler) Redeliver(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "id")
	if column, key, ok := bookingKey(reference); !ok {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	} else if column == "id" {
		err := h.db.QueryRowContext(r.Context(), `SELECT reference FROM bookings WHERE id = $1`, key).Scan(&reference)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		if err != nil {
			h.logger.Error("failed to resolve booking", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	res, err := h.db.ExecContext(r.Context(),
		`UPDATE outbox SET attempts = 0, last_error = NULL, next_attempt_at = now() WHERE aggregate_id = $1 AND delivered_at IS NULL`,
		reference,
	)
	if err != nil {
		h.logger.Error("failed to reset deliveries", "error", err, "reference", reference)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	n, _ := res.RowsAffected()
	h.logger.Info("booking deliveries requeued", "reference", reference, "count", n)
	writeAdminJSON(w, http.StatusOK, map[string]any{"reference": reference, "requeued": n})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner, extra ...any) (BookingResponse, error) {
	var (
		b           BookingResponse
		serviceDate sql.NullTime
		receivedAt  time.Time
	)
	dest := append([]any{&b.ID, &b.Reference, &b.ServiceType, &b.Name, &b.Email, &b.Phone, &serviceDate, &receivedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return BookingResponse{}, err
	}
	b.Service = booking.ValueLabel(b.ServiceType, booking.LangDE)
	if serviceDate.Valid {
		b.ServiceDate = serviceDate.Time.Format(booking.DateLayout)
	}
	b.ReceivedAt = receivedAt.UTC().Format(time.RFC3339)
	return b, nil
}

// bookingKey accepts either the row uuid or the public reference.
func bookingKey(raw string) (column string, key any, ok bool) {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil {
		return "id", id, true
	}
	if strings.HasPrefix(raw, "VB-") {
		return "reference", raw, true
	}
	return "", nil, false
}

func writeAdminJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
