package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/vocal-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/vocal-booking/internal/http/middleware"
	"github.com/wolfman30/vocal-booking/internal/legal"
	"github.com/wolfman30/vocal-booking/internal/wizard"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	WizardHandler *wizard.Handler
	LegalHandler  *legal.Handler
	AdminBookings *handlers.AdminBookingsHandler
	AdminSecret   string

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// SubmitLimiter throttles session creation and submission per client IP.
	SubmitLimiter *httpmiddleware.RateLimiter

	// ReadinessChecks are run by /ready, keyed by dependency name.
	ReadinessChecks map[string]Check
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	r.Get("/ready", ready(cfg.ReadinessChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WizardHandler != nil {
		var limit func(http.Handler) http.Handler
		if cfg.SubmitLimiter != nil {
			limit = cfg.SubmitLimiter.Middleware
		}
		r.Mount("/booking", cfg.WizardHandler.Routes(limit))
	}
	if cfg.LegalHandler != nil {
		r.Mount("/legal", cfg.LegalHandler.Routes())
	}

	// Admin routes are only mounted with a signing secret; an empty secret
	// would accept nothing anyway.
	if cfg.AdminBookings != nil && cfg.AdminSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminSecret))
			admin.Mount("/bookings", cfg.AdminBookings.Routes())
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ready(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
