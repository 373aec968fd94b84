package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vocal-booking/cmd/mainconfig"
	"github.com/wolfman30/vocal-booking/internal/api/router"
	"github.com/wolfman30/vocal-booking/internal/app/bootstrap"
	"github.com/wolfman30/vocal-booking/internal/booking"
	appconfig "github.com/wolfman30/vocal-booking/internal/config"
	"github.com/wolfman30/vocal-booking/internal/events"
	"github.com/wolfman30/vocal-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/vocal-booking/internal/http/middleware"
	"github.com/wolfman30/vocal-booking/internal/legal"
	"github.com/wolfman30/vocal-booking/internal/notify"
	"github.com/wolfman30/vocal-booking/internal/observability/metrics"
	"github.com/wolfman30/vocal-booking/internal/wizard"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting vocal-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"submission_mode", cfg.SubmissionMode,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	if cfg.SubmissionMode == appconfig.SubmissionStore && pool == nil {
		return errors.New("store submission mode needs a reachable database")
	}

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open admin db: %w", err)
		}
		defer func() { _ = db.Close() }()
		sqlDB = db
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	sessions, err := bootstrap.BuildSessionStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	deps, err := buildIntegrations(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	dispatcher, err := bootstrap.BuildDispatcher(ctx, cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("build outbox handlers: %w", err)
	}
	submitter, err := bootstrap.BuildSubmitter(cfg, pool, dispatcher.Types(), logger)
	if err != nil {
		return err
	}

	metricsHandler, bookingMetrics := setupMetrics()

	if pool != nil && cfg.SubmissionMode == appconfig.SubmissionStore {
		outbox := events.NewOutboxStore(pool).WithMaxAttempts(cfg.OutboxMaxAttempts)
		deliverer := events.NewDeliverer(outbox, dispatcher, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxInterval).
			WithMetrics(bookingMetrics)
		go deliverer.Start(ctx)
		logger.Info("outbox deliverer started", "interval", cfg.OutboxInterval, "types", dispatcher.Types())
	}

	loc := cfg.Location()
	svc := wizard.NewService(sessions, submitter, logger,
		wizard.WithCalendar(booking.Calendar{Location: loc}),
		wizard.WithMetrics(bookingMetrics),
		wizard.WithSubmitTimeout(cfg.SubmitTimeout),
		wizard.WithLocker(bootstrap.BuildSessionLocker(cfg, redisClient)),
	)

	docs, err := legal.Load()
	if err != nil {
		return fmt.Errorf("load legal documents: %w", err)
	}

	routerCfg := &router.Config{
		Logger:             logger,
		WizardHandler:      wizard.NewHandler(svc, logger),
		LegalHandler:       legal.NewHandler(docs, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SubmitLimiter:      httpmiddleware.NewRateLimiter(cfg.SubmitRatePerMin, cfg.SubmitRateBurst),
		ReadinessChecks:    readinessChecks(pool, redisClient),
	}
	if sqlDB != nil {
		routerCfg.AdminBookings = handlers.NewAdminBookingsHandler(sqlDB, logger)
		routerCfg.AdminSecret = cfg.AdminJWTSecret
		if cfg.AdminJWTSecret == "" {
			logger.Warn("ADMIN_JWT_SECRET not set; admin booking inbox disabled")
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, srv, logger)
}

// serve blocks until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

// needsAWS reports whether any configured integration talks to AWS.
func needsAWS(cfg *appconfig.Config) bool {
	return cfg.EmailProvider == "ses" || cfg.ArchiveBucket != "" || cfg.BookingEventsQueueURL != ""
}

func buildIntegrations(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (bootstrap.Integrations, error) {
	var deps bootstrap.Integrations
	// stays a nil interface without AWS; a nil *sesv2.Client would not
	var ses notify.SESAPI
	if needsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return deps, fmt.Errorf("load AWS config: %w", err)
		}
		sqsClient, s3Client, sesClient := bootstrap.AWSClients(awsCfg, cfg)
		deps.SQS, deps.S3 = sqsClient, s3Client
		ses = sesClient
	}
	deps.Email = bootstrap.BuildEmailSender(cfg, ses, logger)
	if pool != nil {
		deps.Processed = events.NewProcessedStore(pool)
	}
	return deps, nil
}

func readinessChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.Check {
	checks := map[string]router.Check{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
