package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Submission modes.
const (
	SubmissionStore = "store"
	SubmissionHTTP  = "http"
	SubmissionStub  = "stub"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Wizard sessions
	SessionStore   string // memory or redis
	SessionTTL     time.Duration
	StudioTimezone string

	// Submission
	SubmissionMode      string
	BookingBackendURL   string
	BookingBackendToken string
	SubmitTimeout       time.Duration
	StubSubmitDelay     time.Duration
	SubmitRatePerMin    float64
	SubmitRateBurst     int

	CORSAllowedOrigins []string
	AdminJWTSecret     string

	// Email
	EmailProvider           string // sendgrid, ses or stub
	SendGridAPIKey          string
	EmailFromAddress        string
	EmailFromName           string
	StudioName              string
	StudioNotificationEmail string

	// AWS
	AWSRegion             string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpointOverride   string
	BookingEventsQueueURL string
	ArchiveBucket         string

	// Google Calendar
	GoogleCalendarID      string
	GoogleCredentialsFile string

	// Outbox
	OutboxInterval    time.Duration
	OutboxBatchSize   int
	OutboxMaxAttempts int
}

// Load reads the environment. A .env file in the working directory is
// loaded first; variables already set take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionStore:   strings.ToLower(getEnv("SESSION_STORE", "memory")),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		StudioTimezone: getEnv("STUDIO_TIMEZONE", "Europe/Berlin"),

		SubmissionMode:      strings.ToLower(getEnv("SUBMISSION_MODE", SubmissionStub)),
		BookingBackendURL:   getEnv("BOOKING_BACKEND_URL", ""),
		BookingBackendToken: getEnv("BOOKING_BACKEND_TOKEN", ""),
		SubmitTimeout:       getEnvAsDuration("SUBMIT_TIMEOUT", 15*time.Second),
		StubSubmitDelay:     getEnvAsDuration("STUB_SUBMIT_DELAY", 1500*time.Millisecond),
		SubmitRatePerMin:    getEnvAsFloat("SUBMIT_RATE_PER_MIN", 10),
		SubmitRateBurst:     getEnvAsInt("SUBMIT_RATE_BURST", 5),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),

		EmailProvider:           strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey:          getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:        getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:           getEnv("EMAIL_FROM_NAME", ""),
		StudioName:              getEnv("STUDIO_NAME", "Vocal Studio"),
		StudioNotificationEmail: getEnv("STUDIO_NOTIFICATION_EMAIL", ""),

		AWSRegion:             getEnv("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BookingEventsQueueURL: getEnv("BOOKING_EVENTS_QUEUE_URL", ""),
		ArchiveBucket:         getEnv("ARCHIVE_BUCKET", ""),

		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),

		OutboxInterval:    getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:   getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxMaxAttempts: getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.SessionStore {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("SESSION_STORE=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}
	switch c.SubmissionMode {
	case SubmissionStub:
	case SubmissionStore:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("SUBMISSION_MODE=store requires DATABASE_URL"))
		}
	case SubmissionHTTP:
		if c.BookingBackendURL == "" {
			errs = append(errs, errors.New("SUBMISSION_MODE=http requires BOOKING_BACKEND_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SUBMISSION_MODE %q", c.SubmissionMode))
	}
	switch c.EmailProvider {
	case "stub", "ses":
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			errs = append(errs, errors.New("EMAIL_PROVIDER=sendgrid requires SENDGRID_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider))
	}
	if c.GoogleCalendarID != "" && c.GoogleCredentialsFile == "" {
		errs = append(errs, errors.New("GOOGLE_CALENDAR_ID requires GOOGLE_CREDENTIALS_FILE"))
	}
	if _, err := time.LoadLocation(c.StudioTimezone); err != nil {
		errs = append(errs, fmt.Errorf("STUDIO_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the studio's time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.StudioTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
