package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/vocal-booking/internal/config"
	"github.com/wolfman30/vocal-booking/internal/wizard"
	"github.com/wolfman30/vocal-booking/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore picks the wizard session backend. Redis is required when
// SESSION_STORE=redis; there is no silent fallback to memory because
// sessions would then vanish across replicas.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (wizard.Store, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.SessionStore {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("bootstrap: redis session store requested but redis is unavailable")
		}
		logger.Info("wizard sessions stored in redis", "ttl", cfg.SessionTTL)
		return wizard.NewRedisStore(redisClient, cfg.SessionTTL), nil
	default:
		logger.Info("wizard sessions stored in memory", "ttl", cfg.SessionTTL)
		return wizard.NewMemoryStore(cfg.SessionTTL), nil
	}
}

// BuildSessionLocker returns a Redis lock shared by all replicas when
// sessions live in Redis. Nil keeps the process-local lock.
func BuildSessionLocker(cfg *appconfig.Config, redisClient *redis.Client) wizard.Locker {
	if cfg == nil || cfg.SessionStore != "redis" || redisClient == nil {
		return nil
	}
	return wizard.NewRedisLocker(redisClient, wizard.DefaultLockTTL)
}
