package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes work on one session. The returned func releases the
// lock and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// keyedMutex is the process-local Locker. Entries are dropped once the last
// holder or waiter is done.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	slot chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{slot: make(chan struct{}, 1)}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, m)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-m.slot
			k.drop(key, m)
		})
	}, nil
}

func (k *keyedMutex) drop(key string, m *refMutex) {
	k.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

const (
	// DefaultLockTTL bounds how long a crashed holder can block a session.
	DefaultLockTTL = 10 * time.Second

	lockRetryMin = 10 * time.Millisecond
	lockRetryMax = 200 * time.Millisecond
)

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica using the same Redis.
// Holders only keep the lock for a load-modify-save cycle, never across a
// submitter call.
type RedisLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisLocker wraps client. A ttl <= 0 uses DefaultLockTTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if client == nil {
		panic("wizard: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{redis: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	k := lockKey(key)
	wait := lockRetryMin
	for {
		ok, err := l.redis.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("wizard: acquire session lock: %w", err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > lockRetryMax {
			wait = lockRetryMax
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be done
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// a lock left behind expires with its TTL
			_ = releaseScript.Run(rctx, l.redis, []string{k}, token).Err()
		})
	}, nil
}

func lockKey(id string) string {
	return fmt.Sprintf("booking:lock:%s", id)
}
