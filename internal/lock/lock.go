// Package lock guards items against concurrent transfers.
//
// [LocalLocker] covers workers inside one process. [RedisLocker] extends the guarantee across processes sharing a
// journal, using the SET NX pattern with a token checked on release.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = fmt.Errorf("%w: lock is already held", shared.ErrItemBusy)

// Locker hands out exclusive, non-blocking locks keyed by string.
type Locker interface {
	// TryLock acquires key or returns [ErrLocked]. The returned unlock func must be called to release it.
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// ItemKey returns the lock key for an item.
func ItemKey(itemID string) string {
	return "yt2pt:item:" + itemID
}

// LocalLocker is an in-process [Locker].
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock implements [Locker].
func (l *LocalLocker) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked.
func (l *LocalLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`

// RedisLocker is a [Locker] backed by Redis keys with a TTL.
//
// The TTL bounds how long a crashed holder can block an item.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisLocker parses a Redis URL (e.g. "redis://host:6379/0") and returns a locker using it.
//
// Failed releases are logged to logger; a nil logger uses the default one.
func NewRedisLocker(rawURL string, ttl time.Duration, logger *log.Logger) (*RedisLocker, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %w", shared.ErrInvalidConfig, err)
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RedisLocker{client: redis.NewClient(opts), ttl: ttl, logger: logger}, nil
}

// Ping checks the connection to Redis.
func (r *RedisLocker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

// TryLock implements [Locker].
func (r *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	token := shared.GenerateID()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return r.unlockFunc(key, token), nil
}

func (r *RedisLocker) unlockFunc(key, token string) func() {
	return func() {
		if err := r.release(key, token); err != nil {
			r.logger.Warn("lock release failed, held until ttl", "key", key, "ttl", r.ttl, "err", err)
		}
	}
}

// release deletes key if it still holds token.
func (r *RedisLocker) release(key, token string) error {
	if err := r.client.Eval(context.Background(), unlockScript, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	return nil
}

// New returns the [Locker] described by cfg and a func releasing its resources.
//
// An empty RedisURL yields a [LocalLocker].
func New(ctx context.Context, cfg shared.LockConfig, logger *log.Logger) (Locker, func() error, error) {
	if cfg.RedisURL == "" {
		return NewLocalLocker(), func() error { return nil }, nil
	}

	rl, err := NewRedisLocker(cfg.RedisURL, cfg.TTL.Duration, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := rl.Ping(ctx); err != nil {
		rl.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return rl, rl.Close, nil
}

// IsLocked reports whether err means the lock was held by someone else.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}
