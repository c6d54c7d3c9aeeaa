// Package lock provides a Redis mutex used to serialize queue regeneration
// across API replicas.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release and Renew when the key expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// RedisLock is a TTL-bounded mutex keyed by name. Holders are identified by a
// random token so an expired holder cannot release a successor's lock. While
// held, the TTL is renewed every third of its length; a crashed holder blocks
// others for at most one TTL.
type RedisLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// NewRedisLock builds a lock; ttl bounds how long a crashed holder blocks others.
func NewRedisLock(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLock{
		client: client,
		prefix: "lock:",
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

// Lock blocks until key is acquired or ctx ends. The returned func stops
// renewal and releases the lock; it is safe to call more than once.
func (l *RedisLock) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	for {
		ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return l.hold(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLock) hold(key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		interval := l.ttl / 3
		if interval <= 0 {
			interval = l.ttl
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := l.Renew(context.Background(), key, token); err != nil {
					l.logger.Warn("renew lock", "key", key, "error", err)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release must run even when the caller's ctx is already done.
			if err := l.Release(context.Background(), key, token); err != nil {
				l.logger.Warn("release lock", "key", key, "error", err)
			}
		})
	}
}

// Renew resets the TTL of key if it is still held with token.
func (l *RedisLock) Renew(ctx context.Context, key, token string) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.prefix + key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release deletes key if it is still held with token.
func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
