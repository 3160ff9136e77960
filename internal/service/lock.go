package service

import (
	"context"
	"sync"
	"time"

	"github.com/windfall/engapp_service/internal/client"
)

// SessionLocker guards a session against concurrent submissions. Acquire
// returns ok=false when the session is already locked.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), ok bool, err error)
}

// RedisLocker locks sessions across replicas with SET NX.
type RedisLocker struct {
	redis *client.RedisClient
	ttl   time.Duration
}

// NewRedisLocker creates a new RedisLocker.
func NewRedisLocker(redis *client.RedisClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{redis: redis, ttl: ttl}
}

// Acquire implements SessionLocker.
func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (func(), bool, error) {
	key := "engapp:assessment:lock:" + sessionID
	token, ok, err := l.redis.TryLock(ctx, key, l.ttl)
	if err != nil || !ok {
		return nil, ok, err
	}

	release := func() {
		// the request context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.redis.Unlock(ctx, key, token)
	}
	return release, true, nil
}

// LocalLocker locks sessions within this process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates a new LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire implements SessionLocker.
func (l *LocalLocker) Acquire(_ context.Context, sessionID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[sessionID]; busy {
		return nil, false, nil
	}
	l.held[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}, true, nil
}
