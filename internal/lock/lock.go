// Package lock provides the per-session single-writer guard around the
// store's load-modify-save cycle. Two turns of the same session must never
// be processed concurrently; turns of different sessions are independent.
package lock

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Locker serializes writers per key. Acquire blocks until the lock is held
// or ctx is done; the returned release function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
	Close() error
}

// New creates a redis-backed locker when an address is configured (for
// multi-instance deployments), otherwise an in-process one.
func New(redisAddr string, ttl time.Duration) (Locker, error) {
	if strings.TrimSpace(redisAddr) == "" {
		return NewLocalLocker(), nil
	}
	return NewRedisLocker(redisAddr, ttl)
}

// LocalLocker keys mutexes by session id. Slots are buffered channels so
// Acquire can respect context cancellation while waiting.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-slot })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) Close() error { return nil }
