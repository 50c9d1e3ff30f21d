package digest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLocked is returned by a Locker when another worker holds the key.
var ErrLocked = errors.New("digest: lock held by another worker")

// Locker serializes digest work per player across batch runs.
type Locker interface {
	// TryLock acquires key for at most ttl without waiting. The returned
	// function releases the lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// MemoryLocker is an in-process Locker for single-instance deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// TryLock implements Locker. Expired leases are taken over.
func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrLocked
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == expires {
			delete(l.held, key)
		}
		return nil
	}, nil
}
