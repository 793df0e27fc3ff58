package ratelimit

import (
	"context"
	"sync"
	"time"
)

type expiringEntry struct {
	remaining int
	resetAt   time.Time
}

// ExpiringTokenBucket grants capacity uses per key and restores all of them
// once window has elapsed since the first use of the current cycle.
type ExpiringTokenBucket struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	entries  map[string]expiringEntry
	now      func() time.Time
}

func NewExpiringTokenBucket(capacity int, window time.Duration, opts ...Option) *ExpiringTokenBucket {
	o := buildOptions(opts)
	return &ExpiringTokenBucket{
		capacity: capacity,
		window:   window,
		entries:  make(map[string]expiringEntry),
		now:      o.now,
	}
}

func (b *ExpiringTokenBucket) Check(_ context.Context, key string, cost int) (bool, error) {
	if cost <= 0 {
		return true, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok || !b.now().Before(e.resetAt) {
		return cost <= b.capacity, nil
	}
	return e.remaining >= cost, nil
}

func (b *ExpiringTokenBucket) Consume(_ context.Context, key string, cost int) (bool, error) {
	if cost <= 0 {
		return true, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	e, ok := b.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = expiringEntry{remaining: b.capacity, resetAt: now.Add(b.window)}
	}
	if e.remaining < cost {
		b.entries[key] = e
		return false, nil
	}
	e.remaining -= cost
	b.entries[key] = e
	return true, nil
}

func (b *ExpiringTokenBucket) Reset(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

// Prune removes keys whose window has rolled over.
func (b *ExpiringTokenBucket) Prune(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for k, e := range b.entries {
		if !now.Before(e.resetAt) {
			delete(b.entries, k)
			removed++
		}
	}
	return removed
}
