package ratelimit

import (
	"context"
	"sync"
	"time"
)

type tokenEntry struct {
	count      int
	refilledAt time.Time
}

// TokenBucket holds up to capacity tokens per key and regains one token every
// refill interval. Unknown keys start full.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int
	refill   time.Duration
	entries  map[string]tokenEntry
	now      func() time.Time
}

func NewTokenBucket(capacity int, refill time.Duration, opts ...Option) *TokenBucket {
	o := buildOptions(opts)
	return &TokenBucket{
		capacity: capacity,
		refill:   refill,
		entries:  make(map[string]tokenEntry),
		now:      o.now,
	}
}

// refilled applies the whole intervals elapsed since the last refill.
// Partial intervals are carried over by advancing refilledAt only by whole steps.
func (b *TokenBucket) refilled(e tokenEntry, now time.Time) tokenEntry {
	if b.refill <= 0 {
		return tokenEntry{count: b.capacity, refilledAt: now}
	}
	n := int(now.Sub(e.refilledAt) / b.refill)
	if n <= 0 {
		return e
	}
	if e.count+n >= b.capacity {
		return tokenEntry{count: b.capacity, refilledAt: now}
	}
	e.count += n
	e.refilledAt = e.refilledAt.Add(time.Duration(n) * b.refill)
	return e
}

func (b *TokenBucket) Check(_ context.Context, key string, cost int) (bool, error) {
	if cost <= 0 {
		return true, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return cost <= b.capacity, nil
	}
	return b.refilled(e, b.now()).count >= cost, nil
}

func (b *TokenBucket) Consume(_ context.Context, key string, cost int) (bool, error) {
	if cost <= 0 {
		return true, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	e, ok := b.entries[key]
	if !ok {
		e = tokenEntry{count: b.capacity, refilledAt: now}
	}
	e = b.refilled(e, now)
	if e.count < cost {
		b.entries[key] = e
		return false, nil
	}
	e.count -= cost
	b.entries[key] = e
	return true, nil
}

// Prune removes keys whose bucket has refilled completely, since they are
// indistinguishable from unseen keys.
func (b *TokenBucket) Prune(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for k, e := range b.entries {
		if b.refilled(e, now).count >= b.capacity {
			delete(b.entries, k)
			removed++
		}
	}
	return removed
}

func (b *TokenBucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
