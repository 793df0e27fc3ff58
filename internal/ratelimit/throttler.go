package ratelimit

import (
	"context"
	"sync"
	"time"
)

type throttleEntry struct {
	index        int
	blockedUntil time.Time
}

// MemoryThrottler enforces an escalating delay between successive calls to
// Consume for the same key. Each allowed call advances one step through the
// schedule, clamped at the last delay.
type MemoryThrottler struct {
	mu       sync.Mutex
	schedule []time.Duration
	entries  map[string]throttleEntry
	now      func() time.Time
}

func NewThrottler(schedule []time.Duration, opts ...Option) *MemoryThrottler {
	o := buildOptions(opts)
	return &MemoryThrottler{
		schedule: append([]time.Duration(nil), schedule...),
		entries:  make(map[string]throttleEntry),
		now:      o.now,
	}
}

func (t *MemoryThrottler) Consume(_ context.Context, key string) (bool, error) {
	if len(t.schedule) == 0 {
		return true, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	e, ok := t.entries[key]
	if !ok {
		t.entries[key] = throttleEntry{index: 0, blockedUntil: now.Add(t.schedule[0])}
		return true, nil
	}
	if now.Before(e.blockedUntil) {
		return false, nil
	}
	e.index = min(e.index+1, len(t.schedule)-1)
	e.blockedUntil = now.Add(t.schedule[e.index])
	t.entries[key] = e
	return true, nil
}

func (t *MemoryThrottler) Reset(_ context.Context, key string) error {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
	return nil
}

// Prune forgets keys that have been idle for the longest delay of the
// schedule after their block ended.
func (t *MemoryThrottler) Prune(now time.Time) int {
	if len(t.schedule) == 0 {
		return 0
	}
	idle := t.schedule[len(t.schedule)-1]
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k, e := range t.entries {
		if !now.Before(e.blockedUntil.Add(idle)) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}
