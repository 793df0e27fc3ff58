// Package ratelimit provides the per-key limiters used by the auth gate:
// a refilling token bucket, a token bucket that resets after a fixed window,
// and a throttler that enforces an escalating delay between attempts.
//
// Every limiter has an in-process implementation and a Redis implementation
// sharing the same contract, so a multi-instance deployment can swap the
// backend without touching callers.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned when a shared counter store cannot be reached.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Bucket gates consumption of a per-key pool of tokens.
// Check never mutates state; Consume deducts cost only when the balance allows it.
type Bucket interface {
	Check(ctx context.Context, key string, cost int) (bool, error)
	Consume(ctx context.Context, key string, cost int) (bool, error)
}

// ResettableBucket is a Bucket whose per-key state can be cleared.
type ResettableBucket interface {
	Bucket
	Reset(ctx context.Context, key string) error
}

// Throttler time-gates successive calls to Consume for a key.
type Throttler interface {
	Consume(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Pruner drops entries that no longer affect any decision.
type Pruner interface {
	Prune(now time.Time) int
}

type options struct {
	now func() time.Time
}

// Option configures a limiter.
type Option func(*options)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
