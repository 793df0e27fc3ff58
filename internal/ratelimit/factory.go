package ratelimit

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Factory builds limiters on a single backend. In-memory limiters are
// remembered so a janitor can prune them.
type Factory struct {
	backend string
	client  redis.UniversalClient
	prefix  string
	opts    []Option
	pruners []Pruner
}

// NewFactory returns a factory for backend. A redis backend requires client.
func NewFactory(backend string, client redis.UniversalClient, prefix string, opts ...Option) (*Factory, error) {
	switch backend {
	case "", BackendMemory:
		backend = BackendMemory
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("ratelimit: redis backend requires a client")
		}
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", backend)
	}
	return &Factory{backend: backend, client: client, prefix: prefix, opts: opts}, nil
}

func (f *Factory) Backend() string { return f.backend }

func (f *Factory) key(name string) string {
	if f.prefix == "" {
		return name
	}
	return f.prefix + ":" + name
}

// TokenBucket returns a refilling bucket identified by name.
func (f *Factory) TokenBucket(name string, capacity int, refill time.Duration) Bucket {
	if f.backend == BackendRedis {
		return NewRedisTokenBucket(f.client, f.key(name), capacity, refill, f.opts...)
	}
	b := NewTokenBucket(capacity, refill, f.opts...)
	f.pruners = append(f.pruners, b)
	return b
}

// ExpiringBucket returns a fixed-window bucket identified by name.
func (f *Factory) ExpiringBucket(name string, capacity int, window time.Duration) ResettableBucket {
	if f.backend == BackendRedis {
		return NewRedisExpiringBucket(f.client, f.key(name), capacity, window, f.opts...)
	}
	b := NewExpiringTokenBucket(capacity, window, f.opts...)
	f.pruners = append(f.pruners, b)
	return b
}

// Throttler returns an escalating-delay throttler identified by name.
func (f *Factory) Throttler(name string, schedule []time.Duration) Throttler {
	if f.backend == BackendRedis {
		return NewRedisThrottler(f.client, f.key(name), schedule, f.opts...)
	}
	t := NewThrottler(schedule, f.opts...)
	f.pruners = append(f.pruners, t)
	return t
}

// Pruners lists the in-memory limiters built so far. Redis keys expire on their own.
func (f *Factory) Pruners() []Pruner {
	return append([]Pruner(nil), f.pruners...)
}
