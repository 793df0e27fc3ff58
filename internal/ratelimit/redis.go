package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The scripts receive the caller's clock in milliseconds so every instance
// shares one notion of "now" per request; PEXPIRE only garbage-collects.

var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local mutate = ARGV[5] == "1"
local count = capacity
local refilled = now
local state = redis.call("HMGET", KEYS[1], "count", "refilled_at")
if state[1] then
  count = tonumber(state[1])
  refilled = tonumber(state[2])
  if refill <= 0 then
    count = capacity
    refilled = now
  else
    local n = math.floor((now - refilled) / refill)
    if n > 0 then
      if count + n >= capacity then
        count = capacity
        refilled = now
      else
        count = count + n
        refilled = refilled + n * refill
      end
    end
  end
end
if not mutate then
  if count >= cost then return 1 end
  return 0
end
local allowed = 0
if count >= cost then
  count = count - cost
  allowed = 1
end
redis.call("HSET", KEYS[1], "count", count, "refilled_at", refilled)
redis.call("PEXPIRE", KEYS[1], math.max(capacity * refill, 1000))
return allowed
`)

var expiringBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local mutate = ARGV[5] == "1"
local remaining = capacity
local resetAt = now + window
local state = redis.call("HMGET", KEYS[1], "remaining", "reset_at")
if state[1] and tonumber(state[2]) > now then
  remaining = tonumber(state[1])
  resetAt = tonumber(state[2])
end
if not mutate then
  if remaining >= cost then return 1 end
  return 0
end
local allowed = 0
if remaining >= cost then
  remaining = remaining - cost
  allowed = 1
end
redis.call("HSET", KEYS[1], "remaining", remaining, "reset_at", resetAt)
redis.call("PEXPIRE", KEYS[1], math.max(resetAt - now, 1))
return allowed
`)

var throttlerScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local steps = #ARGV - 1
local index = 0
local state = redis.call("HMGET", KEYS[1], "index", "blocked_until")
if state[1] then
  if now < tonumber(state[2]) then return 0 end
  index = math.min(tonumber(state[1]) + 1, steps - 1)
end
local delay = tonumber(ARGV[index + 2])
redis.call("HSET", KEYS[1], "index", index, "blocked_until", now + delay)
redis.call("PEXPIRE", KEYS[1], delay + tonumber(ARGV[steps + 1]))
return 1
`)

func millis(t time.Time) int64 { return t.UnixMilli() }

func runScript(ctx context.Context, s *redis.Script, client redis.UniversalClient, key string, args ...interface{}) (bool, error) {
	n, err := s.Run(ctx, client, []string{key}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// RedisTokenBucket is the shared-store counterpart of TokenBucket.
type RedisTokenBucket struct {
	client   redis.UniversalClient
	prefix   string
	capacity int
	refill   time.Duration
	now      func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, prefix string, capacity int, refill time.Duration, opts ...Option) *RedisTokenBucket {
	o := buildOptions(opts)
	return &RedisTokenBucket{client: client, prefix: prefix, capacity: capacity, refill: refill, now: o.now}
}

func (b *RedisTokenBucket) eval(ctx context.Context, key string, cost int, mutate bool) (bool, error) {
	if cost <= 0 {
		return true, nil
	}
	return runScript(ctx, tokenBucketScript, b.client, b.prefix+":"+key,
		b.capacity, b.refill.Milliseconds(), millis(b.now()), cost, boolArg(mutate))
}

func (b *RedisTokenBucket) Check(ctx context.Context, key string, cost int) (bool, error) {
	return b.eval(ctx, key, cost, false)
}

func (b *RedisTokenBucket) Consume(ctx context.Context, key string, cost int) (bool, error) {
	return b.eval(ctx, key, cost, true)
}

// RedisExpiringBucket is the shared-store counterpart of ExpiringTokenBucket.
type RedisExpiringBucket struct {
	client   redis.UniversalClient
	prefix   string
	capacity int
	window   time.Duration
	now      func() time.Time
}

func NewRedisExpiringBucket(client redis.UniversalClient, prefix string, capacity int, window time.Duration, opts ...Option) *RedisExpiringBucket {
	o := buildOptions(opts)
	return &RedisExpiringBucket{client: client, prefix: prefix, capacity: capacity, window: window, now: o.now}
}

func (b *RedisExpiringBucket) eval(ctx context.Context, key string, cost int, mutate bool) (bool, error) {
	if cost <= 0 {
		return true, nil
	}
	return runScript(ctx, expiringBucketScript, b.client, b.prefix+":"+key,
		b.capacity, b.window.Milliseconds(), millis(b.now()), cost, boolArg(mutate))
}

func (b *RedisExpiringBucket) Check(ctx context.Context, key string, cost int) (bool, error) {
	return b.eval(ctx, key, cost, false)
}

func (b *RedisExpiringBucket) Consume(ctx context.Context, key string, cost int) (bool, error) {
	return b.eval(ctx, key, cost, true)
}

func (b *RedisExpiringBucket) Reset(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RedisThrottler is the shared-store counterpart of MemoryThrottler.
type RedisThrottler struct {
	client   redis.UniversalClient
	prefix   string
	schedule []time.Duration
	now      func() time.Time
}

func NewRedisThrottler(client redis.UniversalClient, prefix string, schedule []time.Duration, opts ...Option) *RedisThrottler {
	o := buildOptions(opts)
	return &RedisThrottler{client: client, prefix: prefix, schedule: append([]time.Duration(nil), schedule...), now: o.now}
}

func (t *RedisThrottler) Consume(ctx context.Context, key string) (bool, error) {
	if len(t.schedule) == 0 {
		return true, nil
	}
	args := make([]interface{}, 0, len(t.schedule)+1)
	args = append(args, millis(t.now()))
	for _, d := range t.schedule {
		args = append(args, d.Milliseconds())
	}
	return runScript(ctx, throttlerScript, t.client, t.prefix+":"+key, args...)
}

func (t *RedisThrottler) Reset(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
