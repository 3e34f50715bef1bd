// Package ratelimit throttles order entry per user with token buckets kept in Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every bucket this package writes
const KeyPrefix = "ccx:ratelimit"

// ErrInvalidPolicy is returned for a policy that could never admit a request
var ErrInvalidPolicy = errors.New("rate limit policy needs a positive burst and refill rate")

// Policy sizes the bucket for one route
type Policy struct {
	Burst           int64   // bucket capacity
	RefillPerSecond float64 // tokens added per second
}

func (p Policy) validate() error {
	if p.Burst <= 0 || p.RefillPerSecond <= 0 || math.IsInf(p.RefillPerSecond, 0) || math.IsNaN(p.RefillPerSecond) {
		return fmt.Errorf("%w: burst=%d refill=%v", ErrInvalidPolicy, p.Burst, p.RefillPerSecond)
	}
	return nil
}

// ttl keeps an idle bucket around until it would be full again, plus a second
func (p Policy) ttl() time.Duration {
	full := time.Duration(math.Ceil(float64(p.Burst)/p.RefillPerSecond*1000)) * time.Millisecond
	return full + time.Second
}

// Result is the decision for one request
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	RetryAfter time.Duration // zero when allowed
}

// Limiter keeps one bucket per (route, user). Routes without their own policy use
// the default one.
type Limiter struct {
	client   redis.Cmdable
	fallback Policy
	policies map[string]Policy
	now      func() time.Time
}

// Bucket state is tokens plus the millisecond timestamp of the last refill. The
// timestamp never moves backwards, so clock skew between servers cannot mint tokens.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local burst = tonumber(ARGV[1])
local per_second = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
    tokens = burst
    ts = now_ms
end

if now_ms > ts then
    tokens = math.min(burst, tokens + (now_ms - ts) * per_second / 1000)
    ts = now_ms
end

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    retry_ms = math.ceil((1 - tokens) * 1000 / per_second)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', key, ttl_ms)

return {allowed, math.floor(tokens), retry_ms}
`)

// NewLimiter creates a limiter whose routes all share fallback until SetPolicy
// says otherwise. client can be either *redis.Client or *redis.ClusterClient.
func NewLimiter(client redis.Cmdable, fallback Policy) (*Limiter, error) {
	if err := fallback.validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		client:   client,
		fallback: fallback,
		policies: make(map[string]Policy),
		now:      time.Now,
	}, nil
}

// SetPolicy overrides the bucket size for one route. Call it before serving traffic.
func (l *Limiter) SetPolicy(route string, p Policy) error {
	if err := p.validate(); err != nil {
		return err
	}
	l.policies[route] = p
	return nil
}

func (l *Limiter) policy(route string) Policy {
	if p, ok := l.policies[route]; ok {
		return p
	}
	return l.fallback
}

// Key is the Redis key holding userID's bucket for route
func Key(route, userID string) string {
	return KeyPrefix + ":" + route + ":" + userID
}

// Allow takes one token from userID's bucket for route
func (l *Limiter) Allow(ctx context.Context, route, userID string) (*Result, error) {
	p := l.policy(route)

	res, err := bucketScript.Run(ctx, l.client, []string{Key(route, userID)},
		p.Burst,
		p.RefillPerSecond,
		l.now().UnixMilli(),
		p.ttl().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s for %s: %w", route, userID, err)
	}

	return &Result{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		Limit:      p.Burst,
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// IsHealthy checks if the Redis connection is working
func (l *Limiter) IsHealthy(ctx context.Context) bool {
	return l.client.Ping(ctx).Err() == nil
}
