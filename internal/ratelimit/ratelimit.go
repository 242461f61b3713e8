// Package ratelimit enforces per-tenant request quotas for the ingestion gate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FortiumPartners/devpulse/internal/metrics"
)

// Limiter answers whether a tenant may submit another ingestion request.
type Limiter interface {
	Allow(ctx context.Context, tenantID string) (bool, error)
	Close() error
}

type redisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisLimiter creates a distributed limiter backed by a Redis sorted set.
// Use it when multiple collector instances share one tenant quota.
func NewRedisLimiter(redisURL string, limit int, window time.Duration) (Limiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
	}, nil
}

// Allow implements sliding-window rate limiting with an atomic Lua script.
func (r *redisLimiter) Allow(ctx context.Context, tenantID string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()

	script := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])

		-- Remove entries outside the window
		redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

		local current = redis.call('ZCARD', key)
		if current < limit then
			redis.call('ZADD', key, now, now)
			redis.call('EXPIRE', key, 60)
			return 1
		else
			return 0
		end
	`

	result, err := r.client.Eval(ctx, script, []string{"ratelimit:" + tenantID}, now, windowStart, r.limit).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed := result == 1
	if !allowed {
		metrics.RateLimitHits.WithLabelValues(tenantID).Inc()
	}
	return allowed, nil
}

func (r *redisLimiter) Close() error {
	return r.client.Close()
}

// tokenBucket is a single-instance in-memory limiter: capacity `limit`
// tokens refilled continuously over `window`.
type tokenBucket struct {
	limit  float64
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucketState
	now     func() time.Time
}

type bucketState struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates an in-memory per-tenant token-bucket limiter.
// Used when Redis is disabled or unavailable.
func NewTokenBucket(limit int, window time.Duration) Limiter {
	return &tokenBucket{
		limit:   float64(limit),
		window:  window,
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
}

func (t *tokenBucket) Allow(ctx context.Context, tenantID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[tenantID]
	if !ok {
		b = &bucketState{tokens: t.limit, last: now}
		t.buckets[tenantID] = b
	}

	// Refill proportionally to elapsed time, capped at the bucket size.
	elapsed := now.Sub(b.last)
	if elapsed > 0 {
		b.tokens += t.limit * (float64(elapsed) / float64(t.window))
		if b.tokens > t.limit {
			b.tokens = t.limit
		}
		b.last = now
	}

	if b.tokens < 1 {
		metrics.RateLimitHits.WithLabelValues(tenantID).Inc()
		return false, nil
	}
	b.tokens--
	return true, nil
}

func (t *tokenBucket) Close() error { return nil }

// NoOpLimiter always allows requests (testing or disabled rate limiting).
type NoOpLimiter struct{}

func (NoOpLimiter) Allow(ctx context.Context, tenantID string) (bool, error) {
	return true, nil
}

func (NoOpLimiter) Close() error { return nil }
