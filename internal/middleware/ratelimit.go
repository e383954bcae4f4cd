// Package middleware holds request-shaping concerns shared by the query engine.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds how often a given caller may execute an expensive
// operation (a compiled Query IR execution). It was originally an HTTP
// per-IP/per-key middleware; it is repurposed here as a call-site gate
// invoked directly by internal/query before a query is compiled and run.
type RateLimiter struct {
	limiter *redis_rate.Limiter
	enabled bool
	rps     int
	burst   int
}

// NewRateLimiter creates a rate limiter keyed by caller identity. If
// redisClient is nil, rate limiting is disabled and every call is allowed.
func NewRateLimiter(redisClient *redis.Client, rps, burst int) *RateLimiter {
	var limiter *redis_rate.Limiter
	if redisClient != nil {
		limiter = redis_rate.NewLimiter(redisClient)
	}

	return &RateLimiter{
		limiter: limiter,
		enabled: redisClient != nil,
		rps:     rps,
		burst:   burst,
	}
}

// Result describes the outcome of an Allow check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow checks whether caller may proceed with one operation. A caller
// is a free-form identity string, such as a literal CLI invocation
// identity when invoked interactively.
func (rl *RateLimiter) Allow(ctx context.Context, caller string) (Result, error) {
	if !rl.enabled {
		return Result{Allowed: true}, nil
	}

	key := fmt.Sprintf("query:rate:%s", caller)
	res, err := rl.limiter.Allow(ctx, key, redis_rate.PerSecondWithBurst(rl.rps, rl.burst))
	if err != nil {
		return Result{Allowed: true}, fmt.Errorf("rate limiter unavailable, allowing: %w", err)
	}

	return Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}
