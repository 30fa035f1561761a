package cache

import (
	"context"
	"time"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

// FixedWindowLimiter counts requests per client in fixed windows backed by a Cache.
type FixedWindowLimiter struct {
	cache  Cache
	limit  int64
	window time.Duration
}

// NewFixedWindowLimiter allows limit requests per client per window.
func NewFixedWindowLimiter(c Cache, limit int64, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{cache: c, limit: limit, window: window}
}

// Allow records one request for clientID and reports whether it is within the limit.
func (l *FixedWindowLimiter) Allow(ctx context.Context, clientID string) (Decision, error) {
	count, remaining, err := l.cache.Increment(ctx, RateLimitKey(clientID), l.window)
	if err != nil {
		return Decision{Allowed: true, Limit: l.limit}, err
	}
	d := Decision{
		Allowed: count <= l.limit,
		Count:   count,
		Limit:   l.limit,
	}
	if !d.Allowed {
		d.RetryAfter = remaining
	}
	return d, nil
}
