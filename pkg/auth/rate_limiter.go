package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides rate limiting functionality
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// KeyedLimiter keeps one token bucket per key (client IP or owner id).
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter allowing requestsPerMinute with the given burst.
func NewKeyedLimiter(requestsPerMinute, burst int) *KeyedLimiter {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &KeyedLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// NewIPRateLimiter creates a rate limiter for IP addresses
func NewIPRateLimiter(requestsPerMinute int) *KeyedLimiter {
	return NewKeyedLimiter(requestsPerMinute, requestsPerMinute)
}

// NewUserRateLimiter creates a rate limiter for owners
func NewUserRateLimiter(requestsPerMinute int) *KeyedLimiter {
	return NewKeyedLimiter(requestsPerMinute, requestsPerMinute)
}

// Allow checks if a request is allowed
func (l *KeyedLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
		l.sweep(now)
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// Reset forgets the bucket for key
func (l *KeyedLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
	return nil
}

// SetLimit changes the rate for all keys. Existing buckets adopt the new
// limit immediately; used by the config watcher.
func (l *KeyedLimiter) SetLimit(requestsPerMinute, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = requestsPerMinute
	}
	l.limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	l.burst = burst
	for _, e := range l.limiters {
		e.limiter.SetLimit(l.limit)
		e.limiter.SetBurst(l.burst)
	}
}

// sweep drops buckets that have been idle for idleTTL. Caller holds mu.
func (l *KeyedLimiter) sweep(now time.Time) {
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
}
