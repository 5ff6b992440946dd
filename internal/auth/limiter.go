package auth

import (
	"sync"
	"time"
)

// Limits holds the per-tier daily request budgets
type Limits struct {
	Free  int
	Pro   int
	Elite int
}

// ForTier returns the budget for a tier, defaulting to free
func (l Limits) ForTier(tier string) int {
	switch tier {
	case TierPro:
		return l.Pro
	case TierElite:
		return l.Elite
	default:
		return l.Free
	}
}

type counter struct {
	count     int
	lastReset time.Time
}

// RateLimiter enforces daily per-key budgets. Counters reset at UTC
// midnight and live only in memory; a restart grants a fresh day.
type RateLimiter struct {
	mu       sync.Mutex
	limits   Limits
	counters map[string]*counter
	now      func() time.Time
}

// NewRateLimiter creates a limiter with the given tier budgets
func NewRateLimiter(limits Limits) *RateLimiter {
	return &RateLimiter{
		limits:   limits,
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// Allow admits or rejects one request for a key hash. remaining is the
// budget left after this request.
func (r *RateLimiter) Allow(keyHash, tier string) (allowed bool, remaining, limit int) {
	limit = r.limits.ForTier(tier)

	r.mu.Lock()
	defer r.mu.Unlock()

	midnight := r.midnightUTC()
	c, ok := r.counters[keyHash]
	if !ok || c.lastReset.Before(midnight) {
		c = &counter{lastReset: midnight}
		r.counters[keyHash] = c
	}

	if c.count >= limit {
		return false, 0, limit
	}
	c.count++
	return true, limit - c.count, limit
}

// SetLimits replaces the tier budgets (config hot reload)
func (r *RateLimiter) SetLimits(limits Limits) {
	r.mu.Lock()
	r.limits = limits
	r.mu.Unlock()
}

func (r *RateLimiter) midnightUTC() time.Time {
	now := r.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
