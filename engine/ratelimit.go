package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a randomized minimum interval between requests,
// scoped per identity. A token-bucket limiter provides the hard floor
// (one request per MinDelay) and a uniform random extra delay on top of
// it spreads requests into the [MinDelay, MaxDelay] band.
type RateLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	rng      *rand.Rand

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-identity rate limiter. The rng drives the
// extra-delay randomization; pass a seeded source for deterministic tests.
func NewRateLimiter(minDelay, maxDelay time.Duration, rng *rand.Rand) *RateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &RateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rng,
		limiters: make(map[string]*limiterEntry),
	}
}

// Wait blocks until the identity may issue its next request, honoring the
// context at every suspension point.
func (r *RateLimiter) Wait(ctx context.Context, identityID string) error {
	if err := r.floor(identityID).Wait(ctx); err != nil {
		return err
	}

	extra := r.extraDelay()
	if extra <= 0 {
		return nil
	}
	timer := time.NewTimer(extra)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Forget drops the state for a retired identity. The session pool calls
// this on rotation so the map does not grow with every fresh identity.
func (r *RateLimiter) Forget(identityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, identityID)
}

func (r *RateLimiter) floor(identityID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.limiters[identityID]
	if !ok {
		limit := rate.Inf
		if r.minDelay > 0 {
			limit = rate.Every(r.minDelay)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(limit, 1)}
		r.limiters[identityID] = entry
		r.evictStaleLocked()
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (r *RateLimiter) extraDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	band := r.maxDelay - r.minDelay
	if band <= 0 {
		return 0
	}
	return time.Duration(r.rng.Int63n(int64(band)))
}

// evictStaleLocked drops entries unused for an hour. Rotated identities
// are removed eagerly via Forget; this catches anything that slipped by.
func (r *RateLimiter) evictStaleLocked() {
	cutoff := time.Now().Add(-1 * time.Hour)
	for id, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) && !entry.lastSeen.IsZero() {
			delete(r.limiters, id)
		}
	}
}
