package ratelimit

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/ledgerbft/node/model/flow"
)

// DefaultMaxPeers bounds the number of per-peer limiters kept in memory.
const DefaultMaxPeers = 1024

// GetTimeNow returns the time the limiter evaluates token refills at.
type GetTimeNow func() time.Time

// RateLimiter is a token bucket per peer. Limiters of peers that were not
// seen for a while are evicted in least-recently-used order; an evicted peer
// starts over with a full bucket.
type RateLimiter struct {
	limiters *lru.Cache[flow.Identifier, *limiterMetadata]
	// limit amount of messages allowed per second.
	limit rate.Limit
	// burst amount of messages allowed at one time.
	burst int
	// now func that returns timestamp used to rate limit.
	now GetTimeNow
	// lockoutDuration the amount of time a peer is reported as rate limited after it hit the limit.
	lockoutDuration time.Duration
}

type limiterMetadata struct {
	limiter       *rate.Limiter
	lastRateLimit time.Time
}

// RateLimiterOpt configures a RateLimiter.
type RateLimiterOpt func(*RateLimiter)

// WithGetTimeNowFunc overrides the clock; simulated nodes use their virtual clock.
func WithGetTimeNowFunc(now GetTimeNow) RateLimiterOpt {
	return func(r *RateLimiter) {
		r.now = now
	}
}

// WithLockoutDuration sets how long a peer counts as rate limited after hitting the limit.
func WithLockoutDuration(lockout time.Duration) RateLimiterOpt {
	return func(r *RateLimiter) {
		r.lockoutDuration = lockout
	}
}

// NewRateLimiter returns a new RateLimiter keeping at most maxPeers limiters.
func NewRateLimiter(limit rate.Limit, burst int, maxPeers int, opts ...RateLimiterOpt) (*RateLimiter, error) {
	if burst < 1 {
		return nil, fmt.Errorf("burst must be positive, got %d", burst)
	}
	cache, err := lru.New[flow.Identifier, *limiterMetadata](maxPeers)
	if err != nil {
		return nil, fmt.Errorf("could not create limiter cache: %w", err)
	}
	r := &RateLimiter{
		limiters: cache,
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Allow takes a token from the peer's bucket. It returns false if the
// bucket is empty.
func (r *RateLimiter) Allow(peerID flow.Identifier) bool {
	metadata := r.get(peerID)
	now := r.now()
	if !metadata.limiter.AllowN(now, 1) {
		metadata.lastRateLimit = now
		return false
	}
	return true
}

// IsRateLimited returns true if the peer hit its limit within the lockout duration.
func (r *RateLimiter) IsRateLimited(peerID flow.Identifier) bool {
	metadata, ok := r.limiters.Peek(peerID)
	if !ok || metadata.lastRateLimit.IsZero() {
		return false
	}
	return r.now().Sub(metadata.lastRateLimit) < r.lockoutDuration
}

// Remove drops the peer's limiter.
func (r *RateLimiter) Remove(peerID flow.Identifier) {
	r.limiters.Remove(peerID)
}

func (r *RateLimiter) get(peerID flow.Identifier) *limiterMetadata {
	if metadata, ok := r.limiters.Get(peerID); ok {
		return metadata
	}
	metadata := &limiterMetadata{limiter: rate.NewLimiter(r.limit, r.burst)}
	r.limiters.Add(peerID, metadata)
	return metadata
}
