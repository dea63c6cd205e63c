package dhcp

import (
	"sync"
	"time"
)

// RateLimiter provides token-bucket rate limiting for DHCP requests.
// It limits both the global packet rate and the rate per client key.
type RateLimiter struct {
	enabled        bool
	globalLimit    int
	perClientLimit int
	globalTokens   int
	perClient      map[string]*clientBucket
	mu             sync.Mutex
	now            func() time.Time
	lastRefill     time.Time
	refillInterval time.Duration
	staleAfter     time.Duration
}

type clientBucket struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter. Limits are per second.
func NewRateLimiter(enabled bool, globalLimit, perClientLimit int) *RateLimiter {
	if globalLimit <= 0 {
		globalLimit = 100
	}
	if perClientLimit <= 0 {
		perClientLimit = 10
	}
	return &RateLimiter{
		enabled:        enabled,
		globalLimit:    globalLimit,
		perClientLimit: perClientLimit,
		globalTokens:   globalLimit,
		perClient:      make(map[string]*clientBucket),
		now:            time.Now,
		lastRefill:     time.Now(),
		refillInterval: time.Second,
		staleAfter:     30 * time.Second,
	}
}

// Allow checks if a request from the given client is permitted.
// A nil limiter allows everything.
func (r *RateLimiter) Allow(clientKey string) bool {
	if r == nil || !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.refill(now)

	if r.globalTokens <= 0 {
		return false
	}

	bucket, exists := r.perClient[clientKey]
	if !exists {
		bucket = &clientBucket{tokens: r.perClientLimit}
		r.perClient[clientKey] = bucket
	}
	bucket.lastSeen = now
	if bucket.tokens <= 0 {
		return false
	}

	r.globalTokens--
	bucket.tokens--
	return true
}

// refill adds tokens back for every whole interval elapsed since the last
// refill and forgets clients not seen for a while.
func (r *RateLimiter) refill(now time.Time) {
	intervals := int(now.Sub(r.lastRefill) / r.refillInterval)
	if intervals <= 0 {
		return
	}
	r.lastRefill = r.lastRefill.Add(time.Duration(intervals) * r.refillInterval)

	r.globalTokens = min(r.globalTokens+r.globalLimit*intervals, r.globalLimit)

	for key, bucket := range r.perClient {
		if now.Sub(bucket.lastSeen) > r.staleAfter {
			delete(r.perClient, key)
			continue
		}
		bucket.tokens = min(bucket.tokens+r.perClientLimit*intervals, r.perClientLimit)
	}
}

// Stats returns current rate limiter statistics.
func (r *RateLimiter) Stats() (globalTokens int, trackedClients int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globalTokens, len(r.perClient)
}
