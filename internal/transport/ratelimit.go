package transport

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-peer rate limiting using a token bucket. Peers are
// keyed by host, so a bucket survives reconnects from the same address.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter creates a rate limiter. ratePerSecond is the sustained
// message rate per peer and burst the maximum burst size. A non-positive
// rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  limit,
		burstLimit: burst,
	}
}

// Allow reports whether a message from peer may proceed now.
func (r *RateLimiter) Allow(peer string) bool {
	return r.getLimiter(peer).Allow()
}

// Peers returns the number of tracked peers.
func (r *RateLimiter) Peers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

func (r *RateLimiter) getLimiter(peer string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[peer]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[peer]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rateLimit, r.burstLimit)
	r.limiters[peer] = limiter
	return limiter
}
