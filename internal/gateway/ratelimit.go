package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the limiter map to prevent memory exhaustion from
// rotating source addresses.
const maxTrackedKeys = 4096

// RateLimiter applies a per-key token bucket, keyed by client address.
// rpm <= 0 disables limiting.
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &RateLimiter{
		rpm:      rpm,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow reports whether the key may proceed.
func (r *RateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.limiters) >= maxTrackedKeys {
		for k := range r.limiters {
			delete(r.limiters, k)
			break
		}
	}

	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
		r.limiters[key] = l
	}
	return l.Allow()
}
