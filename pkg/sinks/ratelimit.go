package sinks

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter: it keeps the timestamps of
// requests accepted within the last window and admits a new one only while
// the count is below max. Old entries are evicted lazily. Safe for
// concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter admitting max requests per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether a request would currently be admitted.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict()
	return len(r.stamps) < r.max
}

// Record counts an accepted request against the window.
func (r *RateLimiter) Record() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict()
	r.stamps = append(r.stamps, r.now())
}

// TryAcquire atomically checks and records: it returns true and consumes a
// slot when under the limit, false otherwise.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict()
	if len(r.stamps) >= r.max {
		return false
	}
	r.stamps = append(r.stamps, r.now())
	return true
}

// Pending returns the number of accepted requests still inside the window.
func (r *RateLimiter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evict()
	return len(r.stamps)
}

// evict drops timestamps older than the window. Caller holds the lock.
func (r *RateLimiter) evict() {
	cutoff := r.now().Add(-r.window)
	i := 0
	for ; i < len(r.stamps); i++ {
		if r.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[i:]...)
	}
}
