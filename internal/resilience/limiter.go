package resilience

import (
	"sync"
	"time"
)

const (
	defaultRequestsPerWindow = 120
	defaultWindowSize        = 60 * time.Second
)

// RateLimiter is a sliding-window limiter: at most limit requests in any
// rolling window. Admission appends a timestamp; expired stamps are
// trimmed on every call.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time

	totalRequests uint64
	totalLimited  uint64
}

// NewRateLimiter creates a limiter. Zero arguments take the defaults
// (120 requests per 60s).
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = defaultRequestsPerWindow
	}
	if window <= 0 {
		window = defaultWindowSize
	}
	return &RateLimiter{limit: limit, window: window}
}

// Allow admits the request if the window has room, recording it. A
// rejected request is not recorded and does not extend the window.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.trim(now)

	if len(r.stamps) < r.limit {
		r.stamps = append(r.stamps, now)
		r.totalRequests++
		return true
	}

	r.totalLimited++
	return false
}

// WaitTime returns how long until the oldest stamp leaves the window and
// a request would be admitted again. Zero when under the limit.
func (r *RateLimiter) WaitTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.trim(now)

	if len(r.stamps) < r.limit {
		return 0
	}

	wait := r.stamps[0].Add(r.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// CurrentRate returns the number of admitted requests still inside the
// window.
func (r *RateLimiter) CurrentRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trim(time.Now())
	return len(r.stamps)
}

// trim drops stamps that fell out of the window. Caller holds mu.
func (r *RateLimiter) trim(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.stamps) && r.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[i:]...)
	}
}

// LimiterStats is a point-in-time view of a limiter.
type LimiterStats struct {
	Limit          int
	CurrentRate    int
	TotalRequests  uint64
	TotalLimited   uint64
	UtilizationPct float64
}

// Stats returns a snapshot for logging and heartbeats.
func (r *RateLimiter) Stats() LimiterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trim(time.Now())

	return LimiterStats{
		Limit:          r.limit,
		CurrentRate:    len(r.stamps),
		TotalRequests:  r.totalRequests,
		TotalLimited:   r.totalLimited,
		UtilizationPct: float64(len(r.stamps)) / float64(r.limit) * 100,
	}
}
