package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum wall-clock interval between consecutive
// upstream invocations across the whole process.
type RateLimiter struct {
	mu sync.Mutex

	// Configuration
	interval time.Duration
	now      func() time.Time

	// State
	last time.Time

	// Statistics
	totalCalls  int64
	totalDenied int64
	totalWaited time.Duration
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	Interval       time.Duration `json:"interval"`
	LastCall       time.Time     `json:"last_call,omitzero"`
	TimeUntilReady time.Duration `json:"time_until_ready"`
	TotalCalls     int64         `json:"total_calls"`
	TotalDenied    int64         `json:"total_denied"`
	TotalWaited    time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a limiter with the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return NewRateLimiterWithClock(interval, time.Now)
}

// NewRateLimiterWithClock creates a limiter that reads time from now.
func NewRateLimiterWithClock(interval time.Duration, now func() time.Time) *RateLimiter {
	if interval < 0 {
		interval = 0
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{interval: interval, now: now}
}

// Ready reports whether the interval has elapsed since the last recorded call.
// A denied check is counted in the statistics.
func (r *RateLimiter) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.untilReady() > 0 {
		r.totalDenied++
		return false
	}
	return true
}

// Mark records an upstream invocation at the current time.
func (r *RateLimiter) Mark() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = r.now()
	r.totalCalls++
}

// Wait blocks until the interval has elapsed or ctx is cancelled.
// It does not record a call; pair it with Mark.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		wait := r.untilReady()
		r.mu.Unlock()

		if wait <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			r.mu.Lock()
			r.totalWaited += wait
			r.mu.Unlock()
		}
	}
}

// SetInterval changes the minimum interval. Negative values are treated as zero.
func (r *RateLimiter) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
}

// Interval returns the configured minimum interval.
func (r *RateLimiter) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimiterStatus{
		Interval:       r.interval,
		LastCall:       r.last,
		TimeUntilReady: r.untilReady(),
		TotalCalls:     r.totalCalls,
		TotalDenied:    r.totalDenied,
		TotalWaited:    r.totalWaited,
	}
}

// untilReady must be called with the lock held.
func (r *RateLimiter) untilReady() time.Duration {
	if r.last.IsZero() {
		return 0
	}
	remaining := r.interval - r.now().Sub(r.last)
	if remaining < 0 {
		return 0
	}
	return remaining
}
