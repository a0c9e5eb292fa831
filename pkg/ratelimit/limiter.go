// Package ratelimit implements a sliding-window rate limiter shared by all
// tenants in a process. It throttles outbound calls to the external API so
// that no more than limit requests are issued in any rolling window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Status is a snapshot of the limiter state.
type Status struct {
	Limit           int     `json:"limit"`
	WindowSeconds   float64 `json:"window_seconds"`
	CurrentRequests int     `json:"current_requests"`
	Remaining       int     `json:"remaining"`
}

// Limiter admits a call iff fewer than limit calls were admitted in the last
// window. Fairness is best-effort (lock-order arrival). Not persisted.
type Limiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	times []time.Time

	now func() time.Time
}

// New creates a limiter admitting limit requests per rolling window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire tries to admit a request. It returns 0 if the request was admitted,
// otherwise the duration to wait before the oldest timestamp leaves the
// window. A non-zero return does not reserve a slot.
func (l *Limiter) Acquire() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if len(l.times) < l.limit {
		l.times = append(l.times, now)
		return 0
	}

	return l.window - now.Sub(l.times[0])
}

// Wait blocks until a request is admitted or the context is cancelled.
// It must re-acquire after every sleep: concurrent callers may have filled
// the window in the meantime.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait := l.Acquire()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Status reports the current window occupancy.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())

	current := len(l.times)
	remaining := l.limit - current
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Limit:           l.limit,
		WindowSeconds:   l.window.Seconds(),
		CurrentRequests: current,
		Remaining:       remaining,
	}
}

// evict drops timestamps older than the window. Caller holds the lock.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.times) && !l.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.times = append(l.times[:0], l.times[i:]...)
	}
}
