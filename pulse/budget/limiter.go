// Package budget paces outbound model calls so a batch stays under a
// provider's per-minute quota.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/PTX/errors"
)

// Limiter allows at most a fixed number of calls in any sliding one-minute
// window. A limit of zero or less disables it.
type Limiter struct {
	mu                sync.Mutex
	maxCallsPerMinute int
	window            time.Duration
	callTimes         []time.Time
	timeNow           func() time.Time
}

// NewLimiter creates a limiter on the wall clock
func NewLimiter(maxCallsPerMinute int) *Limiter {
	return NewLimiterWithClock(maxCallsPerMinute, time.Now)
}

// NewLimiterWithClock creates a limiter with an injectable clock
func NewLimiterWithClock(maxCallsPerMinute int, timeNow func() time.Time) *Limiter {
	return &Limiter{
		maxCallsPerMinute: maxCallsPerMinute,
		window:            time.Minute,
		timeNow:           timeNow,
	}
}

// SetLimit changes the limit. Calls already in the window still count.
func (r *Limiter) SetLimit(maxCallsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxCallsPerMinute = maxCallsPerMinute
}

// Allow records a call if one is allowed now, otherwise it returns an
// error and how long until the next slot opens.
func (r *Limiter) Allow() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxCallsPerMinute <= 0 {
		return 0, nil
	}

	now := r.timeNow()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxCallsPerMinute {
		retryIn := r.callTimes[0].Add(r.window).Sub(now)
		err := errors.Newf("model call limit reached: %d calls per minute", r.maxCallsPerMinute)
		err = errors.WithDetail(err, fmt.Sprintf("Next slot in: %s", retryIn.Round(time.Millisecond)))
		return retryIn, err
	}

	r.callTimes = append(r.callTimes, now)
	return 0, nil
}

// Wait blocks until a call is allowed or ctx ends
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		retryIn, err := r.Allow()
		if err == nil {
			return nil
		}
		if retryIn <= 0 {
			retryIn = time.Millisecond
		}

		timer := time.NewTimer(retryIn)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), "gave up waiting for a model call slot")
		case <-timer.C:
		}
	}
}

// removeExpiredCalls drops timestamps outside the window. Caller holds mu.
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

	expired := 0
	for _, callTime := range r.callTimes {
		if callTime.After(cutoff) {
			break
		}
		expired++
	}

	r.callTimes = r.callTimes[expired:]
}

// Stats returns the calls in the current window and the remaining capacity.
// Remaining is -1 when the limiter is disabled.
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExpiredCalls(r.timeNow())
	callsInWindow = len(r.callTimes)
	if r.maxCallsPerMinute <= 0 {
		return callsInWindow, -1
	}

	remaining = r.maxCallsPerMinute - callsInWindow
	if remaining < 0 {
		remaining = 0
	}
	return callsInWindow, remaining
}
