// Package tick provides the millisecond tick clock that drives the event loop.
//
// A Tick counts milliseconds since the clock was created. The counter is
// 64 bits wide so a long-running process never wraps, and it never moves
// backwards: NowFresh stores the larger of the previous and the computed
// value.
//
// Two reads are offered. NowFresh recomputes from the wall clock and updates
// the cache; NowCached returns the last refreshed value without touching the
// system clock. The loop refreshes once per iteration and every phase reads
// the cached value.
package tick

import (
	"sync/atomic"
	"time"
)

// Tick is an unsigned millisecond count relative to process start.
type Tick uint64

// Add returns t advanced by d. Negative durations and sub-millisecond
// remainders are truncated toward zero.
func (t Tick) Add(d time.Duration) Tick {
	if d <= 0 {
		return t
	}
	return t + Tick(d/time.Millisecond)
}

// Since returns the duration between earlier and t, or zero if earlier is
// not before t.
func (t Tick) Since(earlier Tick) time.Duration {
	if earlier >= t {
		return 0
	}
	return time.Duration(t-earlier) * time.Millisecond
}

// Duration converts the tick count to a time.Duration.
func (t Tick) Duration() time.Duration {
	return time.Duration(t) * time.Millisecond
}

// Clock is a monotonic millisecond counter.
// NowCached and NowFresh are safe for concurrent use.
type Clock struct {
	origin time.Time
	now    func() time.Time
	cached atomic.Uint64
}

// NewClock creates a clock whose origin is the current instant.
func NewClock() *Clock {
	return NewClockWithSource(time.Now)
}

// NewClockWithSource creates a clock that reads time from now.
// The origin is taken from the first read. Used by tests to drive time
// deterministically.
func NewClockWithSource(now func() time.Time) *Clock {
	return &Clock{
		origin: now(),
		now:    now,
	}
}

// Origin returns the instant the clock counts from.
func (c *Clock) Origin() time.Time {
	return c.origin
}

// NowCached returns the value stored by the last NowFresh call.
func (c *Clock) NowCached() Tick {
	return Tick(c.cached.Load())
}

// NowFresh recomputes the tick from the clock source, updates the cache and
// returns the new value. The result is never smaller than any previously
// returned value.
func (c *Clock) NowFresh() Tick {
	elapsed := c.now().Sub(c.origin)
	var computed uint64
	if elapsed > 0 {
		computed = uint64(elapsed / time.Millisecond)
	}

	for {
		prev := c.cached.Load()
		if computed <= prev {
			return Tick(prev)
		}
		if c.cached.CompareAndSwap(prev, computed) {
			return Tick(computed)
		}
	}
}
