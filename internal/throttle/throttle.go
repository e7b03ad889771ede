// Package throttle rate-limits a repeatedly invoked callback. Calls that land
// inside the cooldown window are dropped, not deferred.
package throttle

import (
	"errors"
	"sync"
	"time"
)

// ErrSkipped is returned instead of invoking the callback when the call falls
// inside the cooldown window.
var ErrSkipped = errors.New("throttle: call skipped")

// Option configures a [Throttle].
type Option func(*Throttle)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		if now != nil {
			t.now = now
		}
	}
}

// Throttle lets at most one call through per interval. It is safe for
// concurrent use.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	invoked bool
}

// New returns a Throttle with the given minimum interval between invocations.
func New(interval time.Duration, opts ...Option) *Throttle {
	t := &Throttle{interval: interval, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Do invokes fn unless the previous invocation happened at most interval ago,
// in which case it returns [ErrSkipped] immediately. The first call always
// runs. A call that returns an error still counts against the window.
func (t *Throttle) Do(fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.invoked && now.Sub(t.last) <= t.interval {
		return ErrSkipped
	}
	t.invoked = true
	t.last = now
	return fn()
}

// Wrap returns a function with the same signature as fn whose invocations are
// governed by t. Skipped calls return the zero R and [ErrSkipped].
func Wrap[A, R any](t *Throttle, fn func(A) (R, error)) func(A) (R, error) {
	return func(arg A) (R, error) {
		var result R
		err := t.Do(func() error {
			var innerErr error
			result, innerErr = fn(arg)
			return innerErr
		})
		return result, err
	}
}
