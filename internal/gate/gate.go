// Package gate provides the single-slot admission gate that serializes
// transcription sessions. Waiters are served strictly first-in-first-out.
package gate

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Option configures a [Gate].
type Option func(*Gate)

// WithAcquireHook registers fn to be called after every successful Acquire
// with the time the caller spent waiting.
func WithAcquireHook(fn func(waited time.Duration)) Option {
	return func(g *Gate) { g.onAcquire = fn }
}

// Gate is a binary FIFO mutex with an observable busy state. The zero value is
// not usable; create one with [New]. Safe for concurrent use.
type Gate struct {
	sem       *semaphore.Weighted
	held      atomic.Bool
	waiting   atomic.Int64
	onAcquire func(time.Duration)
}

// New returns an open gate.
func New(opts ...Option) *Gate {
	g := &Gate{sem: semaphore.NewWeighted(1)}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Acquire blocks until the gate is free or ctx is done. On success the caller
// holds the gate and must call [Gate.Release] exactly once.
func (g *Gate) Acquire(ctx context.Context) error {
	start := time.Now()
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return err
	}
	g.held.Store(true)
	if g.onAcquire != nil {
		g.onAcquire(time.Since(start))
	}
	return nil
}

// Release frees the gate and wakes the longest waiting caller.
func (g *Gate) Release() {
	g.held.Store(false)
	g.sem.Release(1)
}

// Do runs fn while holding the gate. The gate is released on every exit path,
// including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Busy reports whether the gate is held or has waiters. The answer may be
// stale by the time the caller acts on it.
func (g *Gate) Busy() bool {
	return g.held.Load() || g.waiting.Load() > 0
}

// Waiting returns the number of callers blocked in Acquire.
func (g *Gate) Waiting() int {
	return int(g.waiting.Load())
}
