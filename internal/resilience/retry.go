package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures [Retry] and [RetryValue].
type RetryConfig struct {
	// Name labels log lines. Optional.
	Name string

	// Attempts is the total number of calls including the first.
	// Zero means 3.
	Attempts int

	// InitialBackoff is the delay before the second call. Zero means 200ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between calls. Zero means 5s.
	MaxBackoff time.Duration

	// Multiplier grows the delay after every failed call. Zero means 2.
	Multiplier float64

	// Jitter randomises each delay by up to this fraction. Zero means 0.2;
	// a negative value disables jitter.
	Jitter float64

	// Retryable reports whether err is worth another attempt. Nil retries
	// everything except context cancellation and deadline errors.
	Retryable func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	switch {
	case c.Jitter == 0:
		c.Jitter = 0.2
	case c.Jitter < 0:
		c.Jitter = 0
	}
	if c.Retryable == nil {
		c.Retryable = isRetryable
	}
	return c
}

func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned unchanged. Cancelling ctx
// stops the wait between attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is [Retry] for calls that produce a value.
func RetryValue[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialBackoff,
		RandomizationFactor: cfg.Jitter,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxBackoff,
	}

	attempt := 0
	op := func() (T, error) {
		attempt++
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		v, err := fn(ctx)
		if err != nil && !cfg.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("resilience: attempt failed, retrying",
				"name", cfg.Name,
				"attempt", attempt,
				"of", cfg.Attempts,
				"backoff", next,
				"err", err,
			)
		}),
	)
}
