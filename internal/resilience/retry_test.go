package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		Name:           "test",
		Attempts:       attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Jitter:         -1,
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")

	tests := []struct {
		name      string
		attempts  int
		failures  int
		err       error
		retryable func(error) bool
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", attempts: 3, wantCalls: 1},
		{name: "succeeds after failures", attempts: 3, failures: 2, err: errTest, wantCalls: 3},
		{name: "attempts exhausted", attempts: 3, failures: 5, err: errTest, wantCalls: 3, wantErr: errTest},
		{name: "default attempts", failures: 5, err: errTest, wantCalls: 3, wantErr: errTest},
		{
			name:      "non-retryable stops at once",
			attempts:  5,
			failures:  5,
			err:       permanent,
			retryable: func(err error) bool { return !errors.Is(err, permanent) },
			wantCalls: 1,
			wantErr:   permanent,
		},
		{name: "context errors are not retried", attempts: 5, failures: 5, err: context.DeadlineExceeded, wantCalls: 1, wantErr: context.DeadlineExceeded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := fastRetry(tc.attempts)
			cfg.Retryable = tc.retryable
			calls := 0
			err := Retry(context.Background(), cfg, func(context.Context) error {
				calls++
				if calls <= tc.failures {
					return tc.err
				}
				return nil
			})
			if !errors.Is(err, tc.wantErr) || (tc.wantErr == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if calls != tc.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tc.wantCalls)
			}
		})
	}
}

func TestRetryValue_ReturnsValue(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := RetryValue(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTest
		}
		return "https://bucket/object", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://bucket/object" {
		t.Errorf("got %q", got)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(3)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func(context.Context) error {
			calls++
			return errTest
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Retry did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
