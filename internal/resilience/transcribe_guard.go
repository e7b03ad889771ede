package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/transcribot/pkg/provider/transcribe"
)

// GuardedProvider wraps a [transcribe.Provider] so that Submit goes through a
// circuit breaker. Only transient failures count against the breaker. While
// it is open Submit fails immediately with an error wrapping
// [ErrCircuitOpen], which is not transient.
//
// Poll, AwaitTerminal, Cancel and Format are forwarded unchanged.
type GuardedProvider struct {
	transcribe.Provider
	breaker *CircuitBreaker
}

var _ transcribe.Provider = (*GuardedProvider)(nil)

// NewGuardedProvider wraps p. cfg.IsFailure is replaced with
// transcribe.IsTransient.
func NewGuardedProvider(p transcribe.Provider, cfg CircuitBreakerConfig) *GuardedProvider {
	cfg.IsFailure = transcribe.IsTransient
	return &GuardedProvider{Provider: p, breaker: NewCircuitBreaker(cfg)}
}

// Submit implements transcribe.Provider.
func (g *GuardedProvider) Submit(ctx context.Context, fileURL string) (string, error) {
	var id string
	err := g.breaker.Execute(func() error {
		var err error
		id, err = g.Provider.Submit(ctx, fileURL)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return "", fmt.Errorf("transcription backend unavailable: %w", err)
	}
	return id, err
}

// BreakerState reports the state of the submit breaker.
func (g *GuardedProvider) BreakerState() State {
	return g.breaker.State()
}
