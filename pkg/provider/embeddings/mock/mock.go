// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/transcribot/pkg/provider/embeddings"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed.
	EmbedResult []float32
	EmbedErr    error

	// EmbedBatchResult is returned by EmbedBatch. If nil, one nil vector per
	// input text is returned.
	EmbedBatchResult [][]float32
	EmbedBatchErr    error

	DimensionsValue int
	ModelIDValue    string

	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall
}

var _ embeddings.Provider = (*Provider)(nil)

// Embed records the call and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch records the call and returns EmbedBatchResult, EmbedBatchErr.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: slices.Clone(texts)})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string { return p.ModelIDValue }

// CallCount returns the total number of Embed and EmbedBatch calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls) + len(p.EmbedBatchCalls)
}
