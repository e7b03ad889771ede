// Package summary turns finished transcripts into meeting minutes using an
// LLM provider.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/transcribot/pkg/provider/llm"
)

const (
	systemPrompt  = "You are a helpful assistant."
	minutesSuffix = "\nWrite detailed minutes for the above meeting."
)

// Summariser produces meeting minutes for a transcript.
type Summariser interface {
	// Minutes returns the minutes for transcript. An empty transcript yields
	// an empty result without calling the backend.
	Minutes(ctx context.Context, transcript string) (string, error)
}

// LLMSummariser uses an LLM provider to write minutes.
type LLMSummariser struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

var _ Summariser = (*LLMSummariser)(nil)

// Option configures an LLMSummariser.
type Option func(*LLMSummariser)

// WithTemperature sets the sampling temperature. Zero uses the provider
// default.
func WithTemperature(t float64) Option {
	return func(s *LLMSummariser) { s.temperature = t }
}

// WithMaxTokens caps the length of the minutes.
func WithMaxTokens(n int) Option {
	return func(s *LLMSummariser) { s.maxTokens = n }
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider, opts ...Option) *LLMSummariser {
	s := &LLMSummariser{llm: provider}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Minutes implements [Summariser].
func (s *LLMSummariser) Minutes(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", nil
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: Prompt(transcript)},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summary: minutes: %w", err)
	}
	if resp == nil {
		return "", errors.New("summary: minutes: empty response")
	}
	return strings.TrimSpace(resp.Content), nil
}

// Prompt returns the user message asking for minutes of transcript.
func Prompt(transcript string) string {
	return transcript + minutesSuffix
}
