// Package anyllm writes meeting minutes through
// github.com/mozilla-ai/any-llm-go, which offers hosted and local model
// backends behind a single completion call.
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/transcribot/pkg/provider/llm"
)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

func adapt[P anyllmlib.Provider](ctor func(...anyllmlib.Option) (P, error)) constructor {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		b, err := ctor(opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

var backends = map[string]constructor{
	"openai":    adapt(anyllmoai.New),
	"anthropic": adapt(anthropic.New),
	"gemini":    adapt(gemini.New),
	"ollama":    adapt(ollama.New),
	"deepseek":  adapt(deepseek.New),
	"mistral":   adapt(mistral.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
}

// Supported lists the backend names New accepts, sorted.
var Supported = slices.Sorted(maps.Keys(backends))

// Provider sends completions to one any-llm-go backend and model.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Provider for the named backend. The name is matched case
// insensitively against [Supported].
//
// opts are passed to the backend unchanged. Without anyllmlib.WithAPIKey the
// backend reads its usual environment variable, e.g. ANTHROPIC_API_KEY.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	switch {
	case name == "":
		return nil, errors.New("anyllm: providerName must not be empty")
	case model == "":
		return nil, errors.New("anyllm: model must not be empty")
	}

	ctor, ok := backends[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s", name, strings.Join(Supported, ", "))
	}
	backend, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// Complete sends req and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: response has no choices")
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}
	if len(msgs) == 0 {
		return anyllmlib.CompletionParams{}, errors.New("anyllm: request has no messages")
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params, nil
}
