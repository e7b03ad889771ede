// Package openai writes meeting minutes with the OpenAI chat completions API.
// Because base_url is configurable it also serves vLLM, LM Studio, LocalAI
// and other servers that copy that API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/transcribot/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is an OpenAI client bound to one chat model.
type Provider struct {
	client oai.Client
	model  shared.ChatModel
}

// Option customises a [Provider].
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithOrganization(org)) }
}

// WithTimeout limits each HTTP request. Minutes for a long meeting take a
// while to generate, so by default only the caller's context applies.
func WithTimeout(d time.Duration) Option {
	return func(o *[]option.RequestOption) {
		if d > 0 {
			*o = append(*o, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// WithMaxRetries sets how often the SDK retries on its own. The summary
// fallback chain already retries across providers, so 0 is a sensible value.
func WithMaxRetries(n int) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithMaxRetries(n)) }
}

// New returns a Provider for model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		opt(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: shared.ChatModel(model)}, nil
}

// Complete sends the conversation and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.request(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

func (p *Provider) request(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := toMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: request has no messages")
	}

	params := oai.ChatCompletionNewParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func toMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		var a oai.ChatCompletionAssistantMessageParam
		if m.Content != "" {
			a.Content.OfString = oai.String(m.Content)
		}
		if m.Name != "" {
			a.Name = oai.String(m.Name)
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &a}, nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown role %q", m.Role)
}
