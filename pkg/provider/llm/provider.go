// Package llm defines the Provider interface for Large Language Model backends.
//
// The bot uses an LLM only to turn a finished transcript into meeting minutes,
// so the interface is limited to single-shot completions. Concrete backends
// live in sub-packages (llm/openai, llm/anyllm).
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction sent before Messages.
	SystemPrompt string

	// Messages is the ordered conversation; the last one drives the reply.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero uses the
	// provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns promptly with ctx.Err() when ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
