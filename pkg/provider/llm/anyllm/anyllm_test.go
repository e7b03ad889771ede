package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/transcribot/pkg/provider/llm"
)

func TestParams_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   llm.Message
	}{
		{"system", llm.Message{Role: llm.RoleSystem, Content: "You are a helpful assistant."}},
		{"user", llm.Message{Role: llm.RoleUser, Content: "A: hello"}},
		{"assistant with name", llm.Message{Role: llm.RoleAssistant, Content: "Minutes", Name: "scribe"}},
	}
	p := &Provider{model: "m"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			params, err := p.params(llm.CompletionRequest{Messages: []llm.Message{tc.in}})
			if err != nil {
				t.Fatal(err)
			}
			if len(params.Messages) != 1 {
				t.Fatalf("messages = %d, want 1", len(params.Messages))
			}
			got := params.Messages[0]
			if got.Role != tc.in.Role {
				t.Errorf("role = %q, want %q", got.Role, tc.in.Role)
			}
			if got.ContentString() != tc.in.Content {
				t.Errorf("content = %q, want %q", got.ContentString(), tc.in.Content)
			}
			if got.Name != tc.in.Name {
				t.Errorf("name = %q, want %q", got.Name, tc.in.Name)
			}
		})
	}
}

func TestSupported_Sorted(t *testing.T) {
	t.Parallel()
	if !slices.IsSorted(Supported) || len(Supported) != len(backends) {
		t.Errorf("Supported = %v", Supported)
	}
	if !slices.Contains(Supported, "anthropic") {
		t.Error("anthropic missing from Supported")
	}
}

func TestParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.params(llm.CompletionRequest{
		SystemPrompt: "sys",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.2,
		MaxTokens:    512,
	})
	if err != nil {
		t.Fatal(err)
	}
	if params.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("messages = %+v", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}

	if _, err := p.params(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		model    string
	}{
		{"empty provider", "", "gpt-4o"},
		{"empty model", "openai", ""},
		{"unsupported provider", "fakecloud", "some-model"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.provider, tc.model, anyllmlib.WithAPIKey("dummy")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_Backends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		opts     []anyllmlib.Option
	}{
		{"openai", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", nil},
		{"llamacpp", nil},
		{"llamafile", nil},
	}
	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.provider, "model-x", tc.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tc.provider, err)
			}
			if p.model != "model-x" {
				t.Errorf("model = %q", p.model)
			}
		})
	}
}

func TestNew_OpenAIMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
