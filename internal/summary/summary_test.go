package summary

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/transcribot/pkg/provider/llm"
	llmmock "github.com/MrWong99/transcribot/pkg/provider/llm/mock"
)

func TestLLMSummariser_Minutes(t *testing.T) {
	t.Parallel()

	t.Run("empty transcript skips the backend", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{}
		got, err := NewLLMSummariser(p).Minutes(context.Background(), " \n")
		if err != nil || got != "" {
			t.Fatalf("Minutes = %q, %v", got, err)
		}
		if p.CallCount() != 0 {
			t.Errorf("expected no LLM calls, got %d", p.CallCount())
		}
	})

	t.Run("sends the minutes prompt", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{Content: "  - Budget approved.\n"},
		}
		s := NewLLMSummariser(p, WithTemperature(0.3), WithMaxTokens(800))

		got, err := s.Minutes(context.Background(), "A: the budget is approved")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "- Budget approved." {
			t.Errorf("Minutes = %q", got)
		}
		if p.CallCount() != 1 {
			t.Fatalf("expected 1 Complete call, got %d", p.CallCount())
		}
		req := p.CompleteCalls[0].Req
		if req.SystemPrompt != "You are a helpful assistant." {
			t.Errorf("system prompt = %q", req.SystemPrompt)
		}
		want := "A: the budget is approved\nWrite detailed minutes for the above meeting."
		if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != want {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.Temperature != 0.3 || req.MaxTokens != 800 {
			t.Errorf("temperature = %v, max tokens = %d", req.Temperature, req.MaxTokens)
		}
	})

	t.Run("wraps backend errors", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("quota exceeded")
		p := &llmmock.Provider{CompleteErr: boom}
		if _, err := NewLLMSummariser(p).Minutes(context.Background(), "A: hi"); !errors.Is(err, boom) {
			t.Errorf("err = %v, want %v", err, boom)
		}
	})
}
