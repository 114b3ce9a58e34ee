package feedback_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/SumitDutta007/ai-tutor/internal/feedback"
	"github.com/SumitDutta007/ai-tutor/internal/resilience"
	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm"
	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm/mock"
)

func TestLLMGenerator_Generate(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: `{"ok":true}`},
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 10_000, MaxOutputTokens: 1024},
		TokenCount:        100,
	}
	g, err := feedback.NewLLMGenerator(p, feedback.WithTemperature(0.1), feedback.WithMaxTokens(4096))
	if err != nil {
		t.Fatalf("NewLLMGenerator: %v", err)
	}

	got, err := g.Generate(context.Background(), "grade this")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("Generate: got %q", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls: got %d, want 1", len(calls))
	}
	req := calls[0].Req
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "grade this" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
	if !req.JSONMode {
		t.Error("JSONMode not requested")
	}
	if req.Temperature != 0.1 {
		t.Errorf("Temperature: got %v, want 0.1", req.Temperature)
	}
	if req.MaxTokens != 1024 {
		t.Errorf("MaxTokens: got %d, want 1024 (capped by model)", req.MaxTokens)
	}
}

func TestLLMGenerator_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    *mock.Provider
	}{
		{"provider error", &mock.Provider{CompleteErr: errors.New("503 unavailable")}},
		{"nil response", &mock.Provider{}},
		{"blank content", &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  \n"}}},
		{"prompt too large", &mock.Provider{
			CompleteResponse:  &llm.CompletionResponse{Content: "{}"},
			ModelCapabilities: llm.ModelCapabilities{ContextWindow: 1000},
			TokenCount:        5000,
		}},
		{"token count error", &mock.Provider{
			ModelCapabilities: llm.ModelCapabilities{ContextWindow: 1000},
			CountTokensErr:    errors.New("tokenizer down"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, _ := feedback.NewLLMGenerator(tt.p)
			_, err := g.Generate(context.Background(), "x")
			var genErr *feedback.GenerationFailureError
			if !errors.As(err, &genErr) {
				t.Fatalf("expected *GenerationFailureError, got %v", err)
			}
		})
	}
}

func TestNewLLMGenerator_NilProvider(t *testing.T) {
	t.Parallel()
	if _, err := feedback.NewLLMGenerator(nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestLLMGenerator_SendsEachPromptOnce(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Replies: []string{"first", "second"}}
	g, err := feedback.NewLLMGenerator(p)
	if err != nil {
		t.Fatalf("NewLLMGenerator: %v", err)
	}

	for i, want := range []string{"first", "second"} {
		got, err := g.Generate(context.Background(), "prompt "+want)
		if err != nil || got != want {
			t.Fatalf("call %d = %q, %v; want %q", i, got, err, want)
		}
	}
	if got := p.Prompts(); !slices.Equal(got, []string{"prompt first", "prompt second"}) {
		t.Errorf("prompts = %q", got)
	}

	// Replies are exhausted and nothing else is configured.
	if _, err := g.Generate(context.Background(), "third"); err == nil {
		t.Error("expected a generation failure once the script runs out")
	}
}

func TestLLMGenerator_OpensPrimaryBreaker(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{
		CompleteErr:       errors.New("503 unavailable"),
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128_000},
	}
	secondary := &mock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "{}"},
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128_000},
	}
	chain := resilience.NewLLMFallback(primary, "gemini", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 2},
	})
	chain.AddFallback("openai", secondary)

	g, err := feedback.NewLLMGenerator(chain)
	if err != nil {
		t.Fatalf("NewLLMGenerator: %v", err)
	}
	for i := range 10 {
		if _, err := g.Generate(context.Background(), "score this"); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}

	if got := chain.States()["gemini"]; got != resilience.StateOpen {
		t.Errorf("primary breaker = %v, want open", got)
	}
	if n := len(primary.Calls()); n != 2 {
		t.Errorf("primary Complete calls = %d, want 2", n)
	}
	if n := len(secondary.Calls()); n != 10 {
		t.Errorf("fallback Complete calls = %d, want 10", n)
	}
}
