package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm"
)

// Generator sends a rendered prompt to a text-generation model and returns
// the raw reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f(ctx, prompt).
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// LLMGenerator implements Generator on top of an llm.Provider.
type LLMGenerator struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

var _ Generator = (*LLMGenerator)(nil)

// GeneratorOption configures an LLMGenerator.
type GeneratorOption func(*LLMGenerator)

// WithTemperature sets the sampling temperature. Default 0.2.
func WithTemperature(t float64) GeneratorOption {
	return func(g *LLMGenerator) { g.temperature = t }
}

// WithMaxTokens caps the reply length. It is further capped by the model's
// MaxOutputTokens. Default 2048.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *LLMGenerator) { g.maxTokens = n }
}

// NewLLMGenerator returns a Generator backed by p.
func NewLLMGenerator(p llm.Provider, opts ...GeneratorOption) (*LLMGenerator, error) {
	if p == nil {
		return nil, errors.New("feedback: llm provider must not be nil")
	}
	g := &LLMGenerator{provider: p, temperature: 0.2, maxTokens: 2048}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Generate implements Generator. Every failure is a *GenerationFailureError.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	msgs := []llm.Message{{Role: "user", Content: prompt}}
	caps := g.provider.Capabilities()

	maxTokens := g.maxTokens
	if caps.MaxOutputTokens > 0 && (maxTokens == 0 || maxTokens > caps.MaxOutputTokens) {
		maxTokens = caps.MaxOutputTokens
	}
	if caps.ContextWindow > 0 {
		n, err := g.provider.CountTokens(msgs)
		if err != nil {
			return "", &GenerationFailureError{Err: fmt.Errorf("count tokens: %w", err)}
		}
		if n+maxTokens > caps.ContextWindow {
			return "", &GenerationFailureError{Err: fmt.Errorf("prompt of ~%d tokens exceeds context window of %d", n, caps.ContextWindow)}
		}
	}

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Temperature: g.temperature,
		MaxTokens:   maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return "", &GenerationFailureError{Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &GenerationFailureError{Err: errors.New("model returned an empty reply")}
	}
	return resp.Content, nil
}
