package resilience

import (
	"context"
	"errors"

	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// several model backends, e.g. Gemini first and an OpenAI model second.
// Each backend has its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. An empty reply counts as a failure so the next backend is tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err == nil && (resp == nil || resp.Content == "") {
			return nil, errEmptyReply
		}
		return resp, err
	})
}

// CountTokens returns the primary's estimate. Like Capabilities it is local
// metadata and bypasses the breakers, so it never resets a failure count.
func (f *LLMFallback) CountTokens(messages []llm.Message) (int, error) {
	return f.group.Primary().CountTokens(messages)
}

// Capabilities returns the most restrictive limits across all backends so a
// request sized for the primary also fits every fallback. JSON mode is
// reported only if every backend supports it.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.Primary().Capabilities()
	for _, e := range f.group.entries[1:] {
		c := e.value.Capabilities()
		caps.ContextWindow = minPositive(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = minPositive(caps.MaxOutputTokens, c.MaxOutputTokens)
		caps.SupportsJSONMode = caps.SupportsJSONMode && c.SupportsJSONMode
		caps.SupportsStreaming = caps.SupportsStreaming && c.SupportsStreaming
	}
	return caps
}

// Available reports whether any backend's breaker would accept a call.
func (f *LLMFallback) Available() bool {
	return f.group.Available()
}

// States reports each backend's breaker state keyed by provider name.
func (f *LLMFallback) States() map[string]State {
	return f.group.States()
}

var errEmptyReply = errors.New("model returned an empty reply")

// minPositive returns the smaller of a and b, treating 0 as unknown.
func minPositive(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}
