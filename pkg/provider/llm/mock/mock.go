// Package mock provides a scriptable llm.Provider for tests.
//
// Configure the exported fields before the provider is shared between
// goroutines:
//
//	p := &mock.Provider{Replies: []string{"not json", `{"totalScore": 80}`}}
package mock

import (
	"context"
	"sync"

	"github.com/SumitDutta007/ai-tutor/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Complete answers, in
// order of precedence, with CompleteFunc, the next unused entry of Replies,
// or CompleteResponse and CompleteErr.
type Provider struct {
	// CompleteFunc, if set, handles every call. Useful for blocking or
	// prompt-dependent behaviour.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Replies are returned as response content one per call.
	Replies []string

	// CompleteResponse and CompleteErr are returned once Replies is used up.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// TokenCount and CountTokensErr are returned by CountTokens.
	TokenCount     int
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	mu    sync.Mutex
	calls []CompleteCall
	next  int
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the scripted answer.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	var scripted *llm.CompletionResponse
	if fn == nil && p.next < len(p.Replies) {
		scripted = &llm.CompletionResponse{Content: p.Replies[p.next], FinishReason: "stop"}
		p.next++
	}
	resp, err := p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	switch {
	case fn != nil:
		return fn(ctx, req)
	case scripted != nil:
		return scripted, nil
	}
	return resp, err
}

// CountTokens returns TokenCount and CountTokensErr.
func (p *Provider) CountTokens([]llm.Message) (int, error) {
	return p.TokenCount, p.CountTokensErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.calls...)
}

// Prompts returns the content of the last message of every recorded call.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		if n := len(c.Req.Messages); n > 0 {
			out = append(out, c.Req.Messages[n-1].Content)
		}
	}
	return out
}
