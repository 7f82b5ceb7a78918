// Package mock provides a test double for the llm.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxlog/voxlog/pkg/llm"
)

// Provider is a scripted llm.Provider. Set the response fields before use;
// zero values yield an empty response and nil error.
type Provider struct {
	// CompleteResponse is returned by Complete when CompleteErr is nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, when set, is returned by Complete.
	CompleteErr error

	mu    sync.Mutex
	calls []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the request and returns the scripted response.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	return &llm.CompletionResponse{}, nil
}

// Calls returns the requests passed to Complete, in order.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}
