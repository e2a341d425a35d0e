// Package mock provides a canned llm.Provider for tests.
//
//	p := &mock.Provider{Name: "gpt-4o", Reply: `{"summary":"ok"}`}
//	resp, _ := p.Complete(ctx, req)
//	sent := p.Requests()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/privanote/pkg/provider/llm"
)

// Provider answers every completion with Reply, or fails with Err.
type Provider struct {
	// Name is reported by Model and copied into every response.
	Name string

	// Reply is the content of every successful response.
	Reply string

	// Err fails every call when set.
	Err error

	// Handler replaces Reply and Err when set.
	Handler func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu       sync.Mutex
	requests []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete records req and answers it.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	switch {
	case p.Handler != nil:
		return p.Handler(ctx, req)
	case p.Err != nil:
		return nil, p.Err
	}
	return &llm.CompletionResponse{Content: p.Reply, Model: p.Name}, nil
}

// Model returns Name.
func (p *Provider) Model() string { return p.Name }

// Requests returns the requests seen so far, oldest first.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}
