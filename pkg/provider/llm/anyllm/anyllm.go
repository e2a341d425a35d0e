// Package anyllm adapts github.com/mozilla-ai/any-llm-go to llm.Provider for
// locally hosted model servers: an Ollama daemon and the OpenAI-compatible
// servers of llama.cpp, llamafile and LM Studio.
//
//	p, err := anyllm.New("ollama", "llama3.1", anyllmlib.WithBaseURL("http://localhost:11434"))
//	p, err := anyllm.New("llamacpp", "qwen2.5-7b-instruct", anyllmlib.WithBaseURL("http://localhost:1234/v1"))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/privanote/pkg/provider/llm"
)

// backends maps a backend name to its any-llm-go constructor.
var backends = map[string]func(...anyllmlib.Option) (anyllmlib.Provider, error){
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
}

// Backends returns the supported backend names in sorted order.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

var errNoMessages = errors.New("anyllm: request has no messages")

// Provider sends completions to one model on one backend.
type Provider struct {
	client  anyllmlib.Provider
	backend string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New connects to backend (case-insensitive, see [Backends]) for model. Each
// backend falls back to its usual localhost address when no
// anyllmlib.WithBaseURL option is given.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	ctor, ok := backends[backend]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	client, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s client: %w", backend, err)
	}
	return &Provider{client: client, backend: backend, model: model}, nil
}

// Backend returns the normalised backend name.
func (p *Provider) Backend() string { return p.backend }

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider. Local servers do not all honour a JSON
// response format, so JSONMode only adds an instruction to the system prompt.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := toParams(p.model, req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.backend, llm.Classify(err, 0))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.backend)
	}

	out := &llm.CompletionResponse{
		Content: resp.Choices[0].Message.ContentString(),
		Model:   p.model,
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

// jsonInstruction is appended to the system prompt in JSON mode.
const jsonInstruction = "Respond with a single JSON object and nothing else."

// toParams builds the any-llm request. Zero Temperature and MaxTokens leave
// the server defaults in place.
func toParams(model string, req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	system := req.SystemPrompt
	if req.JSONMode && !strings.Contains(system, jsonInstruction) {
		system = strings.TrimSpace(system + "\n\n" + jsonInstruction)
	}

	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if system != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	if len(req.Messages) == 0 {
		return anyllmlib.CompletionParams{}, errNoMessages
	}

	params := anyllmlib.CompletionParams{Model: model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params, nil
}
