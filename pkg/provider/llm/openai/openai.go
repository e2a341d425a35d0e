// Package openai provides an LLM provider backed by the OpenAI chat
// completions API. The same client also talks to any OpenAI-compatible server
// when pointed at it with [WithBaseURL].
package openai

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/privanote/pkg/provider/llm"
)

// DefaultModel is used when New is called with an empty model name.
const DefaultModel = "gpt-4o"

var _ llm.Provider = (*Provider)(nil)

// Provider sends completions to the OpenAI chat API or a compatible server.
type Provider struct {
	client oai.Client
	model  string
}

// Option adjusts the SDK client.
type Option func(*[]option.RequestOption)

func with(o option.RequestOption) Option {
	return func(opts *[]option.RequestOption) { *opts = append(*opts, o) }
}

// WithBaseURL points the client at another OpenAI-compatible endpoint. An
// empty url keeps the public API.
func WithBaseURL(url string) Option {
	if url == "" {
		return func(*[]option.RequestOption) {}
	}
	return with(option.WithBaseURL(url))
}

// WithOrganization sends the organization header on every request.
func WithOrganization(org string) Option { return with(option.WithOrganization(org)) }

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return with(option.WithHTTPClient(&http.Client{Timeout: d}))
}

// WithMaxRetries overrides how often the SDK retries a failed request.
func WithMaxRetries(n int) Option { return with(option.WithMaxRetries(n)) }

// New returns a provider for model, or [DefaultModel] when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cmp.Or(model, DefaultModel)}, nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider. JSONMode maps to the json_object
// response format.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := toParams(p.model, req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	u := resp.Usage
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

// ListModels returns the identifiers reported by the models endpoint, in the
// order the server lists them. It is used to probe OpenAI-compatible local
// servers for loaded models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: list models: %w", classify(err))
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// classify maps API status codes onto the shared llm failure classes.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return llm.Classify(err, apiErr.StatusCode)
	}
	return llm.Classify(err, 0)
}

// roles maps llm message roles to SDK message constructors.
var roles = map[string]func(string) oai.ChatCompletionMessageParamUnion{
	"system":    func(c string) oai.ChatCompletionMessageParamUnion { return oai.SystemMessage(c) },
	"user":      func(c string) oai.ChatCompletionMessageParamUnion { return oai.UserMessage(c) },
	"assistant": func(c string) oai.ChatCompletionMessageParamUnion { return oai.AssistantMessage(c) },
}

func toParams(model string, req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: request has no messages")
	}
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		build, ok := roles[m.Role]
		if !ok {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unknown message role %q", m.Role)
		}
		msgs = append(msgs, build(m.Content))
	}

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONMode {
		params.ResponseFormat.OfJSONObject = &shared.ResponseFormatJSONObjectParam{}
	}
	return params, nil
}
