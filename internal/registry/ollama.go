package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OllamaLister lists the models pulled into an Ollama daemon.
type OllamaLister struct {
	baseURL string
	client  *http.Client
}

// Compile-time assertion that OllamaLister satisfies ModelLister.
var _ ModelLister = (*OllamaLister)(nil)

// NewOllamaLister returns a lister for the daemon at baseURL
// (e.g. "http://localhost:11434"). A nil client uses http.DefaultClient;
// probe deadlines come from the context.
func NewOllamaLister(baseURL string, client *http.Client) *OllamaLister {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaLister{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ListModels implements [ModelLister] via GET /api/tags.
func (o *OllamaLister) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("registry: ollama: build request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry: ollama: unexpected status %d", resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("registry: ollama: decode tags: %w", err)
	}
	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			models = append(models, name)
		}
	}
	return models, nil
}
