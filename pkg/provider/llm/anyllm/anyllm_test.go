package anyllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/privanote/pkg/provider/llm"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		model   string
		opts    []anyllmlib.Option
		want    string
		wantErr string
	}{
		{name: "ollama", backend: "ollama", model: "llama3.1", want: "ollama"},
		{name: "mixed case", backend: " LlamaFile ", model: "mistral", want: "llamafile"},
		{name: "llamacpp with url", backend: "llamacpp", model: "qwen2.5",
			opts: []anyllmlib.Option{anyllmlib.WithBaseURL("http://localhost:1234/v1")}, want: "llamacpp"},
		{name: "empty model", backend: "ollama", wantErr: "model must not be empty"},
		{name: "unknown backend", backend: "fakecloud", model: "m", wantErr: "llamacpp, llamafile, ollama, openai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.backend, tt.model, tt.opts...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Backend() != tt.want || p.Model() != tt.model {
				t.Errorf("Backend, Model = %q, %q", p.Backend(), p.Model())
			}
		})
	}
}

func TestToParams(t *testing.T) {
	t.Parallel()

	params, err := toParams("llama3.1", llm.CompletionRequest{
		SystemPrompt: "analyst",
		Messages:     []llm.Message{{Role: "user", Content: "transcript"}},
		Temperature:  0.2,
		MaxTokens:    1500,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("toParams: %v", err)
	}
	if params.Model != "llama3.1" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("Messages = %+v, want system + user", params.Messages)
	}
	if sys := params.Messages[0].ContentString(); !strings.HasPrefix(sys, "analyst") || !strings.HasSuffix(sys, jsonInstruction) {
		t.Errorf("system prompt = %q", sys)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 1500 {
		t.Errorf("MaxTokens = %v, want 1500", params.MaxTokens)
	}

	plain, err := toParams("m", llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("toParams: %v", err)
	}
	if len(plain.Messages) != 1 || plain.Temperature != nil || plain.MaxTokens != nil {
		t.Errorf("plain params = %+v", plain)
	}

	if _, err := toParams("m", llm.CompletionRequest{SystemPrompt: "only system"}); !errors.Is(err, errNoMessages) {
		t.Errorf("err = %v, want errNoMessages", err)
	}
}

func TestComplete_OpenAICompatibleServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "qwen2.5",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": `{"summary":"local"}`},
			}},
			"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	defer srv.Close()

	p, err := New("llamacpp", "qwen2.5", anyllmlib.WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"summary":"local"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Model != "qwen2.5" {
		t.Errorf("Model = %q", resp.Model)
	}
}
