// Package llm defines the Provider interface for the chat-completion backends
// that analyse meeting transcripts.
//
// A provider wraps a remote or local model API (the OpenAI API, a local Ollama
// daemon, an OpenAI-compatible server such as LM Studio) behind one blocking
// Complete call so the analysis router can treat every backend alike.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is a single entry of the conversation sent to the model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce one reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is prepended as a "system" message when non-empty.
	SystemPrompt string

	// Messages is the ordered conversation. The last message drives the reply.
	Messages []Message

	// Temperature controls sampling randomness. Zero leaves the backend default.
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero leaves the backend
	// default.
	MaxTokens int

	// JSONMode asks the backend to constrain its output to a single JSON
	// object. Backends without a native JSON mode fall back to a prompt
	// instruction, so replies may still carry text around the object.
	JSONMode bool
}

// CompletionResponse is the full reply of a Complete call.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Model is the model that produced the reply as reported by the backend.
	// Empty when the backend does not report it.
	Model string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response. It
	// returns an error when the request fails, the backend answers with a
	// non-success status or ctx is done before the reply arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}
