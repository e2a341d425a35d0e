package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/privanote/internal/transcribe"
	"github.com/MrWong99/privanote/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned when a configured backend name has no
// factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory builds a chat-completion client from a backend entry.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// STTFactory builds a model loader for the transcription service.
type STTFactory func(TranscriptionConfig) (transcribe.Loader, error)

// factories is one kind's name to constructor table.
type factories[F any] struct {
	kind string
	m    map[string]F
}

func (f factories[F]) lookup(name string) (F, error) {
	fn, ok := f.m[name]
	if !ok {
		return fn, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return fn, nil
}

// Registry resolves backend names from the config file to constructors.
// Registering a name twice replaces the earlier factory. Safe for concurrent
// use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[LLMFactory]
	stt factories[STTFactory]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: factories[LLMFactory]{kind: "llm", m: map[string]LLMFactory{}},
		stt: factories[STTFactory]{kind: "stt", m: map[string]STTFactory{}},
	}
}

// RegisterLLM registers an analysis backend.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	r.llm.m[name] = f
	r.mu.Unlock()
}

// RegisterSTT registers a transcription backend.
func (r *Registry) RegisterSTT(name string, f STTFactory) {
	r.mu.Lock()
	r.stt.m[name] = f
	r.mu.Unlock()
}

// CreateLLM builds the client for entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, err := r.llm.lookup(entry.Name)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateSTT builds the model loader for cfg.Backend.
func (r *Registry) CreateSTT(cfg TranscriptionConfig) (transcribe.Loader, error) {
	r.mu.RLock()
	f, err := r.stt.lookup(cfg.Backend)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(cfg)
}
