// Package types defines the shared types used across PrivaNote packages.
//
// The analysis router produces an [AnalysisResult], the meeting store persists
// it and the exporter renders it. Keeping the type here lets those packages
// depend on one another in one direction only.
package types

import (
	"fmt"
	"math"
	"strings"
)

// ProviderID names an analysis backend.
type ProviderID string

const (
	// ProviderOpenAI is the cloud chat-completions API.
	ProviderOpenAI ProviderID = "openai"

	// ProviderOllama is a locally hosted Ollama daemon.
	ProviderOllama ProviderID = "ollama"

	// ProviderLMStudio is a locally hosted OpenAI-compatible server such as
	// LM Studio or llama.cpp's server.
	ProviderLMStudio ProviderID = "lmstudio"

	// ProviderFallback is the rule-based analyzer that needs no model.
	ProviderFallback ProviderID = "fallback"
)

// Providers lists every backend in dispatch preference order.
var Providers = []ProviderID{ProviderOpenAI, ProviderOllama, ProviderLMStudio, ProviderFallback}

// Valid reports whether p is one of the known providers.
func (p ProviderID) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderOllama, ProviderLMStudio, ProviderFallback:
		return true
	}
	return false
}

// IsLocal reports whether the backend runs on the user's machine.
func (p ProviderID) IsLocal() bool {
	return p == ProviderOllama || p == ProviderLMStudio
}

// DisplayName returns the human-readable backend name used in result labels.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI (Cloud)"
	case ProviderOllama:
		return "Ollama"
	case ProviderLMStudio:
		return "LM Studio"
	case ProviderFallback:
		return "Basic Analysis (fallback)"
	}
	return string(p)
}

// ParseProviderID parses a provider name case-insensitively. An empty string
// selects [ProviderFallback].
func ParseProviderID(s string) (ProviderID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ProviderFallback, nil
	}
	p := ProviderID(s)
	if !p.Valid() {
		return "", fmt.Errorf("types: unknown provider %q; supported: openai, ollama, lmstudio, fallback", s)
	}
	return p, nil
}

// Source records how the audio of a meeting was obtained.
type Source string

const (
	// SourceUploaded is a file uploaded or passed on the command line.
	SourceUploaded Source = "uploaded"

	// SourceLiveRecording is audio streamed to the server while recording.
	SourceLiveRecording Source = "live_recording"
)

// AnalysisResult is the normalized output of every analysis backend.
// After normalization none of the list fields is nil.
type AnalysisResult struct {
	Summary         string   `json:"summary"`
	ActionItems     []string `json:"action_items"`
	KeyDecisions    []string `json:"key_decisions"`
	TopicsDiscussed []string `json:"topics_discussed"`
	Participants    []string `json:"participants"`
	NextSteps       []string `json:"next_steps"`

	// Confidence is the backend's self-assessed confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// ProviderLabel is the human-readable name of the backend that produced
	// the result, including the model for local backends.
	ProviderLabel string `json:"ai_provider"`

	// Provider is the backend that actually produced the result. It differs
	// from the requested one when the router degraded to the fallback.
	Provider ProviderID `json:"provider"`

	// Warning is set when the result was produced under degraded conditions,
	// for example with a substituted model.
	Warning string `json:"warning,omitempty"`
}

// Normalize replaces nil list fields with empty slices and clamps Confidence
// into [0, 1].
func (r *AnalysisResult) Normalize() {
	r.ActionItems = nonNil(r.ActionItems)
	r.KeyDecisions = nonNil(r.KeyDecisions)
	r.TopicsDiscussed = nonNil(r.TopicsDiscussed)
	r.Participants = nonNil(r.Participants)
	r.NextSteps = nonNil(r.NextSteps)
	if math.IsNaN(r.Confidence) {
		r.Confidence = 0
	}
	r.Confidence = min(max(r.Confidence, 0), 1)
}

// Clone returns a deep copy of r. A nil receiver yields nil.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	c.ActionItems = cloneStrings(r.ActionItems)
	c.KeyDecisions = cloneStrings(r.KeyDecisions)
	c.TopicsDiscussed = cloneStrings(r.TopicsDiscussed)
	c.Participants = cloneStrings(r.Participants)
	c.NextSteps = cloneStrings(r.NextSteps)
	return &c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
