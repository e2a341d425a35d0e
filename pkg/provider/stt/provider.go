// Package stt defines the Provider interface for batch Speech-to-Text
// backends.
//
// A provider receives a complete, already decoded utterance as 16 kHz mono
// float32 samples and returns the recognised text as time-stamped segments.
// The transcription service above it takes care of voice-activity filtering,
// model lifecycle and text clean-up.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// SampleRate is the sample rate every provider expects, in Hz.
const SampleRate = 16000

// Config carries per-request transcription settings.
type Config struct {
	// Language is an ISO 639-1 hint ("en", "de"). Empty or "auto" lets the
	// backend detect the language.
	Language string
}

// Segment is one recognised stretch of speech. Start and End are relative to
// the first sample passed to Transcribe.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe recognises speech in samples. It returns no segments and a
	// nil error when the audio contains no recognisable speech.
	Transcribe(ctx context.Context, samples []float32, cfg Config) ([]Segment, error)

	// Close releases model memory or connections held by the provider.
	Close() error
}
