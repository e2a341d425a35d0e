// Package mock provides test doubles for the stt package interfaces.
//
// Provider returns scripted segments and records every Transcribe call so
// tests can inspect the audio and configuration that reached the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Segments: []stt.Segment{{End: time.Second, Text: "hello"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/privanote/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is the number of samples passed to Transcribe.
	Samples int
	// Cfg is the Config passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Segments is returned by every Transcribe call unless TranscribeFunc is set.
	Segments []stt.Segment

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if set, is called instead of returning Segments.
	TranscribeFunc func(ctx context.Context, samples []float32, cfg stt.Config) ([]stt.Segment, error)

	// CloseErr is returned by Close.
	CloseErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, cfg stt.Config) ([]stt.Segment, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Samples: len(samples), Cfg: cfg})
	fn, segs, err := p.TranscribeFunc, p.Segments, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, samples, cfg)
	}
	if err != nil {
		return nil, err
	}
	return append([]stt.Segment(nil), segs...), nil
}

// Close records the call and returns CloseErr.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return p.CloseErr
}

// Calls returns a copy of the recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.TranscribeCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.CloseCallCount = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
