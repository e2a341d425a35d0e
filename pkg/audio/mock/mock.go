// Package mock provides an in-memory implementation of [audio.Converter] for
// use in unit tests.
//
// The mock is safe for concurrent use. It records every call so that tests
// can assert on arguments, and exposes fields that control return values.
//
// Typical usage:
//
//	conv := &mock.Converter{
//	    ProbeFormat:   audio.Format{SampleRate: 44100, Channels: 2},
//	    ProbeDuration: 90 * time.Second,
//	    Samples:       make([]int16, 16000*90),
//	}
//	ing := audio.NewIngestor(audio.WithConverter(conv))
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/privanote/pkg/audio"
)

// ConvertCall records the arguments of a single [Converter.ToCanonicalWAV] call.
type ConvertCall struct {
	Src string
	Dst string
}

// Converter is a mock implementation of [audio.Converter].
type Converter struct {
	mu sync.Mutex

	// Samples are written as canonical WAV to dst by ToCanonicalWAV.
	Samples []int16

	// ConvertErr, when non-nil, is returned by ToCanonicalWAV without writing.
	ConvertErr error

	// ProbeFormat and ProbeDuration are returned by Probe.
	ProbeFormat   audio.Format
	ProbeDuration time.Duration

	// ProbeErr, when non-nil, is returned by Probe.
	ProbeErr error

	// ConvertCalls records every ToCanonicalWAV invocation.
	ConvertCalls []ConvertCall

	// ProbeCalls records the src argument of every Probe invocation.
	ProbeCalls []string
}

var _ audio.Converter = (*Converter)(nil)

// ToCanonicalWAV implements [audio.Converter].
func (c *Converter) ToCanonicalWAV(_ context.Context, src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConvertCalls = append(c.ConvertCalls, ConvertCall{Src: src, Dst: dst})
	if c.ConvertErr != nil {
		return c.ConvertErr
	}
	return os.WriteFile(dst, audio.EncodeWAVBytes(c.Samples, audio.Canonical), 0o600)
}

// Probe implements [audio.Converter].
func (c *Converter) Probe(_ context.Context, src string) (audio.Format, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProbeCalls = append(c.ProbeCalls, src)
	if c.ProbeErr != nil {
		return audio.Format{}, 0, c.ProbeErr
	}
	return c.ProbeFormat, c.ProbeDuration, nil
}

// Calls returns copies of the recorded convert and probe calls.
func (c *Converter) Calls() ([]ConvertCall, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ConvertCall(nil), c.ConvertCalls...), append([]string(nil), c.ProbeCalls...)
}
