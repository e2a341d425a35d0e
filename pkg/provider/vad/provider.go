// Package vad defines the Engine interface for Voice Activity Detection
// backends and a batch helper that splits a recording into speech regions.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session keeps its own smoothing state so
// that multiple recordings can be processed concurrently.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// samples passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error if the supplied frame does not match.
	FrameSizeMs int

	// SpeechThreshold is the probability at or above which a frame counts as
	// speech. Range: [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts as
	// silence. Must be ≤ SpeechThreshold. Typical: 0.35.
	SilenceThreshold float64

	// MinSilenceMs is how long silence must last before an active speech
	// region is closed. Shorter pauses stay inside the region.
	MinSilenceMs int

	// SpeechPadMs extends every detected region on both sides.
	SpeechPadMs int
}

// DefaultConfig returns the settings used for 16 kHz meeting recordings.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		FrameSizeMs:      30,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.35,
		MinSilenceMs:     500,
		SpeechPadMs:      400,
	}
}

// FrameSamples returns the number of samples per frame.
func (c Config) FrameSamples() int {
	return c.SampleRate * c.FrameSizeMs / 1000
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations.
type SessionHandle interface {
	// ProcessFrame analyses one mono float32 frame of exactly
	// Config.FrameSamples samples and returns the detection result.
	ProcessFrame(frame []float32) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewSession creates a new session. Returns an error if the configuration
	// is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
