// Package audio turns recordings into the canonical form the transcriber
// consumes: 16 kHz mono 16-bit PCM WAV.
//
// The [Ingestor] validates an input file, converts it when needed (natively
// for PCM WAV, through an external [Converter] such as ffmpeg otherwise) and
// reports its duration, size and original format. Live recordings arrive as
// Opus packets and are assembled by a [Recorder].
package audio

import (
	"errors"
	"fmt"
	"time"
)

// CanonicalSampleRate is the sample rate of every canonical WAV file.
const CanonicalSampleRate = 16000

// Canonical is the format every ingested recording is normalised to.
var Canonical = Format{SampleRate: CanonicalSampleRate, Channels: 1}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form, e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Duration returns the playback length of n interleaved samples in format f.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := int64(n / f.Channels)
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// ErrAudioDecode is matched by every [DecodeError].
var ErrAudioDecode = errors.New("audio decode error")

// DecodeError reports a recording that cannot be ingested.
type DecodeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("audio: decode %q: %s", e.Path, e.Reason)
}

// Unwrap lets errors.Is match both [ErrAudioDecode] and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAudioDecode}
	}
	return []error{ErrAudioDecode, e.Err}
}

func decodeErr(path, reason string, err error) error {
	return &DecodeError{Path: path, Reason: reason, Err: err}
}
