package vad

import "time"

// Event represents a voice activity detection result for a single frame.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech, including short pauses.
	SpeechContinue

	// SpeechEnd indicates speech ended; the frame itself is silence.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}

// Region is a half-open span [Start, End) of sample indices containing speech.
type Region struct {
	Start int
	End   int
}

// Offset returns the start time of the region at the given sample rate.
func (r Region) Offset(sampleRate int) time.Duration {
	return time.Duration(r.Start) * time.Second / time.Duration(sampleRate)
}

// Len returns the number of samples in the region.
func (r Region) Len() int { return r.End - r.Start }
