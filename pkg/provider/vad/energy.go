package vad

import (
	"errors"
	"fmt"
	"math"
)

// DefaultKnee is the frame RMS (float32 scale) at which the energy detector
// reports a speech probability of 0.5. It corresponds to roughly 330 on the
// int16 scale, about -40 dBFS.
const DefaultKnee = 0.01

// EnergyEngine is a dependency-free VAD that classifies frames by their RMS
// energy. It is adequate for close-talk meeting recordings; noisy rooms are
// better served by a model-based engine.
type EnergyEngine struct {
	// Knee overrides [DefaultKnee] when positive.
	Knee float64
}

var _ Engine = (*EnergyEngine)(nil)

// NewSession implements [Engine].
func (e *EnergyEngine) NewSession(cfg Config) (SessionHandle, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	knee := e.Knee
	if knee <= 0 {
		knee = DefaultKnee
	}
	return &energySession{
		cfg:           cfg,
		knee:          knee,
		frameSamples:  cfg.FrameSamples(),
		silenceFrames: ceilDiv(cfg.MinSilenceMs, cfg.FrameSizeMs),
	}, nil
}

func validate(cfg Config) error {
	var errs []error
	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", cfg.SampleRate))
	}
	if cfg.FrameSizeMs <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame size must be positive, got %d ms", cfg.FrameSizeMs))
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad: speech threshold %v out of [0,1]", cfg.SpeechThreshold))
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad: silence threshold %v must be in [0, speech threshold]", cfg.SilenceThreshold))
	}
	if cfg.MinSilenceMs < 0 || cfg.SpeechPadMs < 0 {
		errs = append(errs, errors.New("vad: min silence and speech pad must not be negative"))
	}
	return errors.Join(errs...)
}

type energySession struct {
	cfg           Config
	knee          float64
	frameSamples  int
	silenceFrames int

	speaking bool
	quiet    int
	closed   bool
}

func (s *energySession) ProcessFrame(frame []float32) (Event, error) {
	if s.closed {
		return Event{}, errors.New("vad: session closed")
	}
	if len(frame) != s.frameSamples {
		return Event{}, fmt.Errorf("vad: frame has %d samples, want %d", len(frame), s.frameSamples)
	}

	var sum float64
	for _, v := range frame {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	p := rms / (rms + s.knee)
	ev := Event{Probability: p}

	switch {
	case !s.speaking && p >= s.cfg.SpeechThreshold:
		s.speaking, s.quiet = true, 0
		ev.Type = SpeechStart
	case !s.speaking:
		ev.Type = Silence
	case p < s.cfg.SilenceThreshold:
		s.quiet++
		if s.quiet >= s.silenceFrames {
			s.speaking, s.quiet = false, 0
			ev.Type = SpeechEnd
		} else {
			ev.Type = SpeechContinue
		}
	default:
		s.quiet = 0
		ev.Type = SpeechContinue
	}
	return ev, nil
}

func (s *energySession) Reset() {
	s.speaking, s.quiet = false, 0
}

func (s *energySession) Close() error {
	s.closed = true
	return nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 1
	}
	return (a + b - 1) / b
}
