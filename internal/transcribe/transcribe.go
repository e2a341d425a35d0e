// Package transcribe turns a canonical 16 kHz mono WAV recording into text.
//
// The [Service] owns the speech-to-text model. It runs voice-activity
// detection first so that silence never reaches the model, transcribes every
// speech region separately and normalizes the joined text with [Clean].
// Models can be swapped at runtime with [Service.SetModelSize]; a failed swap
// keeps the previous model.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/privanote/internal/observe"
	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/provider/stt"
	"github.com/MrWong99/privanote/pkg/provider/vad"
)

var (
	// ErrNotInitialized is returned when no model has been loaded.
	ErrNotInitialized = errors.New("transcribe: model not initialized")

	// ErrEmptySpeech is returned when a recording contains no recognisable
	// speech.
	ErrEmptySpeech = errors.New("transcribe: no speech detected")

	// ErrInvalidModelSize is returned by SetModelSize for unknown sizes.
	ErrInvalidModelSize = errors.New("transcribe: invalid model size")

	// ErrUnsupportedLanguage is returned for language hints outside
	// [SupportedLanguages].
	ErrUnsupportedLanguage = errors.New("transcribe: unsupported language")
)

// ModelSize names a whisper model variant.
type ModelSize string

const (
	SizeTiny   ModelSize = "tiny"
	SizeBase   ModelSize = "base"
	SizeSmall  ModelSize = "small"
	SizeMedium ModelSize = "medium"
	SizeLarge  ModelSize = "large"
)

// ModelSizes lists the accepted sizes from smallest to largest.
var ModelSizes = []ModelSize{SizeTiny, SizeBase, SizeSmall, SizeMedium, SizeLarge}

// ParseModelSize validates s. Unknown sizes yield [ErrInvalidModelSize].
func ParseModelSize(s string) (ModelSize, error) {
	size := ModelSize(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(ModelSizes, size) {
		return "", fmt.Errorf("%w: %q (want one of tiny, base, small, medium, large)", ErrInvalidModelSize, s)
	}
	return size, nil
}

// FileName returns the whisper.cpp model file for the size.
func (s ModelSize) FileName() string { return "ggml-" + string(s) + ".bin" }

// supportedLanguages is the set of ISO 639-1 hints accepted besides "auto".
var supportedLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh",
	"ar", "hi", "tr", "pl", "nl", "sv", "da", "no", "fi",
}

// SupportedLanguages returns the accepted language hints.
func SupportedLanguages() []string { return slices.Clone(supportedLanguages) }

// Loader creates a provider serving the model of the given size.
type Loader func(ctx context.Context, size ModelSize) (stt.Provider, error)

// Segment is one recognised stretch of speech with times relative to the
// start of the recording.
type Segment struct {
	Start    time.Duration `json:"start"`
	End      time.Duration `json:"end"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	Size               ModelSize `json:"size"`
	Initialized        bool      `json:"initialized"`
	Backend            string    `json:"backend"`
	SupportedLanguages []string  `json:"supported_languages"`
}

// Option configures a [Service].
type Option func(*Service)

// WithVAD overrides the voice-activity engine and its configuration.
func WithVAD(eng vad.Engine, cfg vad.Config) Option {
	return func(s *Service) {
		s.engine = eng
		s.vadCfg = cfg
	}
}

// WithBackendName sets the backend label reported by ModelInfo.
func WithBackendName(name string) Option {
	return func(s *Service) { s.backend = name }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service transcribes recordings. It is safe for concurrent use; model swaps
// wait for running transcriptions to finish.
type Service struct {
	loader  Loader
	backend string
	engine  vad.Engine
	vadCfg  vad.Config
	metrics *observe.Metrics

	mu       sync.RWMutex
	provider stt.Provider
	size     ModelSize
}

// New creates a Service that loads models through loader. No model is loaded
// until [Service.SetModelSize] is called.
func New(loader Loader, opts ...Option) *Service {
	s := &Service{
		loader: loader,
		engine: &vad.EnergyEngine{},
		vadCfg: vad.DefaultConfig(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetModelSize loads the model of the given size and replaces the current
// one. Unknown sizes yield [ErrInvalidModelSize]. On any failure the previous
// model stays active.
func (s *Service) SetModelSize(ctx context.Context, size string) error {
	ms, err := ParseModelSize(size)
	if err != nil {
		return err
	}
	if s.loader == nil {
		return fmt.Errorf("transcribe: load %s: %w", ms, ErrNotInitialized)
	}
	p, err := s.loader(ctx, ms)
	if err != nil {
		return fmt.Errorf("transcribe: load %s model: %w", ms, err)
	}

	s.mu.Lock()
	old := s.provider
	s.provider, s.size = p, ms
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			observe.Logger(ctx).Warn("transcribe: closing previous model", "err", err)
		}
	}
	observe.Logger(ctx).Info("transcribe: model loaded", "size", ms, "backend", s.backend)
	return nil
}

// ModelInfo reports the loaded model.
func (s *Service) ModelInfo() ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelInfo{
		Size:               s.size,
		Initialized:        s.provider != nil,
		Backend:            s.backend,
		SupportedLanguages: SupportedLanguages(),
	}
}

// Close releases the loaded model.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return nil
	}
	err := s.provider.Close()
	s.provider = nil
	return err
}

// Transcribe returns the cleaned transcript of the canonical WAV at path.
// language is an ISO 639-1 hint; empty or "auto" detects it.
func (s *Service) Transcribe(ctx context.Context, path, language string) (string, error) {
	segs, err := s.TranscribeSegments(ctx, path, language)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(segs))
	for i, seg := range segs {
		parts[i] = seg.Text
	}
	text := Clean(strings.Join(parts, " "))
	if text == "" {
		return "", ErrEmptySpeech
	}
	return text, nil
}

// TranscribeSegments returns the time-stamped segments of the recording at
// path. Silence is skipped by voice-activity detection; a recording without
// speech yields [ErrEmptySpeech].
func (s *Service) TranscribeSegments(ctx context.Context, path, language string) ([]Segment, error) {
	lang, err := normalizeLanguage(language)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "transcribe",
		trace.WithAttributes(attribute.String("language", lang)))
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.provider == nil {
		return nil, ErrNotInitialized
	}
	defer observe.RecordStage(ctx, s.metrics.TranscribeDuration, start, observe.Attr("backend", s.backend))

	samples, err := loadSamples(path)
	if err != nil {
		return nil, err
	}

	regions, err := vad.Detect(ctx, s.engine, samples, s.vadCfg)
	if err != nil {
		return nil, fmt.Errorf("transcribe: voice activity: %w", err)
	}
	span.SetAttributes(attribute.Int("vad.regions", len(regions)))
	if len(regions) == 0 {
		return nil, ErrEmptySpeech
	}

	var out []Segment
	for _, r := range regions {
		offset := r.Offset(s.vadCfg.SampleRate)
		segs, err := s.provider.Transcribe(ctx, samples[r.Start:r.End], stt.Config{Language: lang})
		if err != nil {
			s.metrics.RecordProviderError(ctx, s.backend, "stt")
			return nil, fmt.Errorf("transcribe: region at %s: %w", offset, err)
		}
		for _, seg := range segs {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			out = append(out, Segment{
				Start:    offset + seg.Start,
				End:      offset + seg.End,
				Text:     text,
				Duration: seg.End - seg.Start,
			})
		}
	}
	s.metrics.RecordProviderRequest(ctx, s.backend, "stt", "ok")
	if len(out) == 0 {
		return nil, ErrEmptySpeech
	}
	return out, nil
}

// loadSamples decodes the WAV at path into canonical float samples.
func loadSamples(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcribe: open %s: %w", path, err)
	}
	defer f.Close()

	pcm, hdr, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("transcribe: decode %s: %w", path, errors.Join(audio.ErrAudioDecode, err))
	}
	if hdr.Format != audio.Canonical {
		pcm = audio.ToCanonical(pcm, hdr.Format)
	}
	return audio.PCMToFloat32(pcm), nil
}

func normalizeLanguage(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" || lang == "auto" {
		return "auto", nil
	}
	if !slices.Contains(supportedLanguages, lang) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	return lang, nil
}
