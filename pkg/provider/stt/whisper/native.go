package whisper

// NativeProvider links whisper.cpp through its CGO bindings. libwhisper.a and
// whisper.h must be reachable through LIBRARY_PATH and C_INCLUDE_PATH at
// build time.

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/privanote/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeConfig tunes in-process inference.
type NativeConfig struct {
	// Threads is the CPU thread count per inference. Zero keeps the library
	// default.
	Threads uint

	// Language is used when a request carries none. Defaults to "auto".
	Language string
}

// NativeProvider runs a ggml model inside the process. The model is shared;
// each Transcribe call creates its own whisper context, so calls may run
// concurrently.
type NativeProvider struct {
	model whisperlib.Model
	cfg   NativeConfig
}

// NewNative loads the model file at modelPath. Close releases it.
func NewNative(modelPath string, cfg NativeConfig) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{model: model, cfg: cfg}, nil
}

// Languages lists the language codes the loaded model knows.
func (p *NativeProvider) Languages() []string { return p.model.Languages() }

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe runs inference over samples. A cancelled ctx stops the run
// before the encoder starts; once inference is inside the C library it runs to
// completion and the result is discarded.
func (p *NativeProvider) Transcribe(ctx context.Context, samples []float32, cfg stt.Config) ([]stt.Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: new context: %w", err)
	}
	lang := cmp.Or(cfg.Language, p.cfg.Language)
	if err := wctx.SetLanguage(lang); err != nil {
		slog.WarnContext(ctx, "whisper: language rejected, detecting instead", "language", lang, "err", err)
	}
	if p.cfg.Threads > 0 {
		wctx.SetThreads(p.cfg.Threads)
	}

	var c collector
	proceed := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, proceed, c.add, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return c.segs, nil
}

// collector turns whisper segments into stt segments, dropping empty text and
// non-speech markers such as "[BLANK_AUDIO]".
type collector struct {
	segs []stt.Segment
}

func (c *collector) add(s whisperlib.Segment) {
	text := strings.TrimSpace(s.Text)
	if text == "" || isNonSpeech(text) {
		return
	}
	c.segs = append(c.segs, stt.Segment{Start: s.Start, End: s.End, Text: text})
}
