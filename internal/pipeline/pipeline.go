// Package pipeline runs a recording through ingest, transcription, analysis
// and storage.
//
// The stages run strictly in order and one recording at a time. Ingestion
// and transcription failures abort the run with a [*StageError] and nothing
// is stored; analysis never fails because the router degrades to the
// rule-based fallback. Temporary audio files are released on every exit
// path.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/internal/observe"
	"github.com/MrWong99/privanote/internal/registry"
	"github.com/MrWong99/privanote/internal/transcribe"
	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/types"
)

// Stage names a pipeline step.
type Stage string

const (
	StageIngest     Stage = "ingest"
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StageSave       Stage = "save"
	StageDone       Stage = "done"
)

// StageError reports the stage a run failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// ProgressFunc receives progress updates. percent runs from 0 to 100. It is
// called synchronously from the pipeline and must not block.
type ProgressFunc func(stage Stage, percent int, message string)

// ─── Collaborators ────────────────────────────────────────────────────────────

// Ingestor validates and normalises a recording.
type Ingestor interface {
	Process(ctx context.Context, path string) (audio.Info, error)
}

// Transcriber turns a canonical WAV file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path, language string) (string, error)
}

// Analyzer produces an analysis for a transcript. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, id types.ProviderID) types.AnalysisResult
}

// Prober refreshes the availability of a backend before it is used.
type Prober interface {
	Probe(ctx context.Context, id types.ProviderID) registry.ProbeResult
}

// ─── Request ──────────────────────────────────────────────────────────────────

// Request describes one recording to process.
type Request struct {
	// Path is the recording on disk. The file is never modified.
	Path string

	Title string
	// Date defaults to the day the run starts.
	Date  string
	Notes string

	// Provider selects the analysis backend.
	Provider types.ProviderID
	// Language is an optional ISO 639-1 hint for the transcriber.
	Language string
	// Source defaults to [types.SourceUploaded].
	Source types.Source

	// Progress, if set, receives stage updates.
	Progress ProgressFunc
}

// ─── Pipeline ─────────────────────────────────────────────────────────────────

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithProber probes local backends before analysis.
func WithProber(p Prober) Option {
	return func(pl *Pipeline) { pl.prober = p }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// Pipeline processes recordings. Concurrent calls to Process are serialised.
type Pipeline struct {
	ingestor    Ingestor
	transcriber Transcriber
	analyzer    Analyzer
	store       meeting.Store
	prober      Prober
	metrics     *observe.Metrics
	now         func() time.Time

	mu sync.Mutex
}

// New creates a Pipeline from its stages.
func New(ing Ingestor, tr Transcriber, an Analyzer, store meeting.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		ingestor:    ing,
		transcriber: tr,
		analyzer:    an,
		store:       store,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Process runs req through every stage and returns the stored meeting.
func (p *Pipeline) Process(ctx context.Context, req Request) (m meeting.Meeting, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Source == "" {
		req.Source = types.SourceUploaded
	}
	progress := req.Progress
	if progress == nil {
		progress = func(Stage, int, string) {}
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("source", string(req.Source)),
		attribute.String("provider", string(req.Provider)),
	))
	log := observe.Logger(ctx).With("source", req.Source, "provider", req.Provider)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			observe.FailSpan(span, err)
			log.Warn("pipeline: run failed", "err", err)
		}
		p.metrics.RecordPipelineRun(ctx, string(req.Source), status)
		span.End()
	}()

	if strings.TrimSpace(req.Title) == "" {
		return meeting.Meeting{}, &StageError{Stage: StageIngest, Err: fmt.Errorf("%w: title is required", meeting.ErrValidation)}
	}
	if req.Date == "" {
		req.Date = p.now().Format(time.DateOnly)
	}
	started := p.now()

	// Ingest.
	progress(StageIngest, 10, "Processing audio file")
	t0 := time.Now()
	info, err := p.ingestor.Process(ctx, req.Path)
	observe.RecordStage(ctx, p.metrics.IngestDuration, t0)
	if err != nil {
		return meeting.Meeting{}, &StageError{Stage: StageIngest, Err: err}
	}
	defer info.Cleanup()
	log.Info("pipeline: audio ingested",
		"duration", info.Duration.Round(time.Second),
		"size_mb", fmt.Sprintf("%.2f", info.FileSizeMB()))

	// Transcribe.
	progress(StageTranscribe, 30, "Transcribing audio")
	transcript, err := p.transcriber.Transcribe(ctx, info.CanonicalPath, req.Language)
	if err != nil {
		return meeting.Meeting{}, &StageError{Stage: StageTranscribe, Err: err}
	}
	if strings.TrimSpace(transcript) == "" {
		return meeting.Meeting{}, &StageError{Stage: StageTranscribe, Err: fmt.Errorf("%w: transcriber returned blank text", transcribe.ErrEmptySpeech)}
	}

	// Analyze.
	progress(StageAnalyze, 60, "Analyzing transcript")
	if req.Provider.IsLocal() && p.prober != nil {
		if r := p.prober.Probe(ctx, req.Provider); !r.OK {
			log.Info("pipeline: local backend unavailable", "err", r.Err)
		}
	}
	analysis := p.analyzer.Analyze(ctx, transcript, req.Provider)

	// Save.
	progress(StageSave, 90, "Saving meeting")
	m = meeting.Meeting{
		Title:      strings.TrimSpace(req.Title),
		Date:       req.Date,
		Notes:      req.Notes,
		Duration:   info.DurationMinutes(),
		FileSize:   info.FileSizeMB(),
		Transcript: transcript,
		Analysis:   &analysis,
		CreatedAt:  started,
		Source:     req.Source,
	}
	id, err := p.store.Save(ctx, m)
	if err != nil {
		return meeting.Meeting{}, &StageError{Stage: StageSave, Err: err}
	}
	if m, err = p.store.Get(ctx, id); err != nil {
		return meeting.Meeting{}, &StageError{Stage: StageSave, Err: err}
	}

	progress(StageDone, 100, "Processing complete")
	log.Info("pipeline: meeting stored", "id", id, "analysis", analysis.ProviderLabel)
	return m, nil
}
