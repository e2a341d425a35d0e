// Package app wires all PrivaNote subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// meeting store, the analysis backends, the provider registry, the
// transcriber and the processing pipeline; Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithStore,
// WithBackendRegistry, WithLoader, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/privanote/internal/analysis"
	"github.com/MrWong99/privanote/internal/config"
	"github.com/MrWong99/privanote/internal/health"
	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/internal/observe"
	"github.com/MrWong99/privanote/internal/pipeline"
	"github.com/MrWong99/privanote/internal/registry"
	"github.com/MrWong99/privanote/internal/resilience"
	"github.com/MrWong99/privanote/internal/transcribe"
	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/provider/llm"
	"github.com/MrWong99/privanote/pkg/provider/llm/openai"
	"github.com/MrWong99/privanote/pkg/provider/vad"
	"github.com/MrWong99/privanote/pkg/types"
)

// lmStudioKey is sent to OpenAI-compatible local servers that ignore the
// credential but reject an empty one.
const lmStudioKey = "lm-studio"

// App owns all subsystem lifetimes and the state shared by the outer
// surfaces: the selected analysis provider and the default language.
type App struct {
	cfg      *config.Config
	backends *config.Registry
	metrics  *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	store       meeting.Store
	router      *analysis.Router
	registry    *registry.Registry
	loader      transcribe.Loader
	transcriber *transcribe.Service
	converter   audio.Converter
	ingestor    *audio.Ingestor
	pipeline    *pipeline.Pipeline
	httpClient  *http.Client

	mu       sync.RWMutex
	provider types.ProviderID
	language string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a meeting store instead of creating one from config.
func WithStore(s meeting.Store) Option {
	return func(a *App) { a.store = s }
}

// WithBackendRegistry replaces the registry of built-in LLM and STT factories.
func WithBackendRegistry(r *config.Registry) Option {
	return func(a *App) { a.backends = r }
}

// WithLoader injects the transcription model loader instead of creating one
// from the configured backend.
func WithLoader(l transcribe.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithConverter injects the converter used for non-WAV recordings.
func WithConverter(c audio.Converter) Option {
	return func(a *App) { a.converter = c }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHTTPClient sets the client used to probe local model servers.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. A backend that cannot
// be built is logged and left out; requests for it degrade to the fallback
// analyzer. A transcription model that cannot be loaded leaves the
// transcriber uninitialised until a model size is set successfully.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.backends == nil {
		a.backends = config.NewRegistry()
		RegisterBuiltins(a.backends)
	}
	if a.httpClient == nil {
		a.httpClient = http.DefaultClient
	}

	provider, err := types.ParseProviderID(cfg.Analysis.Provider)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.provider = provider
	a.language = cfg.Transcription.Language

	// ── 1. Meeting store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Analysis router + provider registry ───────────────────────────
	a.initAnalysis()

	// ── 3. Transcriber ───────────────────────────────────────────────────
	if err := a.initTranscriber(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init transcriber: %w", err)
	}

	// ── 4. Ingestor ──────────────────────────────────────────────────────
	if a.converter == nil {
		a.converter = &audio.FFmpeg{FFmpegPath: cfg.Audio.FFmpegPath, FFprobePath: cfg.Audio.FFprobePath}
	}
	a.ingestor = audio.NewIngestor(audio.WithConverter(a.converter), audio.WithTempDir(cfg.Audio.TempDir))

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	a.pipeline = pipeline.New(a.ingestor, a.transcriber, a.router, a.store,
		pipeline.WithProber(a.registry),
		pipeline.WithMetrics(a.metrics),
	)

	slog.Info("application initialised",
		"provider", a.provider,
		"cloud_configured", a.router.CloudConfigured(),
		"transcriber", a.transcriber.ModelInfo().Initialized,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects the PostgreSQL store when a DSN is configured and falls
// back to an in-memory store otherwise. The result is wrapped so the stored
// meetings gauge tracks it.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.Storage.PostgresDSN
		if dsn == "" {
			slog.Info("no postgres_dsn configured, meetings are kept in memory")
			a.store = meeting.NewMemStore()
		} else {
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			pg := meeting.NewPostgresStore(pool)
			if err := pg.Migrate(ctx); err != nil {
				pool.Close()
				return err
			}
			a.store = pg
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
		}
	}

	observed, err := meeting.Observed(ctx, a.store, a.metrics)
	if err != nil {
		a.closeAll()
		return err
	}
	a.store = observed
	return nil
}

// initAnalysis builds the analysis router and the provider registry in front
// of it. The registry reports breaker state through the App so neither needs
// the other at construction time.
func (a *App) initAnalysis() {
	ac := a.cfg.Analysis

	routerOpts := []analysis.Option{
		analysis.WithMetrics(a.metrics),
		analysis.WithTimeouts(ac.CloudTimeout, ac.LocalTimeout),
		analysis.WithBreaker(ac.Breaker.MaxFailures, ac.Breaker.ResetTimeout),
	}
	regOpts := []registry.Option{
		registry.WithBreakers(a),
		registry.WithProbeTimeout(ac.ProbeTimeout),
		registry.WithMetrics(a.metrics),
	}

	cloudOK := false
	if ac.Cloud.Enabled() && ac.Cloud.APIKey != "" {
		cloud, err := a.backends.CreateLLM(ac.Cloud)
		if err != nil {
			slog.Warn("cloud backend unavailable", "name", ac.Cloud.Name, "err", err)
		} else {
			routerOpts = append(routerOpts, analysis.WithCloud(cloud))
			cloudOK = true
		}
	}
	regOpts = append(regOpts, registry.WithCloud(cloudOK, ac.Cloud.Model))

	for _, lb := range []struct {
		id    types.ProviderID
		entry config.ProviderEntry
	}{
		{types.ProviderOllama, ac.Ollama},
		{types.ProviderLMStudio, ac.LMStudio},
	} {
		if !lb.entry.Enabled() {
			continue
		}
		lister, err := a.modelLister(lb.id, lb.entry)
		if err != nil {
			slog.Warn("local backend unavailable", "provider", lb.id, "err", err)
			continue
		}
		routerOpts = append(routerOpts, analysis.WithLocal(lb.id, lb.entry.Model, a.localFactory(lb.entry)))
		regOpts = append(regOpts, registry.WithLocal(lb.id, lb.entry.Model, lister))
	}

	a.registry = registry.New(regOpts...)
	routerOpts = append(routerOpts, analysis.WithAvailability(a.registry))
	a.router = analysis.New(routerOpts...)
}

// localFactory builds clients for entry serving an arbitrary model, so the
// router can switch to a substitute the server actually has loaded.
func (a *App) localFactory(entry config.ProviderEntry) analysis.LocalFactory {
	return func(model string) (llm.Provider, error) {
		e := entry
		e.Model = model
		return a.backends.CreateLLM(e)
	}
}

// modelLister returns the probe used for a local backend: the Ollama tags
// endpoint, or the models endpoint of an OpenAI-compatible server.
func (a *App) modelLister(id types.ProviderID, entry config.ProviderEntry) (registry.ModelLister, error) {
	if entry.BaseURL == "" {
		return nil, errors.New("base_url must not be empty")
	}
	if id == types.ProviderOllama {
		return registry.NewOllamaLister(entry.BaseURL, a.httpClient), nil
	}
	key := entry.APIKey
	if key == "" {
		key = lmStudioKey
	}
	return openai.New(key, entry.Model, openai.WithBaseURL(entry.BaseURL), openai.WithMaxRetries(0))
}

// initTranscriber creates the transcription service and loads the
// configured model.
func (a *App) initTranscriber(ctx context.Context) error {
	tc := a.cfg.Transcription
	if a.loader == nil {
		l, err := a.backends.CreateSTT(tc)
		if err != nil {
			return err
		}
		a.loader = l
	}

	vcfg := vad.DefaultConfig()
	vcfg.MinSilenceMs = tc.MinSilenceMs
	vcfg.SpeechPadMs = tc.SpeechPadMs

	a.transcriber = transcribe.New(a.loader,
		transcribe.WithVAD(&vad.EnergyEngine{}, vcfg),
		transcribe.WithBackendName(tc.Backend),
		transcribe.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.transcriber.Close)

	if err := a.transcriber.SetModelSize(ctx, tc.ModelSize); err != nil {
		if errors.Is(err, transcribe.ErrInvalidModelSize) {
			return err
		}
		slog.Warn("transcription model not loaded", "size", tc.ModelSize, "err", err)
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Store returns the meeting store.
func (a *App) Store() meeting.Store { return a.store }

// Router returns the analysis router.
func (a *App) Router() *analysis.Router { return a.router }

// Registry returns the provider registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Transcriber returns the transcription service.
func (a *App) Transcriber() *transcribe.Service { return a.transcriber }

// Ingestor returns the audio ingestor.
func (a *App) Ingestor() *audio.Ingestor { return a.ingestor }

// Metrics returns the metrics instruments shared by all subsystems.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Breaker implements [registry.BreakerSource] by delegating to the router.
func (a *App) Breaker(id types.ProviderID) (resilience.Snapshot, bool) {
	if a.router == nil {
		return resilience.Snapshot{}, false
	}
	return a.router.Breaker(id)
}

// Provider returns the analysis backend used when a request names none.
func (a *App) Provider() types.ProviderID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.provider
}

// SetProvider changes the default analysis backend.
func (a *App) SetProvider(id types.ProviderID) error {
	if !id.Valid() {
		return fmt.Errorf("app: unknown provider %q", id)
	}
	a.mu.Lock()
	a.provider = id
	a.mu.Unlock()
	slog.Info("default provider changed", "provider", id)
	return nil
}

// Language returns the default transcription language hint.
func (a *App) Language() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.language
}

// Process runs the pipeline for req, filling the provider and language from
// the App's defaults when req leaves them empty.
func (a *App) Process(ctx context.Context, req pipeline.Request) (meeting.Meeting, error) {
	if req.Provider == "" {
		req.Provider = a.Provider()
	}
	if req.Language == "" {
		req.Language = a.Language()
	}
	return a.pipeline.Process(ctx, req)
}

// ApplyConfigDiff applies the settings of next that can change at runtime.
// The log level is owned by the caller's handler and is not touched here.
func (a *App) ApplyConfigDiff(ctx context.Context, next *config.Config, d config.ConfigDiff) error {
	var errs []error
	if d.ProviderChanged {
		id, err := types.ParseProviderID(d.NewProvider)
		if err == nil {
			err = a.SetProvider(id)
		}
		errs = append(errs, err)
	}
	if d.LanguageChanged {
		a.mu.Lock()
		a.language = d.NewLanguage
		a.mu.Unlock()
	}
	if d.ModelSizeChanged {
		errs = append(errs, a.transcriber.SetModelSize(ctx, d.NewModelSize))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: apply config: %w", err)
	}
	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()
	return nil
}

// HealthCheckers returns the readiness checks for the App's dependencies.
func (a *App) HealthCheckers() []health.Checker {
	return []health.Checker{
		{Name: "store", Check: a.store.Ping},
		{Name: "transcriber", Optional: true, Check: func(context.Context) error {
			if !a.transcriber.ModelInfo().Initialized {
				return transcribe.ErrNotInitialized
			}
			return nil
		}},
		{Name: "analysis", Check: func(ctx context.Context) error {
			for _, d := range a.registry.ListAvailable(ctx) {
				if d.Available {
					return nil
				}
			}
			return errors.New("no analysis backend available")
		}},
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every subsystem. It honours ctx's deadline and is safe
// to call more than once; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers collected so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
