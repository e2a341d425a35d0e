// Package analysis turns a meeting transcript into a structured
// [types.AnalysisResult].
//
// The [Router] dispatches one logical "analyze" call to one of four backends:
// the OpenAI cloud API, a local Ollama daemon, a local OpenAI-compatible
// server (LM Studio) or the rule-based [Fallback]. Whatever happens on the
// way (missing credentials, failed probes, timeouts, HTTP errors, malformed
// JSON, panics) the caller always receives a normalized result. Backend
// failures are logged and counted but never returned.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/privanote/internal/observe"
	"github.com/MrWong99/privanote/internal/resilience"
	"github.com/MrWong99/privanote/pkg/provider/llm"
	"github.com/MrWong99/privanote/pkg/types"
)

// ErrBackendCall wraps every failure of a model backend. The router absorbs
// it by degrading to the fallback analyzer; it never reaches callers of
// [Router.Analyze].
var ErrBackendCall = errors.New("analysis: backend call failed")

// Default per-call timeouts.
const (
	DefaultCloudTimeout = 60 * time.Second
	DefaultLocalTimeout = 120 * time.Second
)

// Default confidences used when a backend omits its self-assessment.
var defaultConfidence = map[types.ProviderID]float64{
	types.ProviderOpenAI:   0.85,
	types.ProviderOllama:   0.8,
	types.ProviderLMStudio: 0.75,
	types.ProviderFallback: FallbackConfidence,
}

// Availability reports the outcome of the latest probe of each local backend
// and the model to use for it. The provider registry implements it.
type Availability interface {
	// LastProbeOK reports whether the most recent probe of id succeeded.
	LastProbeOK(id types.ProviderID) bool

	// ResolveModel returns the model to request from id and whether it
	// differs from the configured one. An empty model means "use the
	// configured model".
	ResolveModel(id types.ProviderID) (model string, substituted bool)
}

// LocalFactory builds a client for a local backend serving model.
type LocalFactory func(model string) (llm.Provider, error)

// ─── Options ──────────────────────────────────────────────────────────────────

// Option configures a [Router].
type Option func(*Router)

// WithCloud sets the cloud backend client. Without it the cloud backend is
// treated as unavailable.
func WithCloud(p llm.Provider) Option {
	return func(r *Router) { r.cloud = p }
}

// WithLocal registers a local backend. configuredModel is the model from the
// configuration; factory builds clients for it or for a substitute.
func WithLocal(id types.ProviderID, configuredModel string, factory LocalFactory) Option {
	return func(r *Router) {
		r.local[id] = &localBackend{configured: configuredModel, factory: factory, clients: map[string]llm.Provider{}}
	}
}

// WithAvailability sets the probe source for the local backends. Without it
// local backends are never selected.
func WithAvailability(a Availability) Option {
	return func(r *Router) { r.avail = a }
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithTimeouts overrides the per-call timeouts. Zero values keep the default.
func WithTimeouts(cloud, local time.Duration) Option {
	return func(r *Router) {
		if cloud > 0 {
			r.cloudTimeout = cloud
		}
		if local > 0 {
			r.localTimeout = local
		}
	}
}

// WithBreaker overrides the circuit breaker tuning shared by all backends.
func WithBreaker(maxFailures int, resetTimeout time.Duration) Option {
	return func(r *Router) {
		r.breakerCfg.MaxFailures = maxFailures
		r.breakerCfg.ResetTimeout = resetTimeout
	}
}

// ─── Router ───────────────────────────────────────────────────────────────────

// Router dispatches analysis requests. It is safe for concurrent use.
type Router struct {
	cloud        llm.Provider
	local        map[types.ProviderID]*localBackend
	avail        Availability
	metrics      *observe.Metrics
	cloudTimeout time.Duration
	localTimeout time.Duration
	breakerCfg   resilience.CircuitBreakerConfig
	breakers     map[types.ProviderID]*resilience.CircuitBreaker
}

type localBackend struct {
	configured string
	factory    LocalFactory

	mu      sync.Mutex
	clients map[string]llm.Provider
}

// client returns a cached client for model, creating it on first use.
func (b *localBackend) client(model string) (llm.Provider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[model]; ok {
		return c, nil
	}
	c, err := b.factory(model)
	if err != nil {
		return nil, err
	}
	b.clients[model] = c
	return c, nil
}

// New creates a Router. With no options every request is answered by the
// fallback analyzer.
func New(opts ...Option) *Router {
	r := &Router{
		local:        map[types.ProviderID]*localBackend{},
		cloudTimeout: DefaultCloudTimeout,
		localTimeout: DefaultLocalTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}

	r.breakers = make(map[types.ProviderID]*resilience.CircuitBreaker, 3)
	for _, id := range []types.ProviderID{types.ProviderOpenAI, types.ProviderOllama, types.ProviderLMStudio} {
		cfg := r.breakerCfg
		cfg.Name = "analysis." + string(id)
		cfg.OnStateChange = func(name string, from, to resilience.State) {
			r.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		}
		r.breakers[id] = resilience.NewCircuitBreaker(cfg)
	}
	return r
}

// CloudConfigured reports whether a cloud client was supplied.
func (r *Router) CloudConfigured() bool { return r.cloud != nil }

// Breaker returns the state of the circuit breaker guarding id. It reports
// false for the fallback, which has no breaker.
func (r *Router) Breaker(id types.ProviderID) (resilience.Snapshot, bool) {
	cb, ok := r.breakers[id]
	if !ok {
		return resilience.Snapshot{}, false
	}
	return cb.Snapshot(), true
}

// target is a backend chosen for one call.
type target struct {
	id          types.ProviderID
	client      llm.Provider
	model       string
	configured  string
	substituted bool
}

// route applies the dispatch table. When no backend can serve id it returns
// a reason for the fallback.
func (r *Router) route(id types.ProviderID) (target, string) {
	switch id {
	case types.ProviderFallback:
		return target{}, ""
	case types.ProviderOpenAI:
		if r.cloud == nil {
			return target{}, "cloud_unconfigured"
		}
		return target{id: id, client: r.cloud, model: r.cloud.Model()}, ""
	case types.ProviderOllama, types.ProviderLMStudio:
		b, ok := r.local[id]
		if !ok {
			return target{}, "local_unconfigured"
		}
		if r.avail == nil || !r.avail.LastProbeOK(id) {
			return target{}, "probe_failed"
		}
		model, substituted := r.avail.ResolveModel(id)
		if model == "" {
			model, substituted = b.configured, false
		}
		c, err := b.client(model)
		if err != nil {
			return target{}, "client_error"
		}
		return target{id: id, client: c, model: model, configured: b.configured, substituted: substituted}, ""
	default:
		return target{}, "unknown_provider"
	}
}

// Analyze produces an analysis of transcript with the backend id. It never
// fails: any backend problem yields the result of [Fallback] for the same
// transcript.
func (r *Router) Analyze(ctx context.Context, transcript string, id types.ProviderID) (result types.AnalysisResult) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "analysis.analyze",
		trace.WithAttributes(attribute.String("provider.requested", string(id))))
	defer func() {
		span.SetAttributes(attribute.String("provider.used", string(result.Provider)))
		span.End()
		observe.RecordStage(ctx, r.metrics.AnalyzeDuration, start, observe.Attr("provider", string(result.Provider)))
	}()

	t, reason := r.route(id)
	if t.client == nil {
		if reason != "" {
			r.degrade(ctx, id, reason, nil)
		}
		return Fallback(transcript)
	}

	res, err := r.analyzeWith(ctx, t, transcript)
	if err != nil {
		observe.FailSpan(span, err)
		r.degrade(ctx, id, failureReason(err), err)
		return Fallback(transcript)
	}
	return res
}

// analyzeWith runs the backend sub-protocol against t. Panics in the backend
// are converted to errors.
func (r *Router) analyzeWith(ctx context.Context, t target, transcript string) (res types.AnalysisResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrBackendCall, t.id, p)
		}
	}()

	cloud := t.id == types.ProviderOpenAI
	timeout := r.localTimeout
	if cloud {
		timeout = r.cloudTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := analysisRequest(transcript, cloud)
	res, err = resilience.Do(callCtx, r.breakers[t.id], func(ctx context.Context) (types.AnalysisResult, error) {
		content, err := complete(ctx, t.client, req)
		if err != nil {
			return types.AnalysisResult{}, err
		}
		return parseReply(content, defaultConfidence[t.id])
	})
	if err != nil {
		r.metrics.RecordProviderRequest(ctx, string(t.id), "analyze", "error")
		r.metrics.RecordProviderError(ctx, string(t.id), "analyze")
		return types.AnalysisResult{}, fmt.Errorf("%w: %s: %w", ErrBackendCall, t.id, err)
	}
	r.metrics.RecordProviderRequest(ctx, string(t.id), "analyze", "ok")

	res.Provider = t.id
	res.ProviderLabel = t.id.DisplayName()
	if t.id.IsLocal() {
		res.ProviderLabel += " (" + t.model + ")"
	}
	if t.substituted {
		res.Warning = fmt.Sprintf("configured model %q is not loaded; used %q instead", t.configured, t.model)
		observe.Logger(ctx).Warn("analysis: model substituted",
			"provider", t.id, "configured", t.configured, "used", t.model)
	}
	return res, nil
}

// complete calls the backend and returns the trimmed reply text. A panic in
// the client is returned as an error so the breaker records it.
func complete(ctx context.Context, c llm.Provider, req llm.CompletionRequest) (content string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", errors.New("empty reply")
	}
	return strings.TrimSpace(resp.Content), nil
}

func (r *Router) degrade(ctx context.Context, requested types.ProviderID, reason string, err error) {
	r.metrics.RecordFallback(ctx, reason)
	attrs := []any{"requested", requested, "reason", reason}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	observe.Logger(ctx).Warn("analysis: using fallback analyzer", attrs...)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errNoJSON):
		return "parse_error"
	case errors.Is(err, llm.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrModelNotFound):
		return "model_not_found"
	case errors.Is(err, llm.ErrUnreachable):
		return "unreachable"
	default:
		return "backend_error"
	}
}

// Summarize returns a summary of at most maxWords words produced by the
// backend id. Without a usable backend, or when the call fails, it falls back
// to [SimpleSummary].
func (r *Router) Summarize(ctx context.Context, transcript string, maxWords int, id types.ProviderID) (summary string) {
	t, _ := r.route(id)
	if t.client == nil {
		return SimpleSummary(transcript, maxWords)
	}
	defer func() {
		if p := recover(); p != nil {
			observe.Logger(ctx).Warn("analysis: summary backend panicked", "provider", t.id, "panic", p)
			summary = SimpleSummary(transcript, maxWords)
		}
	}()

	timeout := r.localTimeout
	if t.id == types.ProviderOpenAI {
		timeout = r.cloudTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := summaryRequest(transcript, maxWords)
	content, err := resilience.Do(callCtx, r.breakers[t.id], func(ctx context.Context) (string, error) {
		return complete(ctx, t.client, req)
	})
	if err != nil {
		r.metrics.RecordProviderRequest(ctx, string(t.id), "summarize", "error")
		observe.Logger(ctx).Warn("analysis: summary failed, using simple summary", "provider", t.id, "err", err)
		return SimpleSummary(transcript, maxWords)
	}
	r.metrics.RecordProviderRequest(ctx, string(t.id), "summarize", "ok")
	return content
}
