// Package registry enumerates the analysis backends that can serve a request
// right now.
//
// The cloud backend is available when a credential is configured. The local
// backends are probed over the network: an Ollama daemon through
// GET /api/tags and an OpenAI-compatible server through GET /v1/models. The
// outcome of the latest probe is kept so the analysis router can decide
// without probing again. The rule-based fallback is always available and
// always listed last.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/privanote/internal/observe"
	"github.com/MrWong99/privanote/internal/resilience"
	"github.com/MrWong99/privanote/pkg/types"
)

// DefaultProbeTimeout bounds a single local probe.
const DefaultProbeTimeout = 10 * time.Second

// ModelLister lists the models a backend currently serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// BreakerSource exposes the circuit breaker state of each backend.
type BreakerSource interface {
	Breaker(id types.ProviderID) (resilience.Snapshot, bool)
}

// Descriptor describes one analysis backend.
type Descriptor struct {
	ID          types.ProviderID     `json:"id"`
	DisplayName string               `json:"display_name"`
	Description string               `json:"description"`
	PrivacyNote string               `json:"privacy_note"`
	Available   bool                 `json:"available"`
	Models      []string             `json:"models"`
	Note        string               `json:"note,omitempty"`
	Circuit     *resilience.Snapshot `json:"circuit,omitempty"`
}

// ProbeResult is the outcome of probing one backend.
type ProbeResult struct {
	ID     types.ProviderID `json:"id"`
	OK     bool             `json:"ok"`
	Models []string         `json:"models"`
	Err    string           `json:"error,omitempty"`
	At     time.Time        `json:"at"`
}

type staticInfo struct {
	description string
	privacy     string
}

var static = map[types.ProviderID]staticInfo{
	types.ProviderOpenAI: {
		description: "Cloud analysis with OpenAI chat models.",
		privacy:     "The transcript is sent to OpenAI's servers.",
	},
	types.ProviderOllama: {
		description: "Local analysis with a model served by Ollama.",
		privacy:     "The transcript never leaves this machine.",
	},
	types.ProviderLMStudio: {
		description: "Local analysis with an OpenAI-compatible server such as LM Studio.",
		privacy:     "The transcript never leaves this machine.",
	},
	types.ProviderFallback: {
		description: "Keyword-based analysis without a language model.",
		privacy:     "No data leaves the process.",
	},
}

type localBackend struct {
	lister ModelLister
	model  string
}

// Option configures a [Registry].
type Option func(*Registry)

// WithCloud records whether the cloud credential is present and which model
// is configured.
func WithCloud(configured bool, model string) Option {
	return func(r *Registry) {
		r.cloudConfigured = configured
		r.cloudModel = model
	}
}

// WithLocal registers a local backend probed through lister.
func WithLocal(id types.ProviderID, configuredModel string, lister ModelLister) Option {
	return func(r *Registry) {
		r.locals[id] = &localBackend{lister: lister, model: configuredModel}
	}
}

// WithBreakers attaches the circuit breaker states shown in descriptors.
func WithBreakers(b BreakerSource) Option {
	return func(r *Registry) { r.breakers = b }
}

// WithProbeTimeout overrides [DefaultProbeTimeout].
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry tracks backend availability. It is safe for concurrent use.
type Registry struct {
	cloudConfigured bool
	cloudModel      string
	locals          map[types.ProviderID]*localBackend
	breakers        BreakerSource
	timeout         time.Duration
	metrics         *observe.Metrics
	now             func() time.Time

	mu   sync.RWMutex
	last map[types.ProviderID]ProbeResult
}

// New creates a Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		locals:  map[types.ProviderID]*localBackend{},
		timeout: DefaultProbeTimeout,
		now:     time.Now,
		last:    map[types.ProviderID]ProbeResult{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// ListAvailable probes every local backend concurrently and returns one
// descriptor per backend in preference order. The fallback is always last
// and always available.
func (r *Registry) ListAvailable(ctx context.Context) []Descriptor {
	ctx, span := observe.StartSpan(ctx, "registry.list")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	for id := range r.locals {
		g.Go(func() error {
			r.Probe(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	r.Probe(ctx, types.ProviderOpenAI)
	r.Probe(ctx, types.ProviderFallback)

	out := make([]Descriptor, 0, len(types.Providers))
	for _, id := range types.Providers {
		if id.IsLocal() {
			if _, ok := r.locals[id]; !ok {
				continue
			}
		}
		out = append(out, r.describe(id))
	}
	return out
}

// Probe checks a single backend and records the outcome.
func (r *Registry) Probe(ctx context.Context, id types.ProviderID) ProbeResult {
	res := ProbeResult{ID: id, At: r.now(), Models: []string{}}
	switch id {
	case types.ProviderOpenAI:
		res.OK = r.cloudConfigured
		if r.cloudModel != "" {
			res.Models = []string{r.cloudModel}
		}
		if !res.OK {
			res.Err = "no API key configured"
		}
	case types.ProviderFallback:
		res.OK = true
	default:
		b, ok := r.locals[id]
		if !ok {
			res.Err = "backend not configured"
			break
		}
		res = r.probeLocal(ctx, id, b)
	}

	r.mu.Lock()
	r.last[id] = res
	r.mu.Unlock()
	return res
}

func (r *Registry) probeLocal(ctx context.Context, id types.ProviderID, b *localBackend) ProbeResult {
	ctx, span := observe.StartSpan(ctx, "registry.probe",
		trace.WithAttributes(attribute.String("provider", string(id))))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := ProbeResult{ID: id, At: r.now(), Models: []string{}}
	models, err := b.lister.ListModels(ctx)
	switch {
	case err != nil:
		res.Err = err.Error()
	case len(models) == 0:
		res.Err = "no models loaded"
	default:
		res.OK = true
		res.Models = models
	}

	status := "ok"
	if !res.OK {
		status = "error"
		observe.Logger(ctx).Debug("registry: probe failed", "provider", id, "err", res.Err)
	}
	r.metrics.RecordProviderRequest(ctx, string(id), "probe", status)
	return res
}

// LastProbe returns the most recent probe outcome for id.
func (r *Registry) LastProbe(id types.ProviderID) (ProbeResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.last[id]
	return res, ok
}

// LastProbeOK reports whether the most recent probe of id succeeded.
func (r *Registry) LastProbeOK(id types.ProviderID) bool {
	res, ok := r.LastProbe(id)
	return ok && res.OK
}

// ResolveModel returns the model to request from id: the configured model
// when the backend serves it, else the first served model. substituted is
// true in the second case. Without a successful probe it returns the
// configured model unchanged.
func (r *Registry) ResolveModel(id types.ProviderID) (model string, substituted bool) {
	configured := ""
	if b, ok := r.locals[id]; ok {
		configured = b.model
	} else if id == types.ProviderOpenAI {
		configured = r.cloudModel
	}

	res, ok := r.LastProbe(id)
	if !ok || !res.OK || len(res.Models) == 0 || !id.IsLocal() {
		return configured, false
	}
	if configured != "" && servesModel(res.Models, configured) {
		return configured, false
	}
	return res.Models[0], configured != ""
}

// servesModel matches a configured name against listed ones. Ollama lists
// untagged models with an implicit ":latest" suffix.
func servesModel(models []string, want string) bool {
	return slices.ContainsFunc(models, func(m string) bool {
		return m == want || m == want+":latest" || strings.TrimSuffix(m, ":latest") == want
	})
}

func (r *Registry) describe(id types.ProviderID) Descriptor {
	d := Descriptor{
		ID:          id,
		DisplayName: id.DisplayName(),
		Description: static[id].description,
		PrivacyNote: static[id].privacy,
		Models:      []string{},
	}

	res, probed := r.LastProbe(id)
	switch {
	case id == types.ProviderFallback:
		d.Available = true
	case !probed:
		d.Note = "not probed yet"
	default:
		d.Available = res.OK
		d.Models = slices.Clone(res.Models)
		if !res.OK {
			d.Note = res.Err
		} else if model, substituted := r.ResolveModel(id); substituted {
			d.Note = fmt.Sprintf("configured model %q is not loaded; %q will be used", r.locals[id].model, model)
		}
	}

	if r.breakers != nil {
		if snap, ok := r.breakers.Breaker(id); ok {
			d.Circuit = &snap
			if d.Available && snap.State == resilience.StateOpen {
				d.Note = strings.TrimSpace(d.Note + " circuit open after repeated failures")
			}
		}
	}
	return d
}
