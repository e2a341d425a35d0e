// Package observe provides application-wide observability primitives for
// PrivaNote: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all PrivaNote metrics.
const meterName = "github.com/MrWong99/privanote"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// IngestDuration tracks audio decoding and normalisation time.
	IngestDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text time for a whole recording.
	TranscribeDuration metric.Float64Histogram

	// AnalyzeDuration tracks transcript analysis time. Use with attribute:
	//   attribute.String("provider", ...): the backend that produced the result.
	AnalyzeDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// FallbackAnalyses counts analyses answered by the rule-based fallback.
	// Use with attribute: attribute.String("reason", ...)
	FallbackAnalyses metric.Int64Counter

	// PipelineRuns counts processed recordings. Use with attributes:
	//   attribute.String("source", ...), attribute.String("status", ...)
	PipelineRuns metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// MeetingsStored tracks the number of meetings held by the store.
	MeetingsStored metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets are histogram boundaries in seconds for pipeline stages,
// which range from sub-second decoding to multi-minute transcription.
var stageBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// instruments creates instruments on one meter and collects their errors.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) stage(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...))
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	met := &Metrics{
		IngestDuration:     in.stage("privanote.ingest.duration", "Latency of audio ingestion."),
		TranscribeDuration: in.stage("privanote.transcribe.duration", "Latency of recording transcription."),
		AnalyzeDuration:    in.stage("privanote.analyze.duration", "Latency of transcript analysis by provider."),

		ProviderRequests:   in.counter("privanote.provider.requests", "Provider API requests by provider, kind and status."),
		FallbackAnalyses:   in.counter("privanote.analysis.fallbacks", "Analyses served by the rule-based fallback, by reason."),
		PipelineRuns:       in.counter("privanote.pipeline.runs", "Processed recordings by source and status."),
		ToolCalls:          in.counter("privanote.tool.calls", "MCP tool invocations by tool and status."),
		BreakerTransitions: in.counter("privanote.breaker.transitions", "Circuit breaker state changes by breaker and new state."),
		ProviderErrors:     in.counter("privanote.provider.errors", "Provider errors by provider and kind."),
	}

	var err error
	met.MeetingsStored, err = in.meter.Int64UpDownCounter("privanote.meetings.stored",
		metric.WithDescription("Number of meetings held by the store."))
	in.errs = append(in.errs, err)
	met.HTTPRequestDuration, err = in.meter.Float64Histogram("privanote.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."), metric.WithUnit("s"))
	in.errs = append(in.errs, err)

	if err := errors.Join(in.errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration since start on a stage histogram.
func RecordStage(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}

// add increments c by one with string attributes given as key, value pairs.
func add(ctx context.Context, c metric.Int64Counter, kv ...string) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProviderRequest counts one backend call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	add(ctx, m.ProviderRequests, "provider", provider, "kind", kind, "status", status)
}

// RecordProviderError counts one backend failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	add(ctx, m.ProviderErrors, "provider", provider, "kind", kind)
}

// RecordFallback counts an analysis answered by the fallback analyzer.
func (m *Metrics) RecordFallback(ctx context.Context, reason string) {
	add(ctx, m.FallbackAnalyses, "reason", reason)
}

// RecordPipelineRun counts a finished pipeline run.
func (m *Metrics) RecordPipelineRun(ctx context.Context, source, status string) {
	add(ctx, m.PipelineRuns, "source", source, "status", status)
}

// RecordToolCall counts an MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	add(ctx, m.ToolCalls, "tool", tool, "status", status)
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	add(ctx, m.BreakerTransitions, "breaker", breaker, "state", state)
}
