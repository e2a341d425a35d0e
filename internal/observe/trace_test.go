package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer swaps the global tracer provider for one that records into
// an in-memory exporter. Tests using it must not run in parallel.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan(t *testing.T) {
	exp := installTracer(t)

	ctx, span := StartSpan(context.Background(), "pipeline.process")
	tid := TraceID(ctx)
	span.End()

	if len(tid) != 32 || strings.Trim(tid, "0123456789abcdef") != "" {
		t.Errorf("TraceID = %q, want 32 hex characters", tid)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "pipeline.process" {
		t.Fatalf("spans = %v, want one pipeline.process span", spans)
	}
	if got := spans[0].SpanContext.TraceID().String(); got != tid {
		t.Errorf("span trace id = %s, context trace id = %s", got, tid)
	}
}

func TestTraceID_OutsideTrace(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q, want empty", got)
	}
}

func TestFailSpan(t *testing.T) {
	exp := installTracer(t)

	_, ok := StartSpan(context.Background(), "ok")
	FailSpan(ok, nil)
	ok.End()

	_, bad := StartSpan(context.Background(), "bad")
	FailSpan(bad, errors.New("whisper: model missing"))
	bad.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset || len(spans[0].Events) != 0 {
		t.Errorf("nil error changed span: status=%v events=%d", spans[0].Status, len(spans[0].Events))
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "whisper: model missing" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) != 1 || spans[1].Events[0].Name != "exception" {
		t.Errorf("failed span events = %v, want one exception", spans[1].Events)
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)

	t.Run("inside a span", func(t *testing.T) {
		buf := captureLogs(t)
		ctx, span := StartSpan(context.Background(), "analysis.analyze")
		defer span.End()

		Logger(ctx).Info("analysis done")
		out := buf.String()
		if !strings.Contains(out, "trace_id="+TraceID(ctx)) || !strings.Contains(out, "span_id=") {
			t.Errorf("log line lacks trace ids: %s", out)
		}
	})

	t.Run("without a span", func(t *testing.T) {
		buf := captureLogs(t)
		Logger(context.Background()).Info("startup")
		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("log line has a trace id: %s", buf.String())
		}
	})
}
