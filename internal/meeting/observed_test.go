package meeting_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/internal/observe"
)

func storedGauge(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "privanote.meetings.stored" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				t.Fatalf("unexpected data %T", m.Data)
			}
			return sum.DataPoints[0].Value
		}
	}
	return 0
}

func TestObserved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	inner := meeting.NewMemStore()
	if _, err := inner.Save(ctx, sample("Existing", "text")); err != nil {
		t.Fatal(err)
	}
	s, err := meeting.Observed(ctx, inner, metrics)
	if err != nil {
		t.Fatalf("Observed: %v", err)
	}

	steps := []struct {
		name string
		run  func() error
		want int64
	}{
		{"initial count", func() error { return nil }, 1},
		{"save", func() error { _, err := s.Save(ctx, sample("A", "text")); return err }, 2},
		{"rejected save", func() error { _, _ = s.Save(ctx, meeting.Meeting{}); return nil }, 2},
		{"delete unknown", func() error { _, err := s.Delete(ctx, "nope"); return err }, 2},
		{"import", func() error {
			_, err := s.Import(ctx, meeting.Archive{Meetings: []meeting.Meeting{sample("B", "t"), sample("C", "t")}})
			return err
		}, 4},
		{"clear", func() error { return s.ClearAll(ctx) }, 0},
	}
	for _, st := range steps {
		if err := st.run(); err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if got := storedGauge(t, reader); got != st.want {
			t.Errorf("%s: gauge = %d, want %d", st.name, got, st.want)
		}
	}
}
