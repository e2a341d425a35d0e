package app_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/privanote/internal/app"
	"github.com/MrWong99/privanote/internal/config"
	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/internal/pipeline"
	"github.com/MrWong99/privanote/internal/transcribe"
	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/provider/stt"
	sttmock "github.com/MrWong99/privanote/pkg/provider/stt/mock"
	"github.com/MrWong99/privanote/pkg/types"
)

// testConfig returns the default config with both local backends disabled.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Analysis.Ollama = config.ProviderEntry{}
	cfg.Analysis.LMStudio = config.ProviderEntry{}
	cfg.Audio.TempDir = os.TempDir()
	return cfg
}

// loaderLog is a transcription loader that records the requested sizes.
type loaderLog struct {
	mu    sync.Mutex
	sizes []transcribe.ModelSize
	err   error
	stt   *sttmock.Provider
}

func (l *loaderLog) load(_ context.Context, size transcribe.ModelSize) (stt.Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sizes = append(l.sizes, size)
	if l.err != nil {
		return nil, l.err
	}
	return l.stt, nil
}

func (l *loaderLog) loaded() []transcribe.ModelSize {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.sizes)
}

func newLoader(text string) *loaderLog {
	return &loaderLog{stt: &sttmock.Provider{Segments: []stt.Segment{{End: time.Second, Text: text}}}}
}

// toneWAV writes a canonical recording: one second of silence, two seconds
// of a 440 Hz tone, one second of silence.
func toneWAV(t *testing.T) string {
	t.Helper()
	rate := audio.CanonicalSampleRate
	pcm := make([]int16, 4*rate)
	for i := rate; i < 3*rate; i++ {
		pcm[i] = int16(0.3 * math.MaxInt16 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	path := filepath.Join(t.TempDir(), "standup.wav")
	if err := os.WriteFile(path, audio.EncodeWAVBytes(pcm, audio.Canonical), 0o600); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	l := newLoader("hello")
	a := newApp(t, testConfig(), app.WithLoader(l.load))

	if got := a.Provider(); got != types.ProviderFallback {
		t.Errorf("Provider() = %q, want %q", got, types.ProviderFallback)
	}
	if got := l.loaded(); !slices.Equal(got, []transcribe.ModelSize{transcribe.SizeBase}) {
		t.Errorf("loaded sizes = %v, want [base]", got)
	}
	if a.Router().CloudConfigured() {
		t.Error("cloud configured without an API key")
	}
	for _, c := range a.HealthCheckers() {
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("check %q failed: %v", c.Name, err)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown provider", func(c *config.Config) { c.Analysis.Provider = "gemini" }},
		{"invalid model size", func(c *config.Config) { c.Transcription.ModelSize = "huge" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(cfg)
			if _, err := app.New(context.Background(), cfg, app.WithLoader(newLoader("x").load)); err == nil {
				t.Fatal("New() returned nil error")
			}
		})
	}
}

func TestNew_ModelLoadFailureLeavesTranscriberUninitialised(t *testing.T) {
	t.Parallel()

	l := &loaderLog{err: errors.New("model file missing")}
	a := newApp(t, testConfig(), app.WithLoader(l.load))

	if a.Transcriber().ModelInfo().Initialized {
		t.Fatal("transcriber initialised after a failed load")
	}
	for _, c := range a.HealthCheckers() {
		err := c.Check(context.Background())
		if c.Name == "transcriber" && !errors.Is(err, transcribe.ErrNotInitialized) {
			t.Errorf("transcriber check = %v, want ErrNotInitialized", err)
		}
	}
}

func TestNew_ProbesLocalBackend(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1"},{"name":"mistral"}]}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Analysis.Ollama = config.ProviderEntry{Name: "ollama", BaseURL: srv.URL, Model: "llama3.1"}
	a := newApp(t, cfg, app.WithLoader(newLoader("x").load), app.WithHTTPClient(srv.Client()))

	res := a.Registry().Probe(context.Background(), types.ProviderOllama)
	if !res.OK {
		t.Fatalf("probe failed: %s", res.Err)
	}
	if !slices.Equal(res.Models, []string{"llama3.1", "mistral"}) {
		t.Errorf("models = %v", res.Models)
	}
	if _, ok := a.Breaker(types.ProviderOllama); !ok {
		t.Error("no breaker reported for ollama")
	}
}

func TestApp_Process(t *testing.T) {
	t.Parallel()

	l := newLoader("We decided to ship on Friday. Anna will update the changelog.")
	a := newApp(t, testConfig(), app.WithLoader(l.load), app.WithStore(meeting.NewMemStore()))

	m, err := a.Process(context.Background(), pipeline.Request{Path: toneWAV(t), Title: "Standup"})
	if err != nil {
		t.Fatalf("Process() returned error: %v", err)
	}
	if m.Analysis == nil || m.Analysis.Provider != types.ProviderFallback {
		t.Fatalf("analysis = %+v, want fallback result", m.Analysis)
	}
	if len(m.Analysis.KeyDecisions) == 0 {
		t.Error("no key decisions extracted")
	}
	got, err := a.Store().Get(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if got.Title != "Standup" {
		t.Errorf("stored title = %q", got.Title)
	}
}

func TestApp_SetProvider(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), app.WithLoader(newLoader("x").load))

	if err := a.SetProvider("bogus"); err == nil {
		t.Error("SetProvider(bogus) returned nil error")
	}
	if err := a.SetProvider(types.ProviderOpenAI); err != nil {
		t.Fatalf("SetProvider() returned error: %v", err)
	}
	if got := a.Provider(); got != types.ProviderOpenAI {
		t.Errorf("Provider() = %q", got)
	}
}

func TestApp_ApplyConfigDiff(t *testing.T) {
	t.Parallel()

	l := newLoader("x")
	a := newApp(t, testConfig(), app.WithLoader(l.load))

	next := testConfig()
	next.Analysis.Provider = "ollama"
	next.Transcription.ModelSize = "small"
	next.Transcription.Language = "de"
	d := config.Diff(a.Config(), next)

	if err := a.ApplyConfigDiff(context.Background(), next, d); err != nil {
		t.Fatalf("ApplyConfigDiff() returned error: %v", err)
	}
	if got := a.Provider(); got != types.ProviderOllama {
		t.Errorf("Provider() = %q, want ollama", got)
	}
	if got := a.Language(); got != "de" {
		t.Errorf("Language() = %q, want de", got)
	}
	if got := a.Transcriber().ModelInfo().Size; got != transcribe.SizeSmall {
		t.Errorf("model size = %q, want small", got)
	}
	if a.Config() != next {
		t.Error("Config() does not return the applied config")
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	l := newLoader("x")
	a, err := app.New(context.Background(), testConfig(), app.WithLoader(l.load))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() returned error: %v", err)
	}
	if l.stt.CloseCallCount != 1 {
		t.Errorf("stt Close calls = %d, want 1", l.stt.CloseCallCount)
	}
	// A second call is a no-op.
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() returned error: %v", err)
	}
	if l.stt.CloseCallCount != 1 {
		t.Errorf("stt Close calls after second Shutdown = %d, want 1", l.stt.CloseCallCount)
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), app.WithLoader(newLoader("x").load))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() = %v, want context.Canceled", err)
	}
}
