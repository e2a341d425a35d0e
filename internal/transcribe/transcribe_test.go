package transcribe_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/privanote/internal/transcribe"
	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/provider/stt"
	"github.com/MrWong99/privanote/pkg/provider/stt/mock"
)

// writeWAV renders alternating silence and tone spans (in seconds) as a
// canonical WAV file. Even indexes are silence, odd indexes are tone.
func writeWAV(t *testing.T, spans ...float64) string {
	t.Helper()
	var pcm []int16
	for i, s := range spans {
		n := int(s * audio.CanonicalSampleRate)
		for j := range n {
			var v float64
			if i%2 == 1 {
				v = 0.3 * math.Sin(2*math.Pi*440*float64(j)/audio.CanonicalSampleRate)
			}
			pcm = append(pcm, int16(v*math.MaxInt16))
		}
	}
	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(path, audio.EncodeWAVBytes(pcm, audio.Canonical), 0o600); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func loaderFor(p stt.Provider) transcribe.Loader {
	return func(context.Context, transcribe.ModelSize) (stt.Provider, error) { return p, nil }
}

func newService(t *testing.T, p stt.Provider) *transcribe.Service {
	t.Helper()
	svc := transcribe.New(loaderFor(p), transcribe.WithBackendName("mock"))
	if err := svc.SetModelSize(context.Background(), "base"); err != nil {
		t.Fatalf("SetModelSize: %v", err)
	}
	return svc
}

func TestTranscribe_Regions(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Segments: []stt.Segment{{End: time.Second, Text: " hello   world "}}}
	svc := newService(t, p)
	path := writeWAV(t, 1, 2, 3, 2, 1)

	text, err := svc.Transcribe(context.Background(), path, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if want := "Hello world hello world."; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("provider called %d times, want one per speech region", len(calls))
	}
	for _, c := range calls {
		if c.Cfg.Language != "en" {
			t.Errorf("language = %q, want en", c.Cfg.Language)
		}
		if c.Samples >= 9*audio.CanonicalSampleRate {
			t.Errorf("region of %d samples covers the whole recording", c.Samples)
		}
	}
}

func TestTranscribeSegments_Offsets(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Segments: []stt.Segment{{Start: 100 * time.Millisecond, End: time.Second, Text: "part"}}}
	svc := newService(t, p)
	path := writeWAV(t, 1, 2, 3, 2, 1)

	segs, err := svc.TranscribeSegments(context.Background(), path, "")
	if err != nil {
		t.Fatalf("TranscribeSegments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].Start >= time.Second || segs[0].Start < 500*time.Millisecond {
		t.Errorf("first segment starts at %s, want shortly before the first tone", segs[0].Start)
	}
	if segs[1].Start <= 5*time.Second {
		t.Errorf("second segment starts at %s, want after 5s", segs[1].Start)
	}
	for _, s := range segs {
		if s.Duration != 900*time.Millisecond {
			t.Errorf("duration = %s, want 900ms", s.Duration)
		}
	}
	if calls := p.Calls(); calls[0].Cfg.Language != "auto" {
		t.Errorf("language = %q, want auto", calls[0].Cfg.Language)
	}
}

func TestTranscribe_Silence(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Segments: []stt.Segment{{Text: "phantom"}}}
	svc := newService(t, p)
	path := writeWAV(t, 30)

	_, err := svc.Transcribe(context.Background(), path, "")
	if !errors.Is(err, transcribe.ErrEmptySpeech) {
		t.Fatalf("err = %v, want ErrEmptySpeech", err)
	}
	if n := len(p.Calls()); n != 0 {
		t.Errorf("provider called %d times on silence", n)
	}
}

func TestTranscribe_BlankRecognizerOutput(t *testing.T) {
	t.Parallel()

	svc := newService(t, &mock.Provider{Segments: []stt.Segment{{Text: "   "}}})
	_, err := svc.Transcribe(context.Background(), writeWAV(t, 1, 2, 1), "")
	if !errors.Is(err, transcribe.ErrEmptySpeech) {
		t.Fatalf("err = %v, want ErrEmptySpeech", err)
	}
}

func TestTranscribe_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := writeWAV(t, 1, 2, 1)

	t.Run("not initialized", func(t *testing.T) {
		t.Parallel()
		svc := transcribe.New(loaderFor(&mock.Provider{}))
		if _, err := svc.Transcribe(ctx, path, ""); !errors.Is(err, transcribe.ErrNotInitialized) {
			t.Errorf("err = %v, want ErrNotInitialized", err)
		}
	})
	t.Run("unsupported language", func(t *testing.T) {
		t.Parallel()
		svc := newService(t, &mock.Provider{})
		if _, err := svc.Transcribe(ctx, path, "xx"); !errors.Is(err, transcribe.ErrUnsupportedLanguage) {
			t.Errorf("err = %v, want ErrUnsupportedLanguage", err)
		}
	})
	t.Run("corrupt file", func(t *testing.T) {
		t.Parallel()
		bad := filepath.Join(t.TempDir(), "bad.wav")
		if err := os.WriteFile(bad, []byte("nope"), 0o600); err != nil {
			t.Fatal(err)
		}
		svc := newService(t, &mock.Provider{})
		if _, err := svc.Transcribe(ctx, bad, ""); !errors.Is(err, audio.ErrAudioDecode) {
			t.Errorf("err = %v, want ErrAudioDecode", err)
		}
	})
	t.Run("backend failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		svc := newService(t, &mock.Provider{TranscribeErr: boom})
		if _, err := svc.Transcribe(ctx, path, ""); !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped boom", err)
		}
	})
}

func TestSetModelSize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	first := &mock.Provider{}
	second := &mock.Provider{}
	var loads atomic.Int32
	loader := func(_ context.Context, size transcribe.ModelSize) (stt.Provider, error) {
		loads.Add(1)
		switch size {
		case transcribe.SizeTiny:
			return first, nil
		case transcribe.SizeSmall:
			return second, nil
		}
		return nil, errors.New("model file missing")
	}
	svc := transcribe.New(loader, transcribe.WithBackendName("whisper.cpp"))

	if info := svc.ModelInfo(); info.Initialized {
		t.Fatalf("initialized before any load: %+v", info)
	}
	if err := svc.SetModelSize(ctx, "tiny"); err != nil {
		t.Fatalf("SetModelSize(tiny): %v", err)
	}

	if err := svc.SetModelSize(ctx, "gigantic"); !errors.Is(err, transcribe.ErrInvalidModelSize) {
		t.Errorf("SetModelSize(gigantic) = %v, want ErrInvalidModelSize", err)
	}
	if loads.Load() != 1 {
		t.Errorf("invalid size reached the loader")
	}
	if err := svc.SetModelSize(ctx, "large"); err == nil {
		t.Error("SetModelSize(large) succeeded despite loader failure")
	}
	if got := svc.ModelInfo().Size; got != transcribe.SizeTiny {
		t.Errorf("size after failed swap = %q, want tiny", got)
	}
	if first.CloseCallCount != 0 {
		t.Error("previous model closed after failed swap")
	}

	if err := svc.SetModelSize(ctx, " Small "); err != nil {
		t.Fatalf("SetModelSize(small): %v", err)
	}
	if first.CloseCallCount != 1 {
		t.Errorf("previous model closed %d times, want 1", first.CloseCallCount)
	}

	want := transcribe.ModelInfo{
		Size:               transcribe.SizeSmall,
		Initialized:        true,
		Backend:            "whisper.cpp",
		SupportedLanguages: transcribe.SupportedLanguages(),
	}
	if diff := cmp.Diff(want, svc.ModelInfo()); diff != "" {
		t.Errorf("ModelInfo (-want +got):\n%s", diff)
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if second.CloseCallCount != 1 {
		t.Errorf("current model closed %d times, want 1", second.CloseCallCount)
	}
	if svc.ModelInfo().Initialized {
		t.Error("still initialized after Close")
	}
}

func TestSupportedLanguages(t *testing.T) {
	t.Parallel()

	langs := transcribe.SupportedLanguages()
	if len(langs) != 19 || langs[0] != "en" {
		t.Fatalf("SupportedLanguages = %v", langs)
	}
	langs[0] = "xx"
	if transcribe.SupportedLanguages()[0] != "en" {
		t.Error("SupportedLanguages returned shared slice")
	}
}

func TestModelSizeFileName(t *testing.T) {
	t.Parallel()
	if got := transcribe.SizeMedium.FileName(); got != "ggml-medium.bin" {
		t.Errorf("FileName = %q", got)
	}
}
