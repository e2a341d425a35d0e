package audio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/privanote/pkg/audio"
	"github.com/MrWong99/privanote/pkg/audio/mock"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestIngestor_ProcessRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{name: "zero length", file: "empty.wav", data: nil},
		{name: "unsupported extension", file: "notes.txt", data: []byte("hello")},
		{name: "corrupt wav", file: "bad.wav", data: []byte("definitely not a wav file")},
		{name: "too short", file: "short.wav", data: audio.EncodeWAVBytes(make([]int16, 8000), audio.Canonical)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := t.TempDir()
			tmp := t.TempDir()
			path := writeFile(t, src, tt.file, tt.data)

			ing := audio.NewIngestor(audio.WithTempDir(tmp))
			_, err := ing.Process(context.Background(), path)
			if !errors.Is(err, audio.ErrAudioDecode) {
				t.Fatalf("err = %v, want ErrAudioDecode", err)
			}
			var de *audio.DecodeError
			if !errors.As(err, &de) || de.Path != path {
				t.Errorf("expected *DecodeError for %s, got %v", path, err)
			}
			if left := dirEntries(t, tmp); len(left) != 0 {
				t.Errorf("temp files left behind: %v", left)
			}
		})
	}
}

func TestIngestor_ProcessMissingFile(t *testing.T) {
	t.Parallel()
	_, err := audio.NewIngestor().Process(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if !errors.Is(err, audio.ErrAudioDecode) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrAudioDecode wrapping ErrNotExist", err)
	}
}

func TestIngestor_ProcessCanonicalWAV(t *testing.T) {
	t.Parallel()
	src := t.TempDir()
	path := writeFile(t, src, "meeting.WAV", audio.EncodeWAVBytes(make([]int16, 16000*2), audio.Canonical))

	info, err := audio.NewIngestor(audio.WithTempDir(t.TempDir())).Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if info.CanonicalPath != path || info.Temporary {
		t.Errorf("canonical input should be used in place, got %+v", info)
	}
	if info.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", info.Duration)
	}
	info.Cleanup()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Cleanup removed the original: %v", err)
	}
}

func TestIngestor_ProcessConvertsWAV(t *testing.T) {
	t.Parallel()
	src, tmp := t.TempDir(), t.TempDir()
	stereo := audio.Format{SampleRate: 44100, Channels: 2}
	original := audio.EncodeWAVBytes(make([]int16, 44100*2*3), stereo)
	path := writeFile(t, src, "stereo.wav", original)

	info, err := audio.NewIngestor(audio.WithTempDir(tmp)).Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !info.Temporary || filepath.Dir(info.CanonicalPath) != tmp {
		t.Fatalf("expected temp canonical copy in %s, got %+v", tmp, info)
	}
	if info.SampleRate != 44100 || info.Channels != 2 {
		t.Errorf("original format = %d/%d, want 44100/2", info.SampleRate, info.Channels)
	}
	if info.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", info.Duration)
	}
	if info.FileSize != int64(len(original)) {
		t.Errorf("FileSize = %d, want %d", info.FileSize, len(original))
	}

	f, err := os.Open(info.CanonicalPath)
	if err != nil {
		t.Fatalf("open canonical: %v", err)
	}
	pcm, hdr, err := audio.DecodeWAV(f)
	f.Close()
	if err != nil {
		t.Fatalf("decode canonical: %v", err)
	}
	if hdr.Format != audio.Canonical || len(pcm) != 16000*3 {
		t.Errorf("canonical = %v with %d samples", hdr.Format, len(pcm))
	}

	info.Cleanup()
	if left := dirEntries(t, tmp); len(left) != 0 {
		t.Errorf("Cleanup left %v", left)
	}
	if got, _ := os.ReadFile(path); len(got) != len(original) {
		t.Error("original file was modified")
	}
}

func TestIngestor_ProcessWithConverter(t *testing.T) {
	t.Parallel()
	src, tmp := t.TempDir(), t.TempDir()
	path := writeFile(t, src, "call.mp3", []byte("ID3 fake mp3 payload"))

	conv := &mock.Converter{
		Samples:       make([]int16, 16000*5),
		ProbeFormat:   audio.Format{SampleRate: 44100, Channels: 2},
		ProbeDuration: 5 * time.Second,
	}
	info, err := audio.NewIngestor(audio.WithTempDir(tmp), audio.WithConverter(conv)).Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	defer info.Cleanup()

	if info.Duration != 5*time.Second || info.SampleRate != 44100 || info.Channels != 2 {
		t.Errorf("info = %+v", info)
	}
	converts, probes := conv.Calls()
	if len(converts) != 1 || converts[0].Src != path || converts[0].Dst != info.CanonicalPath {
		t.Errorf("convert calls = %+v", converts)
	}
	if len(probes) != 1 {
		t.Errorf("probe calls = %v", probes)
	}
}

func TestIngestor_ConverterFailureCleansUp(t *testing.T) {
	t.Parallel()
	src, tmp := t.TempDir(), t.TempDir()
	path := writeFile(t, src, "call.m4a", []byte("garbage"))

	conv := &mock.Converter{ConvertErr: errors.New("ffmpeg exited 1")}
	_, err := audio.NewIngestor(audio.WithTempDir(tmp), audio.WithConverter(conv)).Process(context.Background(), path)
	if !errors.Is(err, audio.ErrAudioDecode) {
		t.Fatalf("err = %v, want ErrAudioDecode", err)
	}
	if left := dirEntries(t, tmp); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

func TestIngestor_NoConverterForMP3(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "a.mp3", []byte("x"))
	if _, err := audio.NewIngestor().Process(context.Background(), path); !errors.Is(err, audio.ErrAudioDecode) {
		t.Errorf("err = %v, want ErrAudioDecode", err)
	}
}

func TestIngestor_ValidateAndProbe(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	long := writeFile(t, dir, "long.wav", audio.EncodeWAVBytes(make([]int16, 16000*4), audio.Canonical))
	short := writeFile(t, dir, "short.wav", audio.EncodeWAVBytes(make([]int16, 100), audio.Canonical))
	empty := writeFile(t, dir, "empty.flac", nil)

	ing := audio.NewIngestor()
	ctx := context.Background()

	if !ing.Validate(ctx, long) {
		t.Error("Validate(long) = false, want true")
	}
	if ing.Validate(ctx, short) {
		t.Error("Validate(short) = true, want false")
	}
	if ing.Validate(ctx, empty) {
		t.Error("Validate(empty) = true, want false")
	}

	info, err := ing.Probe(ctx, long)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Duration != 4*time.Second || info.CanonicalPath != "" {
		t.Errorf("Probe = %+v", info)
	}
	if got := info.DurationMinutes(); got != 4.0/60 {
		t.Errorf("DurationMinutes = %v", got)
	}
}
