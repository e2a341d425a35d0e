package audio_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/privanote/pkg/audio"
)

func TestRecorder_FinishWritesCanonicalWAV(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec, err := audio.NewRecorder(dir, audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	// 10 chunks of 100 ms 48 kHz stereo.
	for range 10 {
		if err := rec.Write(make([]int16, 4800*2)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	info, err := rec.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if info.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", info.Duration)
	}
	if filepath.Dir(info.CanonicalPath) != dir || !info.Temporary {
		t.Errorf("info = %+v", info)
	}

	f, err := os.Open(info.CanonicalPath)
	if err != nil {
		t.Fatal(err)
	}
	pcm, hdr, err := audio.DecodeWAV(f)
	f.Close()
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if hdr.Format != audio.Canonical || len(pcm) != 16000 {
		t.Errorf("got %v with %d samples, want canonical with 16000", hdr.Format, len(pcm))
	}

	if err := rec.Write([]int16{1}); err == nil {
		t.Error("Write after Finish should fail")
	}
	info.Cleanup()
}

func TestRecorder_WriteBytes(t *testing.T) {
	t.Parallel()
	rec, err := audio.NewRecorder(t.TempDir(), audio.Canonical)
	if err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 7)
	binary.LittleEndian.PutUint16(b, 1234)
	if err := rec.WriteBytes(b); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	info, err := rec.Finish()
	if err != nil {
		t.Fatal(err)
	}
	defer info.Cleanup()
	if info.FileSize != 44+6 {
		t.Errorf("FileSize = %d, want 50", info.FileSize)
	}
}

func TestRecorder_AbortRemovesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rec, err := audio.NewRecorder(dir, audio.Canonical)
	if err != nil {
		t.Fatal(err)
	}
	rec.Abort()
	rec.Abort()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left after Abort", len(entries))
	}
}

func TestNewRecorder_InvalidFormat(t *testing.T) {
	t.Parallel()
	if _, err := audio.NewRecorder(t.TempDir(), audio.Format{}); err == nil {
		t.Error("expected error for zero format")
	}
}
