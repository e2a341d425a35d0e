package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/privanote/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
analysis:
  provider: fallback
transcription:
  model_size: base
`

const watcherUpdatedYAML = `
server:
  log_level: debug
analysis:
  provider: ollama
transcription:
  model_size: small
`

const watcherRestartOnlyYAML = `
server:
  log_level: info
  listen_addr: ":9999"
analysis:
  provider: fallback
transcription:
  model_size: base
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// countingCallback returns a watcher callback and a function reporting how
// often it ran.
func countingCallback() (func(old, new *config.Config, d config.ConfigDiff), func() int) {
	var mu sync.Mutex
	n := 0
	return func(*config.Config, *config.Config, config.ConfigDiff) {
			mu.Lock()
			n++
			mu.Unlock()
		}, func() int {
			mu.Lock()
			defer mu.Unlock()
			return n
		}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Transcription.ModelSize != "base" {
		t.Errorf("model_size: got %q, want base", cfg.Transcription.ModelSize)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	var mu sync.Mutex
	var got config.ConfigDiff
	called := make(chan struct{}, 1)

	w, err := config.NewWatcher(cfgPath, func(_, _ *config.Config, d config.ConfigDiff) {
		mu.Lock()
		got = d
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	writeFile(t, cfgPath, watcherUpdatedYAML)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if !got.ProviderChanged || got.NewProvider != "ollama" {
		t.Errorf("provider change not reported: %+v", got)
	}
	if !got.ModelSizeChanged || got.NewModelSize != "small" {
		t.Errorf("model size change not reported: %+v", got)
	}
	if cur := w.Current(); cur.Analysis.Provider != "ollama" {
		t.Errorf("Current() provider: got %q, want ollama", cur.Analysis.Provider)
	}
}

func TestWatcher_NoCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		change func(t *testing.T, path string)
		level  config.LogLevel
		listen string
	}{
		{
			name:   "invalid file keeps old config",
			change: func(t *testing.T, path string) { writeFile(t, path, watcherInvalidYAML) },
			level:  config.LogInfo,
			listen: ":8080",
		},
		{
			name: "touch without content change",
			change: func(t *testing.T, path string) {
				now := time.Now().Add(time.Second)
				if err := os.Chtimes(path, now, now); err != nil {
					t.Fatalf("failed to touch file: %v", err)
				}
			},
			level:  config.LogInfo,
			listen: ":8080",
		},
		{
			name:   "restart-only change",
			change: func(t *testing.T, path string) { writeFile(t, path, watcherRestartOnlyYAML) },
			level:  config.LogInfo,
			listen: ":9999",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, cfgPath, watcherValidYAML)

			cb, calls := countingCallback()
			w, err := config.NewWatcher(cfgPath, cb, config.WithInterval(50*time.Millisecond))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer w.Stop()

			time.Sleep(100 * time.Millisecond)
			tt.change(t, cfgPath)
			time.Sleep(300 * time.Millisecond)

			if n := calls(); n != 0 {
				t.Errorf("callback fired %d times", n)
			}
			cur := w.Current()
			if cur.Server.LogLevel != tt.level || cur.Server.ListenAddr != tt.listen {
				t.Errorf("Current() = %q %q, want %q %q", cur.Server.LogLevel, cur.Server.ListenAddr, tt.level, tt.listen)
			}
		})
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	w, err := config.NewWatcher(cfgPath, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherValidYAML)

	cb, calls := countingCallback()
	// The poll never fires during the test; only Reload reads the file.
	w, err := config.NewWatcher(cfgPath, cb, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := w.Reload(); err != nil || calls() != 0 {
		t.Fatalf("Reload of unchanged file: err=%v calls=%d", err, calls())
	}

	writeFile(t, cfgPath, watcherUpdatedYAML)
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if calls() != 1 || w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("after Reload: calls=%d level=%q", calls(), w.Current().Server.LogLevel)
	}

	writeFile(t, cfgPath, watcherInvalidYAML)
	if err := w.Reload(); err == nil {
		t.Error("Reload accepted an invalid file")
	}
	if calls() != 1 || w.Current().Analysis.Provider != "ollama" {
		t.Errorf("invalid file replaced config: calls=%d provider=%q", calls(), w.Current().Analysis.Provider)
	}
}
