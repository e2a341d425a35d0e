package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher keeps the configuration file in sync with the running service. It
// polls the file, and [Watcher.Reload] re-reads it on demand (the server
// calls it on SIGHUP). A changed, valid file whose hot-reloadable fields
// differ is handed to the callback; invalid files are logged and ignored so
// the last good configuration stays active.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config, d ConfigDiff)

	// reloadMu serialises reloads so callbacks never overlap.
	reloadMu sync.Mutex

	mu      sync.Mutex
	current *Config
	state   fileState

	done     chan struct{}
	stopOnce sync.Once
}

// fileState identifies one version of the file.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange runs on the polling
// goroutine, or on the caller of Reload, never concurrently with itself.
func NewWatcher(path string, onChange func(old, new *Config, d ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.state = cfg, st

	go w.loop()
	return w, nil
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload re-reads the file regardless of its modification time. It returns
// the parse or validation error of an invalid file, which leaves the current
// configuration in place.
func (w *Watcher) Reload() error {
	return w.reload(true)
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			if err := w.reload(false); err != nil {
				slog.Warn("config watcher: keeping previous configuration", "path", w.path, "err", err)
			}
		}
	}
}

func (w *Watcher) reload(force bool) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	w.mu.Lock()
	prev := w.state
	w.mu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return err
		}
		if info.ModTime().Equal(prev.mtime) {
			return nil
		}
	}

	cfg, st, err := w.read()
	if err != nil {
		return err
	}

	w.mu.Lock()
	old := w.current
	w.state = st
	if st.sum == prev.sum {
		// Touched, or rewritten with the same content.
		w.mu.Unlock()
		return nil
	}
	w.current = cfg
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config watcher: configuration reloaded", "path", w.path, "hot_reload", d.Changed())
	if d.RestartRequired {
		slog.Warn("config watcher: some changes take effect only after a restart", "path", w.path)
	}
	if w.onChange != nil && d.Changed() {
		w.onChange(old, cfg, d)
	}
	return nil
}

// read parses and validates the file and returns it with its version.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
