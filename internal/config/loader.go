package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known implementation names per backend kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"cloud":    {"openai"},
	"ollama":   {"ollama"},
	"lmstudio": {"llamacpp", "llamafile", "openai"},
	"stt":      {"whisper", "whisper-native"},
}

var (
	validAnalysisProviders = []string{"openai", "ollama", "lmstudio", "fallback"}
	validModelSizes        = []string{"tiny", "base", "small", "medium", "large"}
)

// Load reads the YAML configuration file at path, overlays the process
// environment and returns a validated [Config]. An empty path starts from
// [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(Default())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. The environment is not consulted.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse decodes data and overlays the process environment.
func parse(data []byte) (*Config, error) {
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Analysis
	a := cfg.Analysis
	if a.Provider != "" && !slices.Contains(validAnalysisProviders, strings.ToLower(a.Provider)) {
		errs = append(errs, fmt.Errorf("analysis.provider %q is invalid; valid values: %s", a.Provider, strings.Join(validAnalysisProviders, ", ")))
	}
	if a.CloudTimeout < 0 || a.LocalTimeout < 0 || a.ProbeTimeout < 0 {
		errs = append(errs, errors.New("analysis timeouts must not be negative"))
	}
	validateProviderName("cloud", a.Cloud.Name)
	validateProviderName("ollama", a.Ollama.Name)
	validateProviderName("lmstudio", a.LMStudio.Name)
	for _, b := range []struct {
		key   string
		entry ProviderEntry
	}{{"ollama", a.Ollama}, {"lmstudio", a.LMStudio}} {
		if b.entry.Enabled() && b.entry.BaseURL == "" {
			errs = append(errs, fmt.Errorf("analysis.%s.base_url is required when the backend is enabled", b.key))
		}
	}
	if a.Cloud.Enabled() && a.Cloud.APIKey == "" {
		slog.Debug("analysis.cloud has no api key; the cloud backend will be unavailable")
	}
	switch {
	case strings.EqualFold(a.Provider, "openai") && !a.Cloud.Enabled():
		slog.Warn("analysis.provider is openai but analysis.cloud is disabled; analyses will use the fallback")
	case strings.EqualFold(a.Provider, "ollama") && !a.Ollama.Enabled(),
		strings.EqualFold(a.Provider, "lmstudio") && !a.LMStudio.Enabled():
		slog.Warn("analysis.provider names a disabled local backend; analyses will use the fallback", "provider", a.Provider)
	}

	// Transcription
	t := cfg.Transcription
	validateProviderName("stt", t.Backend)
	if t.ModelSize != "" && !slices.Contains(validModelSizes, strings.ToLower(t.ModelSize)) {
		errs = append(errs, fmt.Errorf("transcription.model_size %q is invalid; valid values: %s", t.ModelSize, strings.Join(validModelSizes, ", ")))
	}
	if t.Backend == "whisper" && t.ServerURL == "" {
		errs = append(errs, errors.New("transcription.server_url is required when backend is whisper"))
	}
	if t.MinSilenceMs < 0 || t.SpeechPadMs < 0 {
		errs = append(errs, errors.New("transcription.min_silence_ms and speech_pad_ms must not be negative"))
	}

	// Storage
	if cfg.Storage.PostgresDSN == "" {
		slog.Debug("storage.postgres_dsn is empty; meetings are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
