package app

import (
	"fmt"
	"net/http"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/privanote/internal/config"
	"github.com/MrWong99/privanote/internal/transcribe"
	"github.com/MrWong99/privanote/pkg/provider/llm"
	"github.com/MrWong99/privanote/pkg/provider/llm/anyllm"
	"github.com/MrWong99/privanote/pkg/provider/llm/openai"
)

// RegisterBuiltins wires every built-in backend factory into reg.
func RegisterBuiltins(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama, llamacpp and llamafile are local servers addressed by BaseURL.
	// An API key is only forwarded when one is configured.
	for _, name := range []string{"ollama", "llamacpp", "llamafile"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(cfg config.TranscriptionConfig) (transcribe.Loader, error) {
		if cfg.ModelDir == "" {
			return nil, fmt.Errorf("whisper-native: model_dir must not be empty")
		}
		return transcribe.NativeLoader(cfg.ModelDir, cfg.Threads), nil
	})

	reg.RegisterSTT("whisper", func(cfg config.TranscriptionConfig) (transcribe.Loader, error) {
		if cfg.ServerURL == "" {
			return nil, fmt.Errorf("whisper: server_url must not be empty")
		}
		return transcribe.ServerLoader(cfg.ServerURL, cfg.ModelDir, http.DefaultClient), nil
	})
}

// optString extracts a string value from a backend Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
