package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ApplyEnv overlays environment variables onto cfg. Only variables that are
// set override the file values:
//
//	OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL
//	PRIVANOTE_OLLAMA_BASE_URL, PRIVANOTE_OLLAMA_MODEL
//	PRIVANOTE_LMSTUDIO_BASE_URL, PRIVANOTE_LMSTUDIO_MODEL
//	PRIVANOTE_LISTEN_ADDR, PRIVANOTE_LOG_LEVEL, PRIVANOTE_PROVIDER
//	PRIVANOTE_MODEL_SIZE, PRIVANOTE_POSTGRES_DSN
//
// environ replaces the process environment when non-nil.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}
