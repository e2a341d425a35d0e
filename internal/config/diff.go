package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ProviderChanged bool
	NewProvider     string

	ModelSizeChanged bool
	NewModelSize     string

	LanguageChanged bool
	NewLanguage     string

	// RestartRequired is set when a field changed that is only read at
	// startup, such as the listen address or the storage DSN.
	RestartRequired bool
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ProviderChanged || d.ModelSizeChanged || d.LanguageChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Analysis.Provider != new.Analysis.Provider {
		d.ProviderChanged = true
		d.NewProvider = new.Analysis.Provider
	}
	if old.Transcription.ModelSize != new.Transcription.ModelSize {
		d.ModelSizeChanged = true
		d.NewModelSize = new.Transcription.ModelSize
	}
	if old.Transcription.Language != new.Transcription.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Transcription.Language
	}

	d.RestartRequired = old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Storage != new.Storage ||
		old.MCP != new.MCP ||
		old.Transcription.Backend != new.Transcription.Backend ||
		old.Transcription.ModelDir != new.Transcription.ModelDir ||
		old.Transcription.ServerURL != new.Transcription.ServerURL ||
		!sameEntry(old.Analysis.Cloud, new.Analysis.Cloud) ||
		!sameEntry(old.Analysis.Ollama, new.Analysis.Ollama) ||
		!sameEntry(old.Analysis.LMStudio, new.Analysis.LMStudio)

	return d
}

// sameEntry compares the scalar fields of two entries. Options are ignored.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
