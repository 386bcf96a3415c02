package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	CoverageChanged bool

	ProvidersChanged bool
	ProviderChanges  []ProviderDiff // one entry per provider kind that changed

	QuestionsSourceChanged bool
}

// ProviderDiff describes what changed for a single provider kind
// ("llm", "embeddings", "stt", "tts") between two configs.
type ProviderDiff struct {
	Kind         string
	NameChanged  bool
	ModelChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; a changed
// provider name or model still requires the caller to re-instantiate that
// provider via the [Registry].
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !reflect.DeepEqual(old.Coverage, new.Coverage) {
		d.CoverageChanged = true
	}

	if pd := diffProvider("llm", old.Providers.LLM, new.Providers.LLM); pd != nil {
		d.ProviderChanges = append(d.ProviderChanges, *pd)
	}
	if pd := diffProvider("embeddings", old.Providers.Embeddings, new.Providers.Embeddings); pd != nil {
		d.ProviderChanges = append(d.ProviderChanges, *pd)
	}
	if pd := diffProvider("stt", old.Providers.STT, new.Providers.STT); pd != nil {
		d.ProviderChanges = append(d.ProviderChanges, *pd)
	}
	if pd := diffProvider("tts", old.Providers.TTS, new.Providers.TTS); pd != nil {
		d.ProviderChanges = append(d.ProviderChanges, *pd)
	}
	d.ProvidersChanged = len(d.ProviderChanges) > 0

	if old.Questions.SourcePath != new.Questions.SourcePath {
		d.QuestionsSourceChanged = true
	}

	return d
}

// diffProvider compares two provider entries of the same kind and returns a
// non-nil diff only if the name or model changed.
func diffProvider(kind string, old, new ProviderEntry) *ProviderDiff {
	nameChanged := old.Name != new.Name
	modelChanged := old.Model != new.Model
	if !nameChanged && !modelChanged {
		return nil
	}
	return &ProviderDiff{
		Kind:         kind,
		NameChanged:  nameChanged,
		ModelChanged: modelChanged,
	}
}
