package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLogLevels lists the accepted values for Server.LogLevel.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// ValidDetectors lists the accepted values for Coverage.Detector.
var ValidDetectors = []string{"cascade", "llm_arbiter"}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings": {"openai", "ollama"},
	"stt":        {"whisper", "deepgram"},
	"tts":        {"elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
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
	if cfg.Server.LogLevel != "" && !slices.Contains(ValidLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: %v", cfg.Server.LogLevel, ValidLogLevels))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required: the LLM Gateway and follow-up generation cannot function without it"))
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; the cosine-similarity tier of the coverage cascade will be unavailable")
	}

	// Coverage thresholds
	if cfg.Coverage.FuzzyThreshold < 0 || cfg.Coverage.FuzzyThreshold > 100 {
		errs = append(errs, fmt.Errorf("coverage.fuzzy_threshold %.2f is out of range [0, 100]", cfg.Coverage.FuzzyThreshold))
	}
	if cfg.Coverage.CosineThreshold < 0 || cfg.Coverage.CosineThreshold > 1 {
		errs = append(errs, fmt.Errorf("coverage.cosine_threshold %.2f is out of range [0, 1]", cfg.Coverage.CosineThreshold))
	}
	if cfg.Coverage.CoverageThresholdPercent <= 0 || cfg.Coverage.CoverageThresholdPercent > 100 {
		errs = append(errs, fmt.Errorf("coverage.coverage_threshold_percent %.2f is out of range (0, 100]", cfg.Coverage.CoverageThresholdPercent))
	}
	if cfg.Coverage.Detector != "" && !slices.Contains(ValidDetectors, cfg.Coverage.Detector) {
		errs = append(errs, fmt.Errorf("coverage.detector %q is invalid; valid values: %v", cfg.Coverage.Detector, ValidDetectors))
	}

	// LLM Gateway
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries %d must not be negative", cfg.LLM.MaxRetries))
	}

	// Question source
	if cfg.Questions.SourcePath == "" {
		errs = append(errs, errors.New("questions.source_path is required"))
	}

	// Analytics
	if cfg.Analytics.PostgresDSN != "" && cfg.Analytics.EmbeddingDimensions <= 0 {
		slog.Warn("analytics.postgres_dsn is configured but analytics.embedding_dimensions is not set; defaulting to 1536")
		cfg.Analytics.EmbeddingDimensions = 1536
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
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
