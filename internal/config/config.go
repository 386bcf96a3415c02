// Package config provides the configuration schema, loader, and provider
// registry for the interview engine.
package config

// Config is the root configuration structure for the interview engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Coverage  CoverageConfig  `yaml:"coverage"`
	LLM       LLMConfig       `yaml:"llm"`
	Questions QuestionsConfig `yaml:"questions"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds network and logging settings for the interview server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// external collaborator. Each field selects a named provider registered in
// the [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`
	STT        ProviderEntry `yaml:"stt"`
	TTS        ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nomic-embed-text").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// CoverageConfig holds the tunable thresholds for the Topic Coverage Engine's
// cascade detector.
type CoverageConfig struct {
	// FuzzyThreshold is the minimum token-sort-ratio score (0-100) for the
	// fuzzy-matching tier to declare a subtopic covered.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// CosineThreshold is the minimum cosine similarity (0-1) for the
	// embedding tier to declare a subtopic covered.
	CosineThreshold float64 `yaml:"cosine_threshold"`

	// CoverageThresholdPercent is the percentage of a topic's subtopics that
	// must be covered before the Interview Controller considers the topic
	// satisfied and advances to the next question.
	CoverageThresholdPercent float64 `yaml:"coverage_threshold_percent"`

	// Detector selects the coverage detector implementation: "cascade" (the
	// default lemma/fuzzy/cosine pipeline) or "llm_arbiter".
	Detector string `yaml:"detector"`

	// AdaptiveThresholds switches the cascade's fuzzy/cosine tiers from the
	// fixed FuzzyThreshold/CosineThreshold to the word-count/topic-count
	// regime table of spec.md §4.6.1.
	AdaptiveThresholds bool `yaml:"adaptive_thresholds"`

	// DontKnowPhrases are candidate utterances treated as an explicit "I
	// don't know" short-circuit by the LLM arbiter detector.
	DontKnowPhrases []string `yaml:"dont_know_phrases"`

	// RepeatedQuestionPhrases are candidate utterances asking the
	// interviewer to repeat the question, short-circuited by the LLM
	// arbiter detector instead of being scored for coverage.
	RepeatedQuestionPhrases []string `yaml:"repeated_question_phrases"`
}

// LLMConfig holds the chat-completion settings used by the LLM Gateway.
// Model selection itself is not repeated here: [ProvidersConfig].LLM.Model
// already selects the model the backend provider is constructed against.
type LLMConfig struct {
	// Temperature controls output randomness in [0.0, 2.0].
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the number of completion tokens per call.
	MaxTokens int `yaml:"max_tokens"`

	// MaxRetries bounds the total number of attempts (the first call plus
	// corrective retries) the Gateway makes when a completion fails schema or
	// business-rule validation. Zero uses the Gateway's default of 3.
	MaxRetries int `yaml:"max_retries"`
}

// QuestionsConfig points at the source file the Question Importer reads on
// startup.
type QuestionsConfig struct {
	// SourcePath is the path to the question bank file (docx, csv, xlsx, or json).
	SourcePath string `yaml:"source_path"`
}

// AnalyticsConfig holds settings for the optional persistence sink.
type AnalyticsConfig struct {
	// DumpPath is where the end-of-batch JSON enrichment dump is written.
	DumpPath string `yaml:"dump_path"`

	// PostgresDSN is the PostgreSQL connection string for the optional
	// pgvector analytics sink. Empty disables it.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension used for the embeddings
	// column. Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}
