// Command interviewer is the main entry point for the adaptive interview
// server: it loads configuration, wires the LLM/embeddings providers behind
// resilience fallbacks, assembles the Question Store, Topic Coverage Engine,
// Session Registry, and Orchestrator, then serves the spec.md §6 HTTP
// surface until signalled to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/simonealverdi/interviewer/internal/config"
	"github.com/simonealverdi/interviewer/internal/coverage"
	"github.com/simonealverdi/interviewer/internal/health"
	"github.com/simonealverdi/interviewer/internal/httpapi"
	"github.com/simonealverdi/interviewer/internal/importer"
	"github.com/simonealverdi/interviewer/internal/interview"
	"github.com/simonealverdi/interviewer/internal/llmgateway"
	"github.com/simonealverdi/interviewer/internal/metadata"
	"github.com/simonealverdi/interviewer/internal/nlp"
	"github.com/simonealverdi/interviewer/internal/observe"
	"github.com/simonealverdi/interviewer/internal/orchestration"
	"github.com/simonealverdi/interviewer/internal/persistence"
	"github.com/simonealverdi/interviewer/internal/questionstore"
	"github.com/simonealverdi/interviewer/internal/registry"
	"github.com/simonealverdi/interviewer/internal/resilience"
	"github.com/simonealverdi/interviewer/internal/session"
	"github.com/simonealverdi/interviewer/pkg/provider/embeddings"
	embeddingsollama "github.com/simonealverdi/interviewer/pkg/provider/embeddings/ollama"
	embeddingsopenai "github.com/simonealverdi/interviewer/pkg/provider/embeddings/openai"
	"github.com/simonealverdi/interviewer/pkg/provider/llm"
	"github.com/simonealverdi/interviewer/pkg/provider/llm/anyllm"
	llmopenai "github.com/simonealverdi/interviewer/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "interviewer: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "interviewer: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("interviewer starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── OTel providers ─────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "interviewer"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to initialise metrics instruments", "err", err)
		return 1
	}

	// ── Provider registry + construction ──────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Core domain wiring ─────────────────────────────────────────────────────
	gw := llmgateway.New(providers.LLM, llmgateway.Config{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		MaxRetries:  cfg.LLM.MaxRetries,
	})
	parser := nlp.New(providers.Embeddings)
	mb := metadata.New(providers.Embeddings)

	store := questionstore.New()

	detector := buildDetector(cfg, gw, parser)

	notes := session.NewContextManager(session.ContextManagerConfig{
		MaxTokens:  8000,
		Summariser: session.NewLLMSummariser(providers.LLM),
	})

	factory := func() *interview.Controller {
		return interview.New(interview.Config{
			Store:            store,
			Detector:         detector,
			Gateway:          gw,
			Notes:            notes,
			ThresholdPercent: cfg.Coverage.CoverageThresholdPercent,
		})
	}
	sessions := registry.New(factory)

	ttsVoice := ""
	if v, ok := cfg.Providers.TTS.Options["voice"].(string); ok {
		ttsVoice = v
	}

	var sink persistence.Sink = persistence.NoopSink{}
	if cfg.Analytics.PostgresDSN != "" {
		pgSink, err := persistence.NewPostgresSink(ctx, cfg.Analytics.PostgresDSN, cfg.Analytics.EmbeddingDimensions)
		if err != nil {
			slog.Warn("failed to connect analytics postgres sink, falling back to no-op", "err", err)
		} else {
			sink = pgSink
			defer pgSink.Close()
		}
	}

	orch := orchestration.New(store, gw, mb, sessions, cfg.Providers.TTS.BaseURL, ttsVoice, cfg.Analytics.DumpPath, sink)

	// ── Optional bootstrap question load ──────────────────────────────────────
	if cfg.Questions.SourcePath != "" {
		if err := bootstrapQuestions(ctx, orch, cfg.Questions.SourcePath); err != nil {
			slog.Warn("failed to bootstrap questions from configured source", "path", cfg.Questions.SourcePath, "err", err)
		}
	}

	// ── HTTP transport ─────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.New(orch).Register(mux)
	health.New(health.Checker{
		Name: "questions",
		Check: func(context.Context) error {
			if store.Len() == 0 {
				return errors.New("no question script loaded")
			}
			return nil
		},
	}).Register(mux)

	printStartupSummary(cfg)

	handler := observe.Middleware(metrics)(mux)
	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", cfg.Server.ListenAddr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the provider names logged
// at startup. Only the LLM and embeddings names have factories registered
// below; the STT and TTS names have no implementation in this binary.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"embeddings": {"openai", "ollama"},
	"stt":        {"whisper", "deepgram"},
	"tts":        {"elevenlabs", "coqui"},
}

// registerBuiltinProviders logs the registered names as a placeholder, then
// actually registers the LLM/embeddings factories this binary ships with.
// STT/TTS are narrow external collaborators (spec.md §1) with no concrete
// backend wired into the hot path; their registry slots stay empty.
func registerBuiltinProviders(reg *config.Registry) {
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []llmopenai.Option{}
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterLLM("anthropic", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewAnthropic(entry.Model)
	})
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewOllama(entry.Model)
	})
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewGemini(entry.Model)
	})
	reg.RegisterLLM("deepseek", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewDeepSeek(entry.Model)
	})
	reg.RegisterLLM("mistral", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewMistral(entry.Model)
	})
	reg.RegisterLLM("groq", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewGroq(entry.Model)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		opts := []embeddingsopenai.Option{}
		if entry.BaseURL != "" {
			opts = append(opts, embeddingsopenai.WithBaseURL(entry.BaseURL))
		}
		return embeddingsopenai.New(entry.APIKey, entry.Model, opts...)
	})
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return embeddingsollama.New(entry.BaseURL, entry.Model)
	})
}

// providerSet holds the fully-constructed, fallback-wrapped collaborators
// the domain layer consumes.
type providerSet struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// buildProviders instantiates the configured LLM and embeddings providers,
// wrapping the LLM provider in an [resilience.LLMFallback] so a transient
// backend failure degrades rather than aborting the enrichment pipeline or
// an in-flight interview turn.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		fb := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Name:         "llm-" + name,
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
				HalfOpenMax:  3,
			},
		})
		ps.LLM = fb
		slog.Info("provider created", "kind", "llm", "name", name)
	} else {
		return nil, errors.New("providers.llm.name is required")
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// buildDetector selects the Topic Coverage Engine's detector implementation
// per cfg.Coverage.Detector (spec.md §4.6: both are always compiled in,
// behind one interface).
func buildDetector(cfg *config.Config, gw *llmgateway.Gateway, parser *nlp.Parser) coverage.Detector {
	if cfg.Coverage.Detector == "llm_arbiter" {
		return coverage.NewArbiterDetector(gw, cfg.Coverage.DontKnowPhrases, cfg.Coverage.RepeatedQuestionPhrases)
	}
	return coverage.NewCascade(coverage.Thresholds{
		Fuzzy:    cfg.Coverage.FuzzyThreshold,
		Cosine:   cfg.Coverage.CosineThreshold,
		Adaptive: cfg.Coverage.AdaptiveThresholds,
	}, parser)
}

// bootstrapQuestions loads the question script named by path at startup,
// the same operation POST /questions/load exposes over HTTP.
func bootstrapQuestions(ctx context.Context, orch *orchestration.Orchestrator, path string) error {
	format, err := importer.DetectFormat(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := orch.LoadQuestions(ctx, f, format)
	if err != nil {
		return err
	}
	slog.Info("questions loaded", "count", result.Count)
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      interviewer — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Detector        : %-19s ║\n", detectorLabel(cfg.Coverage.Detector))
	fmt.Printf("║  Coverage thresh : %-19.1f ║\n", cfg.Coverage.CoverageThresholdPercent)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func detectorLabel(d string) string {
	if d == "" {
		return "cascade"
	}
	return d
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
