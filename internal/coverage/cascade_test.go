package coverage_test

import (
	"context"
	"testing"

	"github.com/simonealverdi/interviewer/internal/coverage"
	"github.com/simonealverdi/interviewer/internal/metadata"
	"github.com/simonealverdi/interviewer/internal/nlp"
	"github.com/simonealverdi/interviewer/internal/question"
	embeddingsmock "github.com/simonealverdi/interviewer/pkg/provider/embeddings/mock"
)

func buildTopics(t *testing.T, ctx context.Context, subtopics map[string][]string) []question.Topic {
	t.Helper()
	mb := metadata.New(nil)
	topics := make([]question.Topic, 0, len(subtopics))
	for name, keywords := range subtopics {
		md := mb.Build(ctx, keywords)
		topics = append(topics, question.Topic{
			Name:      name,
			Keywords:  keywords,
			LemmaSet:  md.LemmaSet,
			FuzzyNorm: md.FuzzyNorm,
		})
	}
	return topics
}

func TestCascade_EmptyUtterance(t *testing.T) {
	ctx := context.Background()
	topics := buildTopics(t, ctx, map[string][]string{"role": {"team lead"}})
	c := coverage.NewCascade(coverage.Thresholds{Fuzzy: 90, Cosine: 0.75}, nil)

	result, err := c.Detect(ctx, "", topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Covered) != 0 || result.Coverage != 0 {
		t.Errorf("empty utterance: got covered=%v coverage=%v, want empty/0", result.Covered, result.Coverage)
	}
}

func TestCascade_EmptyTopics(t *testing.T) {
	ctx := context.Background()
	c := coverage.NewCascade(coverage.Thresholds{Fuzzy: 90, Cosine: 0.75}, nil)
	result, err := c.Detect(ctx, "I led the team", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Covered) != 0 || result.Coverage != 0 {
		t.Errorf("empty topics: got covered=%v coverage=%v, want empty/0", result.Covered, result.Coverage)
	}
}

func TestCascade_ExactLemmaOverlap(t *testing.T) {
	ctx := context.Background()
	topics := buildTopics(t, ctx, map[string][]string{
		"role":    {"leadership", "leading a team"},
		"stack":   {"golang", "backend"},
		"outcome": {"shipped on time"},
	})
	c := coverage.NewCascade(coverage.Thresholds{Fuzzy: 90, Cosine: 0.75}, nil)

	result, err := c.Detect(ctx, "I led the backend team using Go and shipped the feature on time.", topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Coverage != 1 {
		t.Errorf("coverage = %v, want 1 (all three subtopics covered)", result.Coverage)
	}
	for _, name := range []string{"role", "stack", "outcome"} {
		if _, ok := result.Covered[name]; !ok {
			t.Errorf("expected %q covered, got %v", name, result.Covered)
		}
	}
}

func TestCascade_PartialCoverage(t *testing.T) {
	ctx := context.Background()
	topics := buildTopics(t, ctx, map[string][]string{
		"role":    {"leadership", "leading a team"},
		"stack":   {"golang", "backend"},
		"outcome": {"shipped on time"},
	})
	c := coverage.NewCascade(coverage.Thresholds{Fuzzy: 90, Cosine: 0.75}, nil)

	result, err := c.Detect(ctx, "I led the team.", topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.Covered["role"]; !ok {
		t.Errorf("expected role covered, got %v", result.Covered)
	}
	if _, ok := result.Covered["stack"]; ok {
		t.Errorf("did not expect stack covered, got %v", result.Covered)
	}
	if result.Coverage <= 0 || result.Coverage >= 1 {
		t.Errorf("coverage = %v, want strictly between 0 and 1", result.Coverage)
	}
}

func TestCascade_Monotonicity(t *testing.T) {
	ctx := context.Background()
	topics := buildTopics(t, ctx, map[string][]string{
		"role":  {"team leadership responsibilities"},
		"stack": {"distributed systems architecture"},
	})
	utterance := "I handled team leadership and some architecture work."

	strict := coverage.NewCascade(coverage.Thresholds{Fuzzy: 95, Cosine: 0.95}, nil)
	loose := coverage.NewCascade(coverage.Thresholds{Fuzzy: 40, Cosine: 0.10}, nil)

	strictResult, err := strict.Detect(ctx, utterance, topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	looseResult, err := loose.Detect(ctx, utterance, topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name := range strictResult.Covered {
		if _, ok := looseResult.Covered[name]; !ok {
			t.Errorf("monotonicity violated: %q covered at strict thresholds but not loose ones", name)
		}
	}
}

func TestCascade_DegenerateTopicSkipsCosine(t *testing.T) {
	ctx := context.Background()
	// A topic with no lemma set, no fuzzy norm, and no vector (as produced by
	// EmbeddingUnavailable per spec.md §7) must never be covered, and must
	// not crash the cascade.
	topics := []question.Topic{{Name: "obscure"}}
	c := coverage.NewCascade(coverage.Thresholds{Fuzzy: 10, Cosine: 0.01}, nil)

	result, err := c.Detect(ctx, "something entirely unrelated to anything", topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Covered) != 0 {
		t.Errorf("degenerate topic should never be covered, got %v", result.Covered)
	}
}

func TestCascade_AdaptiveThresholds_ShortUtterance(t *testing.T) {
	ctx := context.Background()
	topics := buildTopics(t, ctx, map[string][]string{"role": {"engineering leadership"}})
	c := coverage.NewCascade(coverage.Thresholds{Adaptive: true}, nil)

	// The utterance below is short (< 10 words); the adaptive table relaxes
	// thresholds for short utterances, which should still not cover a wholly
	// unrelated topic.
	result, err := c.Detect(ctx, "completely different subject matter here", topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Covered) != 0 {
		t.Errorf("unrelated utterance should not cover role, got %v", result.Covered)
	}
}

func TestCascade_CosineTierCoversSemanticParaphrase(t *testing.T) {
	ctx := context.Background()

	// A fixed embedding shared by the topic's fuzzy_norm and the utterance:
	// wholly different wording, same vector, so only level 3 (cosine) can
	// possibly cover it — lemma overlap and fuzzy ratio both miss.
	embed := &embeddingsmock.Provider{EmbedResult: []float32{1, 2, 3}}
	mb := metadata.New(embed)
	md := mb.Build(ctx, []string{"owned the migration end to end"})
	topics := []question.Topic{{Name: "ownership", Keywords: []string{"owned the migration end to end"}, LemmaSet: md.LemmaSet, FuzzyNorm: md.FuzzyNorm, Vector: md.UnitVector}}

	parser := nlp.New(embed)
	c := coverage.NewCascade(coverage.Thresholds{Fuzzy: 99, Cosine: 0.9}, parser)

	result, err := c.Detect(ctx, "I drove that rollout from start to finish myself", topics, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.Covered["ownership"]; !ok {
		t.Errorf("expected cosine tier to cover a paraphrased utterance sharing the topic's embedding, got %v", result.Covered)
	}
	if len(embed.EmbedCalls) == 0 {
		t.Error("expected the cascade to embed the utterance for the cosine tier")
	}
}

func TestTokenSortRatio_OrderInsensitive(t *testing.T) {
	a := "backend golang team"
	b := "team golang backend"
	if got := coverage.TokenSortRatio(a, b); got != 100 {
		t.Errorf("TokenSortRatio(%q, %q) = %v, want 100 (token-order should not matter)", a, b, got)
	}
}

func TestMetadataBuilderStability(t *testing.T) {
	// Sanity check the fixture helper itself stays stable, since the cascade
	// tests above depend on deterministic fuzzy_norm/lemma_set output.
	ctx := context.Background()
	mb := metadata.New(nil)
	kw := []string{"Café", "Résumé  Writing"}
	first := mb.Build(ctx, kw)
	second := mb.Build(ctx, kw)
	if first.FuzzyNorm != second.FuzzyNorm {
		t.Errorf("fuzzy_norm not stable: %q vs %q", first.FuzzyNorm, second.FuzzyNorm)
	}
	if nlp.Normalize(first.FuzzyNorm) != first.FuzzyNorm {
		t.Errorf("fuzzy_norm not idempotent under Normalize: %q", first.FuzzyNorm)
	}
}
