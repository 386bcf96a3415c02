package coverage

import (
	"context"
	"fmt"
	"strings"

	"github.com/simonealverdi/interviewer/internal/nlp"
	"github.com/simonealverdi/interviewer/internal/question"
)

// Thresholds holds the level-2 (fuzzy) and level-3 (cosine) cut-offs the
// cascade detector applies. Values outside the adaptive variant are fixed;
// the adaptive variant derives them per-utterance (spec.md §4.6.1).
type Thresholds struct {
	// Fuzzy is the minimum TokenSortRatio score (0-100) for level 2.
	Fuzzy float64

	// Cosine is the minimum cosine similarity (0-1) for level 3.
	Cosine float64

	// Adaptive selects the word-count/topic-count regime table over the
	// fixed Fuzzy/Cosine values.
	Adaptive bool
}

// Cascade implements the three-tier cascade detector: exact lemma overlap,
// then fuzzy token-sort-ratio, then cosine similarity, in that order. A
// topic removed from consideration at an earlier level is never re-tested
// at a later one (spec.md §4.6.1).
type Cascade struct {
	thresholds Thresholds
	parser     *nlp.Parser
}

// NewCascade returns a [Cascade] using thresholds for levels 2-3 and parser
// to embed the utterance for level 3. parser may be nil, in which case the
// cosine tier is always skipped (no semantic signal).
func NewCascade(thresholds Thresholds, parser *nlp.Parser) *Cascade {
	return &Cascade{thresholds: thresholds, parser: parser}
}

// Detect runs the cascade against utterance. focus is accepted to satisfy
// [Detector] but is not used by the cascade.
func (c *Cascade) Detect(ctx context.Context, utterance string, topics []question.Topic, _ string) (Result, error) {
	if strings.TrimSpace(utterance) == "" || len(topics) == 0 {
		return Result{Covered: map[string]struct{}{}, Coverage: 0}, nil
	}

	normalized := nlp.Normalize(nlp.StripDiacritics(strings.ToLower(utterance)))
	words := strings.Fields(normalized)

	fuzzyTH, cosTH := c.effectiveThresholds(len(words), len(topics))

	remaining := make(map[string]question.Topic, len(topics))
	for _, t := range topics {
		remaining[t.Name] = t
	}
	covered := make(map[string]struct{}, len(topics))

	// Level 1: exact lemma overlap.
	userLemmas := lemmaSet(normalized)
	for name, t := range remaining {
		if t.LemmaSet == nil {
			continue
		}
		if lemmaOverlap(userLemmas, t.LemmaSet) {
			covered[name] = struct{}{}
			delete(remaining, name)
		}
	}

	// Level 2: fuzzy token-sort-ratio.
	for name, t := range remaining {
		if t.FuzzyNorm == "" {
			continue
		}
		if TokenSortRatio(normalized, t.FuzzyNorm) >= fuzzyTH {
			covered[name] = struct{}{}
			delete(remaining, name)
		}
	}

	// Level 3: cosine similarity. Only attempted if any remaining topic
	// actually carries a vector and a parser is configured; an utterance
	// embedding is otherwise wasted work.
	if c.parser != nil && anyHasVector(remaining) {
		result, err := c.parser.Parse(ctx, normalized)
		if err != nil {
			return Result{}, fmt.Errorf("coverage: cascade: embed utterance: %w", err)
		}
		if len(result.Vector) > 0 {
			for name, t := range remaining {
				if len(t.Vector) == 0 {
					continue
				}
				if nlp.Cosine(result.Vector, t.Vector) >= float32(cosTH) {
					covered[name] = struct{}{}
					delete(remaining, name)
				}
			}
		}
	}

	return Result{Covered: covered, Coverage: CoverageFraction(topics, covered)}, nil
}

func anyHasVector(topics map[string]question.Topic) bool {
	for _, t := range topics {
		if len(t.Vector) > 0 {
			return true
		}
	}
	return false
}

// effectiveThresholds returns the fuzzy/cosine cut-offs to apply for an
// utterance of wordCount words against topicCount topics, per spec.md
// §4.6.1's adaptive regime table, or the fixed configured values when
// Adaptive is false.
func (c *Cascade) effectiveThresholds(wordCount, topicCount int) (fuzzy, cosine float64) {
	if !c.thresholds.Adaptive {
		return c.thresholds.Fuzzy, c.thresholds.Cosine
	}

	switch {
	case wordCount < 10:
		fuzzy, cosine = 80, 0.60
	case wordCount < 30:
		fuzzy, cosine = 85, 0.70
	default:
		fuzzy, cosine = 90, 0.75
	}
	if topicCount > 6 {
		fuzzy += 5
		cosine += 0.05
	}
	return fuzzy, cosine
}

// lemmaSet lemmatises every word of normalized text into a set, mirroring
// the Metadata Builder's own lemma derivation.
func lemmaSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		lemma := nlp.Lemmatize(w)
		if lemma == "" {
			continue
		}
		set[lemma] = struct{}{}
	}
	return set
}

// lemmaOverlap reports whether u and l share at least one lemma.
func lemmaOverlap(u, l map[string]struct{}) bool {
	small, big := u, l
	if len(big) < len(small) {
		small, big = big, small
	}
	for lemma := range small {
		if _, ok := big[lemma]; ok {
			return true
		}
	}
	return false
}
