// Package coverage implements the Topic Coverage Engine: given an utterance
// and a set of topic objects derived from one question's subtopics, it
// decides which subtopics the utterance addresses.
//
// Two detectors share the [Detector] interface (spec.md §4.6): the
// three-tier [Cascade] (exact lemma -> fuzzy -> cosine) and the
// [ArbiterDetector], which defers the decision to an LLM with an
// intentionally asymmetric "only the focus subtopic counts" rule. Which one
// runs is a configuration choice (config.CoverageConfig.Detector); both are
// always compiled in, behind the same interface.
package coverage

import (
	"context"

	"github.com/simonealverdi/interviewer/internal/question"
)

// Result is the outcome of a coverage detection pass: the subset of topics
// deemed covered and the resulting coverage fraction in [0,1].
type Result struct {
	// Covered holds the name of every topic judged covered.
	Covered map[string]struct{}

	// Coverage is 1 - |uncovered|/|topics|. Defined as 0 for an empty topic
	// list.
	Coverage float64
}

// Detector decides which of a question's topics a free-form utterance
// covers.
//
// focus names the subtopic the current turn is specifically probing (the
// target of the last follow-up question), or "" on a fresh main-question
// turn where no subtopic is yet singled out. The cascade detector ignores
// focus entirely; the LLM arbiter detector's short-circuit and "T-and-equals-
// focus" rules depend on it (spec.md §4.6.2).
type Detector interface {
	Detect(ctx context.Context, utterance string, topics []question.Topic, focus string) (Result, error)
}

// CoverageFraction computes 1 - |topics - covered| / |topics|, returning 0
// for an empty topic list.
func CoverageFraction(topics []question.Topic, covered map[string]struct{}) float64 {
	if len(topics) == 0 {
		return 0
	}
	remaining := 0
	for _, t := range topics {
		if _, ok := covered[t.Name]; !ok {
			remaining++
		}
	}
	return 1 - float64(remaining)/float64(len(topics))
}

// allCovered marks every topic in topics as covered.
func allCovered(topics []question.Topic) map[string]struct{} {
	out := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		out[t.Name] = struct{}{}
	}
	return out
}
