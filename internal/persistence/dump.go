// Package persistence writes the end-of-batch enrichment dump (spec.md §6)
// and, optionally, mirrors per-question vectors into a Postgres/pgvector
// analytics sink. Both are write-only: neither is ever read back to resume a
// session (spec.md §5's Non-goals — no restart recovery).
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/simonealverdi/interviewer/internal/question"
)

// DumpedQuestion is one entry of the persisted JSON dump, matching spec.md
// §6's layout exactly: id, truncated prompt, primary_topic, subtopics,
// keywords, lemma_sets, fuzzy_norms, vectors.
type DumpedQuestion struct {
	ID              string      `json:"id"`
	TruncatedPrompt string      `json:"truncated_prompt"`
	PrimaryTopic    string      `json:"primary_topic"`
	Subtopics       []string    `json:"subtopics"`
	Keywords        [][]string  `json:"keywords"`
	LemmaSets       [][]string  `json:"lemma_sets"`
	FuzzyNorms      []string    `json:"fuzzy_norms"`
	Vectors         [][]float32 `json:"vectors"`
}

// Dump is the root of the persisted JSON file: keyed by the batch's
// timestamp, holding every question processed in that batch.
type Dump struct {
	Timestamp time.Time        `json:"timestamp"`
	Questions []DumpedQuestion `json:"questions"`
}

// truncatedPromptLen matches spec.md §6's "≤100 chars, ellipsis".
const truncatedPromptLen = 100

// BuildDump converts a batch of enriched questions into the persisted dump
// shape, stamped with timestamp (the caller supplies it so this package
// never calls time.Now() itself, keeping it trivially testable).
func BuildDump(timestamp time.Time, questions []question.Question) Dump {
	dumped := make([]DumpedQuestion, len(questions))
	for i, q := range questions {
		dumped[i] = DumpedQuestion{
			ID:              q.ID,
			TruncatedPrompt: q.TruncatedPrompt(truncatedPromptLen),
			PrimaryTopic:    q.PrimaryTopic,
			Subtopics:       q.Subtopics,
			Keywords:        q.Keywords,
			LemmaSets:       lemmaSetsToSortedSlices(q.LemmaSets),
			FuzzyNorms:      q.FuzzyNorms,
			Vectors:         q.Vectors,
		}
	}
	return Dump{Timestamp: timestamp, Questions: dumped}
}

// WriteDump marshals dump as indented JSON and writes it to path, creating
// parent directories as needed.
func WriteDump(path string, dump Dump) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("persistence: write dump: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: write dump: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persistence: write dump: %w", err)
	}
	return nil
}

// lemmaSetsToSortedSlices renders each lemma set as a sorted string slice so
// the persisted JSON is deterministic across runs.
func lemmaSetsToSortedSlices(sets []map[string]struct{}) [][]string {
	out := make([][]string, len(sets))
	for i, set := range sets {
		lemmas := make([]string, 0, len(set))
		for l := range set {
			lemmas = append(lemmas, l)
		}
		sort.Strings(lemmas)
		out[i] = lemmas
	}
	return out
}
