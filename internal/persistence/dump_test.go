package persistence_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/simonealverdi/interviewer/internal/persistence"
	"github.com/simonealverdi/interviewer/internal/question"
)

func TestBuildDump_TruncatesPromptAndSortsLemmas(t *testing.T) {
	longPrompt := ""
	for i := 0; i < 150; i++ {
		longPrompt += "a"
	}
	q := question.Question{
		ID:           "q-1",
		Prompt:       longPrompt,
		PrimaryTopic: "leadership",
		Subtopics:    []string{"role"},
		Keywords:     [][]string{{"team"}},
		LemmaSets:    []map[string]struct{}{{"team": {}, "lead": {}}},
		FuzzyNorms:   []string{"team lead"},
		Vectors:      [][]float32{{0.1, 0.2}},
	}

	dump := persistence.BuildDump(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), []question.Question{q})
	if len(dump.Questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(dump.Questions))
	}
	dq := dump.Questions[0]
	if len(dq.TruncatedPrompt) > 103 { // at most 100 runes; the trailing "…" is 3 bytes
		t.Errorf("TruncatedPrompt too long: %d chars", len(dq.TruncatedPrompt))
	}
	if len(dq.LemmaSets) != 1 || len(dq.LemmaSets[0]) != 2 {
		t.Fatalf("LemmaSets = %v, want one set of 2 lemmas", dq.LemmaSets)
	}
	if dq.LemmaSets[0][0] != "lead" || dq.LemmaSets[0][1] != "team" {
		t.Errorf("lemma set not sorted: %v", dq.LemmaSets[0])
	}
}

func TestWriteDump_CreatesParentDirAndValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dump.json")

	dump := persistence.BuildDump(time.Now(), []question.Question{{ID: "q-1", Prompt: "hello"}})
	if err := persistence.WriteDump(path, dump); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var roundTripped persistence.Dump
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("written file is not valid JSON: %v", err)
	}
	if len(roundTripped.Questions) != 1 || roundTripped.Questions[0].ID != "q-1" {
		t.Errorf("round-tripped dump = %+v", roundTripped)
	}
}

func TestNoopSink_NeverErrors(t *testing.T) {
	var s persistence.Sink = persistence.NoopSink{}
	if err := s.IndexQuestion(context.Background(), persistence.DumpedQuestion{ID: "q-1"}); err != nil {
		t.Errorf("NoopSink.IndexQuestion: %v", err)
	}
	s.Close()
}
