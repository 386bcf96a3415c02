// Package questionstore implements the Question Store: an in-memory ordered
// list of enriched questions, populated immediately with raw text so an
// interview can begin, and progressively filled in by a single background
// worker that enriches one question at a time, index order preserved
// (spec.md §4.5).
//
// Grounded on the teacher's internal/entity/memstore.go concurrency shape
// (RWMutex-guarded map/slice, generated IDs) and internal/config/watcher.go's
// background-loop shape.
package questionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simonealverdi/interviewer/internal/question"
)

// Item is one raw, not-yet-enriched entry admitted by [Store.Load].
type Item struct {
	// ID, if non-empty, is used as the question's stable identifier.
	// Otherwise a fresh UUID is assigned.
	ID string

	// Prompt is the raw question text. Items with an empty (after trimming)
	// prompt are rejected by Load.
	Prompt string
}

// Progress is a snapshot of the background enrichment worker's state
// (spec.md's MetadataProcessingStatus).
type Progress struct {
	// Total is the number of questions admitted by Load.
	Total int

	// Processed is how many questions have completed enrichment so far,
	// in index order. Monotonically non-decreasing.
	Processed int

	// InProgress is true from the moment RunEnrichment starts until the
	// last question in the batch has been processed.
	InProgress bool

	// StartedAt and EndedAt bound the enrichment batch. EndedAt is the zero
	// time while InProgress is true.
	StartedAt time.Time
	EndedAt   time.Time

	// LastError holds the most recent per-question enrichment error
	// message, if any. A question that fails enrichment is still stored
	// (with empty metadata fields) and the worker moves on to the next one
	// (spec.md §7, LLMOutputInvalid).
	LastError string
}

// EnrichFunc enriches one question (identity and prompt already set) and
// returns the enriched form. An error does not abort the batch: the
// returned question (even if only partially filled) is still stored.
type EnrichFunc func(ctx context.Context, q question.Question) (question.Question, error)

// Store holds the ordered question list and enrichment progress for one
// loaded script. The zero value is not usable; construct with [New].
//
// All methods are safe for concurrent use. Readers observe progressive
// enrichment: a question's metadata fields may be empty until the
// background worker reaches it.
type Store struct {
	mu        sync.RWMutex
	questions []question.Question
	index     map[string]int
	progress  Progress
}

// New returns an empty [Store].
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Load admits items into the store, assigning a fresh UUID to any item
// without one, and rejecting items whose prompt is empty after trimming.
// It replaces any previously loaded script and resets progress to an
// unstarted state. Returns the ordered, enriched-so-far (here: metadata-
// empty) question list.
func (s *Store) Load(items []Item) ([]question.Question, error) {
	questions := make([]question.Question, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		prompt := item.Prompt
		if trimmed := trimSpace(prompt); trimmed == "" {
			continue
		}
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("questionstore: load: duplicate question id %q", id)
		}
		q := question.Question{ID: id, Prompt: prompt}
		index[id] = len(questions)
		questions = append(questions, q)
	}

	s.mu.Lock()
	s.questions = questions
	s.index = index
	s.progress = Progress{Total: len(questions)}
	s.mu.Unlock()

	return s.All(), nil
}

// Get returns a copy of the question identified by id, and whether it was
// found.
func (s *Store) Get(id string) (question.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return question.Question{}, false
	}
	return s.questions[i], true
}

// All returns a copy of the ordered question list as it currently stands
// (each question's enrichment fields reflect however far the background
// worker has progressed).
func (s *Store) All() []question.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]question.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// OrderedIDs returns the ids of every loaded question, in load order. This
// is the stable sequence an Interview Controller snapshots at session
// start (spec.md §9: the controller reads enrichment fields live but the
// script order itself is fixed once a session begins).
func (s *Store) OrderedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.ID
	}
	return out
}

// Len returns the number of loaded questions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.questions)
}

// Progress returns a snapshot of the current enrichment progress.
func (s *Store) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// RunEnrichment drives the single-producer background enrichment loop: it
// enriches each loaded question in index order, replacing it in place and
// advancing Processed atomically after each one, so "enrichment for k+1
// does not begin before k completes" (spec.md §5) holds by construction —
// there is exactly one goroutine doing the work, sequentially.
//
// onBatchComplete, if non-nil, is called once with a full snapshot of the
// enriched questions after the last one is processed (or immediately, with
// an empty snapshot, if the store has nothing loaded).
func (s *Store) RunEnrichment(ctx context.Context, enrich EnrichFunc, onBatchComplete func([]question.Question)) {
	n := s.Len()

	s.mu.Lock()
	s.progress.InProgress = true
	s.progress.StartedAt = time.Now()
	s.progress.EndedAt = time.Time{}
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.progress.InProgress = false
			s.progress.LastError = ctx.Err().Error()
			s.mu.Unlock()
			return
		default:
		}

		s.mu.RLock()
		q := s.questions[i]
		s.mu.RUnlock()

		enriched, err := enrich(ctx, q)

		s.mu.Lock()
		s.questions[i] = enriched
		s.progress.Processed = i + 1
		if err != nil {
			s.progress.LastError = err.Error()
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.progress.InProgress = false
	s.progress.EndedAt = time.Now()
	s.mu.Unlock()

	if onBatchComplete != nil {
		onBatchComplete(s.All())
	}
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
