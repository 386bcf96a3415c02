// Package interview implements the Interview Controller: the per-session
// state machine that walks a candidate through a loaded question script,
// deciding turn by turn whether an answer needs a follow-up or the cursor
// should advance (spec.md §4.7).
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/simonealverdi/interviewer/internal/coverage"
	"github.com/simonealverdi/interviewer/internal/llmgateway"
	"github.com/simonealverdi/interviewer/internal/question"
	"github.com/simonealverdi/interviewer/internal/questionstore"
	"github.com/simonealverdi/interviewer/internal/session"
	"github.com/simonealverdi/interviewer/pkg/provider/llm"
)

// State names the controller's coarse state machine position
// (AwaitingFirstPrompt -> ServingQuestion -> AwaitingAnswer -> Evaluating ->
// {ServingQuestion | ServingFollowUp | Completed}).
type State string

const (
	StateAwaitingFirstPrompt State = "awaiting_first_prompt"
	StateServingQuestion     State = "serving_question"
	StateAwaitingAnswer      State = "awaiting_answer"
	StateCompleted           State = "completed"
)

// QuestionType distinguishes what kind of prompt [Controller.CurrentQuestion]
// is currently serving.
type QuestionType string

const (
	TypeMain       QuestionType = "main"
	TypeFollowUp   QuestionType = "follow_up"
	TypeCompletion QuestionType = "completion"
)

// maxConsecutiveFollowUps is the cap on one question before the controller
// force-advances regardless of coverage (spec.md §4.7 edge cases).
const maxConsecutiveFollowUps = 2

// ErrScriptExhausted is not treated as a failure: callers check
// the Type returned by [Controller.CurrentQuestion] for [TypeCompletion] instead of branching on
// this error. It exists for the rare caller that wants an explicit signal.
var ErrScriptExhausted = errors.New("interview: script exhausted")

// ScoreBucket is the coarse, deterministic outcome [Controller.End] assigns
// from the session's coverage history (spec.md §4.7's "coarse bucket"
// fallback, detailed in the supplemented scoring rule).
type ScoreBucket string

const (
	ScoreLow    ScoreBucket = "low"
	ScoreMedium ScoreBucket = "medium"
	ScoreHigh   ScoreBucket = "high"
)

// Bucket thresholds on the mean per-question coverage percentage.
const (
	lowHighBoundary    = 40.0
	mediumHighBoundary = 75.0
)

// Current is what [Controller.CurrentQuestion] hands back to a caller.
type Current struct {
	ID   string
	Text string
	Type QuestionType
}

// SubmitResult is what [Controller.SubmitAnswer] returns for one turn.
type SubmitResult struct {
	NeedsFollowUp    bool
	CoveragePercent  float64
	MissingSubtopics []string
}

// EndResult is the outcome of [Controller.End].
type EndResult struct {
	Score           ScoreBucket
	MeanCoveragePct float64
}

// turnState is the mutable, per-question scratch the controller keeps
// across consecutive follow-up turns on the same question.
type turnState struct {
	followUp           bool
	followUpText       string
	followUpSubtopic   string
	consecutiveFollows int
	missing            []string // per-session view; never written back to the Question
	lastCoveragePct    float64
}

// Controller drives one candidate through one loaded script. It is safe for
// concurrent use: every exported method holds an internal mutex, so
// concurrent requests on the same session serialise (spec.md §5).
type Controller struct {
	mu sync.Mutex

	store     *questionstore.Store
	detector  coverage.Detector
	gw        *llmgateway.Gateway
	questions []string // ordered ids, snapshotted at session start

	thresholdPercent float64

	cursor int
	state  State

	turn      turnState
	answers   map[string][]string
	notes     *session.ContextManager
	coverages []float64 // per answered-question coverage percent, for End's bucket
}

// Config bundles a Controller's collaborators.
type Config struct {
	Store            *questionstore.Store
	Detector         coverage.Detector
	Gateway          *llmgateway.Gateway
	Notes            *session.ContextManager // may be nil; reflection notes become a no-op
	ThresholdPercent float64
}

// New constructs a Controller bound to the ordered id snapshot of store as
// it exists right now (spec.md §4.8: a session is bound to "the current
// Question Store snapshot" at creation time, not a live view of later
// reloads).
func New(cfg Config) *Controller {
	return &Controller{
		store:            cfg.Store,
		detector:         cfg.Detector,
		gw:               cfg.Gateway,
		questions:        cfg.Store.OrderedIDs(),
		thresholdPercent: cfg.ThresholdPercent,
		state:            StateAwaitingFirstPrompt,
		answers:          make(map[string][]string),
		notes:            cfg.Notes,
	}
}

// CurrentQuestion returns the text to deliver next. If a follow-up is
// cached for the current question, it is returned with type follow_up;
// otherwise the question at the cursor is returned with type main. Once
// the cursor has passed the last question, type completion is returned.
func (c *Controller) CurrentQuestion() (Current, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Controller) currentLocked() (Current, error) {
	if c.state == StateCompleted || c.cursor >= len(c.questions) {
		return Current{Type: TypeCompletion}, nil
	}

	id := c.questions[c.cursor]
	q, ok := c.store.Get(id)
	if !ok {
		return Current{}, fmt.Errorf("interview: current question: unknown question id %q", id)
	}

	if c.turn.followUp && c.turn.followUpText != "" {
		c.state = StateServingQuestion
		return Current{ID: id, Text: c.turn.followUpText, Type: TypeFollowUp}, nil
	}

	c.state = StateServingQuestion
	return Current{ID: id, Text: q.Prompt, Type: TypeMain}, nil
}

// SubmitAnswer records text against the question currently being served
// and evaluates coverage against that question's subtopics (the same
// question's subtopics on a follow-up turn — only the prompt text changes,
// spec.md §4.7's edge case). It decides whether to cache a follow-up
// question (cursor held) or advance the cursor.
func (c *Controller) SubmitAnswer(ctx context.Context, text string) (SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCompleted || c.cursor >= len(c.questions) {
		return SubmitResult{}, fmt.Errorf("interview: submit answer: %w", ErrScriptExhausted)
	}

	id := c.questions[c.cursor]
	q, ok := c.store.Get(id)
	if !ok {
		return SubmitResult{}, fmt.Errorf("interview: submit answer: unknown question id %q", id)
	}

	c.answers[id] = append(c.answers[id], text)
	c.addNote(ctx, "candidate", text)

	topics := q.Topics()
	result, err := c.detector.Detect(ctx, text, topics, c.turn.followUpSubtopic)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("interview: submit answer: detect coverage: %w", err)
	}

	missing := remainingSubtopics(topics, result.Covered, c.turn.missing)
	coveragePct := result.Coverage * 100
	c.turn.lastCoveragePct = coveragePct

	needsFollowUp := coveragePct < c.thresholdPercent && len(missing) > 0 && c.turn.consecutiveFollows < maxConsecutiveFollowUps

	if needsFollowUp {
		sub := missing[0]
		followUpText, ferr := c.gw.GenerateFollowUp(ctx, q.Prompt, text, missing)
		if ferr != nil {
			// GenerateFollowUp already falls back to a deterministic
			// question internally; a non-nil error here means even that
			// failed, which should not happen, but degrade gracefully
			// rather than abort the turn.
			followUpText = fmt.Sprintf("Could you tell me more about %q?", sub)
		}
		c.turn.followUp = true
		c.turn.followUpText = followUpText
		c.turn.followUpSubtopic = sub
		c.turn.missing = missing
		c.turn.consecutiveFollows++
		c.addNote(ctx, "interviewer", followUpText)
	} else {
		c.recordCoverage(coveragePct)
		c.turn = turnState{}
		c.cursor = min(c.cursor+1, len(c.questions))
		if c.cursor >= len(c.questions) {
			c.state = StateCompleted
		}
	}

	return SubmitResult{
		NeedsFollowUp:    needsFollowUp,
		CoveragePercent:  coveragePct,
		MissingSubtopics: missing,
	}, nil
}

// End marks the session completed and computes its final score.
func (c *Controller) End(ctx context.Context) EndResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateCompleted
	if c.turn.followUp {
		// A follow-up was in flight when the session ended; its coverage
		// still counts toward the mean.
		c.recordCoverage(c.turn.lastCoveragePct)
		c.turn = turnState{}
	}

	if len(c.coverages) == 0 {
		return EndResult{Score: ScoreLow, MeanCoveragePct: 0}
	}

	var sum float64
	for _, pct := range c.coverages {
		sum += pct
	}
	mean := sum / float64(len(c.coverages))

	return EndResult{Score: bucketFor(mean), MeanCoveragePct: mean}
}

func bucketFor(meanPct float64) ScoreBucket {
	switch {
	case meanPct >= mediumHighBoundary:
		return ScoreHigh
	case meanPct >= lowHighBoundary:
		return ScoreMedium
	default:
		return ScoreLow
	}
}

func (c *Controller) recordCoverage(pct float64) {
	c.coverages = append(c.coverages, pct)
}

func (c *Controller) addNote(ctx context.Context, role, text string) {
	if c.notes == nil || strings.TrimSpace(text) == "" {
		return
	}
	msgRole := "user"
	if role == "interviewer" {
		msgRole = "assistant"
	}
	_ = c.notes.AddMessages(ctx, llm.Message{Role: msgRole, Content: text})
}

// remainingSubtopics computes M = subtopics \ covered, narrowed against
// previouslyMissing so an already-decided topic is never re-tested on a
// later follow-up turn for the same question (spec.md §4.7 step 5: "the
// next turn's missing set shrinks monotonically").
func remainingSubtopics(topics []question.Topic, covered map[string]struct{}, previouslyMissing []string) []string {
	candidates := topics
	if previouslyMissing != nil {
		allowed := make(map[string]struct{}, len(previouslyMissing))
		for _, name := range previouslyMissing {
			allowed[name] = struct{}{}
		}
		candidates = make([]question.Topic, 0, len(topics))
		for _, t := range topics {
			if _, ok := allowed[t.Name]; ok {
				candidates = append(candidates, t)
			}
		}
	}

	out := make([]string, 0, len(candidates))
	for _, t := range candidates {
		if _, ok := covered[t.Name]; !ok {
			out = append(out, t.Name)
		}
	}
	return out
}

