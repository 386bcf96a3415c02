// Package orchestration implements the five operations spec.md §4.9 groups
// under the orchestration surface: load_questions, start, next_question,
// submit_answer, and end. It is the seam between a transport layer
// (internal/httpapi) and the Question Store / Interview Controller / Session
// Registry underneath.
package orchestration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/simonealverdi/interviewer/internal/importer"
	"github.com/simonealverdi/interviewer/internal/interview"
	"github.com/simonealverdi/interviewer/internal/llmgateway"
	"github.com/simonealverdi/interviewer/internal/metadata"
	"github.com/simonealverdi/interviewer/internal/persistence"
	"github.com/simonealverdi/interviewer/internal/question"
	"github.com/simonealverdi/interviewer/internal/questionstore"
	"github.com/simonealverdi/interviewer/internal/registry"
)

// Orchestrator wires the Question Store, LLM Gateway, and Session Registry
// behind the five spec.md §4.9 operations.
type Orchestrator struct {
	store    *questionstore.Store
	gw       *llmgateway.Gateway
	mb       *metadata.Builder
	registry *registry.Registry

	// ttsBaseURL is the TTS endpoint's base URL; any returned text carries a
	// companion URL built from it, never the audio bytes themselves
	// (spec.md §4.9).
	ttsBaseURL string
	ttsVoice   string

	// dumpPath, if non-empty, is where each completed enrichment batch is
	// persisted as JSON (spec.md §6). sink optionally mirrors the same batch
	// into an analytics store; it defaults to a no-op.
	dumpPath string
	sink     persistence.Sink
}

// New constructs an Orchestrator. reg's own factory (set at
// [registry.New]) must close over store/gw/detector/threshold to build
// fresh [interview.Controller]s. dumpPath may be empty to skip the JSON
// dump; sink may be nil to skip analytics mirroring (a [persistence.NoopSink]
// is used in that case).
func New(store *questionstore.Store, gw *llmgateway.Gateway, mb *metadata.Builder, reg *registry.Registry, ttsBaseURL, ttsVoice, dumpPath string, sink persistence.Sink) *Orchestrator {
	if sink == nil {
		sink = persistence.NoopSink{}
	}
	return &Orchestrator{store: store, gw: gw, mb: mb, registry: reg, ttsBaseURL: ttsBaseURL, ttsVoice: ttsVoice, dumpPath: dumpPath, sink: sink}
}

// LoadQuestionsResult is returned by [Orchestrator.LoadQuestions].
type LoadQuestionsResult struct {
	Count         int
	FirstQuestion *QuestionView
}

// QuestionView is a transport-friendly rendering of one question turn,
// including its TTS side-channel URL (spec.md §4.9: "audio is a side
// channel... audio bytes themselves are not embedded").
type QuestionView struct {
	ID       string
	Text     string
	Type     string
	AudioURL string
}

// LoadQuestions parses r (in the given format), populates the Question
// Store, and kicks off background enrichment in a new goroutine — it does
// not wait for enrichment to finish before returning, since the
// first-delivered question only needs its prompt text (spec.md §4.5).
func (o *Orchestrator) LoadQuestions(ctx context.Context, r io.Reader, format importer.Format) (LoadQuestionsResult, error) {
	prompts, err := importer.ExtractPrompts(r, format)
	if err != nil {
		return LoadQuestionsResult{}, fmt.Errorf("orchestration: load questions: %w", err)
	}

	items := make([]questionstore.Item, len(prompts))
	for i, p := range prompts {
		items[i] = questionstore.Item{Prompt: p}
	}

	questions, err := o.store.Load(items)
	if err != nil {
		return LoadQuestionsResult{}, fmt.Errorf("orchestration: load questions: %w", err)
	}

	go o.store.RunEnrichment(context.WithoutCancel(ctx), questionstore.NewLLMEnricher(o.gw, o.mb), o.persistBatch)

	result := LoadQuestionsResult{Count: len(questions)}
	if len(questions) > 0 {
		q := questions[0]
		view := o.view(q.ID, q.Prompt, "main")
		result.FirstQuestion = &view
	}
	return result, nil
}

// QuestionsStatus is returned by the questions/status surface.
type QuestionsStatus struct {
	Total            int
	Processed        int
	CompletionPct    float64
	InProgress       bool
	ElapsedSeconds   float64
	PerQuestionReady []bool
}

// Status reports the background enrichment worker's current progress.
func (o *Orchestrator) Status() QuestionsStatus {
	p := o.store.Progress()
	status := QuestionsStatus{Total: p.Total, Processed: p.Processed, InProgress: p.InProgress}
	if p.Total > 0 {
		status.CompletionPct = 100 * float64(p.Processed) / float64(p.Total)
	}
	if !p.StartedAt.IsZero() {
		ref := p.EndedAt
		if p.InProgress {
			ref = time.Now()
		}
		status.ElapsedSeconds = ref.Sub(p.StartedAt).Seconds()
	}

	ready := make([]bool, 0, p.Total)
	for _, q := range o.store.All() {
		ready = append(ready, q.Enriched())
	}
	status.PerQuestionReady = ready
	return status
}

// Start begins a new interview session for uid, discarding any prior one
// (spec.md §4.8: "start internally calls reset then get").
func (o *Orchestrator) Start(uid string) string {
	return o.registry.Start(uid)
}

// NextQuestion returns the next prompt to deliver for sid.
func (o *Orchestrator) NextQuestion(sessionID string) (QuestionView, error) {
	ctrl, err := o.registry.ByID(sessionID)
	if err != nil {
		return QuestionView{}, fmt.Errorf("orchestration: next question: %w", err)
	}
	cur, err := ctrl.CurrentQuestion()
	if err != nil {
		return QuestionView{}, fmt.Errorf("orchestration: next question: %w", err)
	}
	return o.view(cur.ID, cur.Text, string(cur.Type)), nil
}

// SubmitAnswer records text against qid within sid's session. qid is
// accepted for the transport contract (spec.md §6: "POST
// /interview/answer?sid&qid") but the controller tracks its own cursor
// internally, so a mismatched qid only ever indicates a stale client view,
// not a server-side ambiguity.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, sessionID, qid, text string) (interview.SubmitResult, error) {
	ctrl, err := o.registry.ByID(sessionID)
	if err != nil {
		return interview.SubmitResult{}, fmt.Errorf("orchestration: submit answer: %w", err)
	}
	result, err := ctrl.SubmitAnswer(ctx, text)
	if err != nil {
		return interview.SubmitResult{}, fmt.Errorf("orchestration: submit answer: %w", err)
	}
	return result, nil
}

// End finalizes sid's session and returns its score.
func (o *Orchestrator) End(ctx context.Context, sessionID string) (interview.EndResult, error) {
	ctrl, err := o.registry.ByID(sessionID)
	if err != nil {
		return interview.EndResult{}, fmt.Errorf("orchestration: end: %w", err)
	}
	return ctrl.End(ctx), nil
}

// persistBatch is the background enrichment worker's onBatchComplete
// callback: it writes the spec.md §6 JSON dump (if dumpPath is configured)
// and mirrors each question into the analytics sink. Both are best-effort —
// a failure here must not take down the enrichment worker, so it only logs.
func (o *Orchestrator) persistBatch(questions []question.Question) {
	if o.dumpPath != "" {
		dump := persistence.BuildDump(time.Now(), questions)
		if err := persistence.WriteDump(o.dumpPath, dump); err != nil {
			slog.Warn("orchestration: failed to write enrichment dump", "error", err)
		}
	}

	ctx := context.Background()
	for _, q := range questions {
		dumped := persistence.BuildDump(time.Now(), []question.Question{q}).Questions[0]
		if err := o.sink.IndexQuestion(ctx, dumped); err != nil {
			slog.Warn("orchestration: failed to index question into analytics sink", "id", q.ID, "error", err)
		}
	}
}

// view renders a question turn plus its TTS side-channel URL.
func (o *Orchestrator) view(id, text, qType string) QuestionView {
	return QuestionView{ID: id, Text: text, Type: qType, AudioURL: o.audioURL(text)}
}

// audioURL builds the companion TTS URL for text: the query string carries
// the text and voice, never the synthesized audio bytes themselves
// (spec.md §4.9).
func (o *Orchestrator) audioURL(text string) string {
	if o.ttsBaseURL == "" || text == "" {
		return ""
	}
	q := url.Values{}
	q.Set("text", text)
	if o.ttsVoice != "" {
		q.Set("voice", o.ttsVoice)
	}
	return o.ttsBaseURL + "?" + q.Encode()
}
