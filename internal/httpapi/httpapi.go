// Package httpapi implements spec.md §6's HTTP-style operation surface over
// net/http.ServeMux using Go 1.22+ method-pattern routing, grounded on the
// teacher's internal/health.Handler.Register shape. It is an ambient outer
// surface, not core scope (spec.md §1 excludes "the HTTP transport and
// authentication layer"): no auth logic lives here.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/simonealverdi/interviewer/internal/importer"
	"github.com/simonealverdi/interviewer/internal/orchestration"
	"github.com/simonealverdi/interviewer/internal/registry"
)

// maxUploadBytes bounds a /questions/load request body.
const maxUploadBytes = 32 << 20 // 32 MiB

// Handler serves the six interview endpoints over an *orchestration.Orchestrator.
type Handler struct {
	orch *orchestration.Orchestrator
}

// New returns a Handler backed by orch.
func New(orch *orchestration.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// Register adds the interview routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /questions/load", h.loadQuestions)
	mux.HandleFunc("GET /questions/status", h.questionsStatus)
	mux.HandleFunc("POST /interview/start", h.start)
	mux.HandleFunc("GET /interview/next", h.nextQuestion)
	mux.HandleFunc("POST /interview/answer", h.submitAnswer)
	mux.HandleFunc("POST /interview/end", h.end)
}

// loadQuestionsResponse is the POST /questions/load response body.
type loadQuestionsResponse struct {
	Count         int                         `json:"count"`
	FirstQuestion *orchestration.QuestionView `json:"first_question,omitempty"`
}

func (h *Handler) loadQuestions(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = r.Header.Get("X-Filename")
	}
	format, err := importer.DetectFormat(filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orch.LoadQuestions(r.Context(), bytes.NewReader(data), format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, loadQuestionsResponse{Count: result.Count, FirstQuestion: result.FirstQuestion})
}

func (h *Handler) questionsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Status())
}

// startResponse is the POST /interview/start response body.
type startResponse struct {
	InterviewID string `json:"interview_id"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, errors.New("httpapi: start: missing uid"))
		return
	}
	sessionID := h.orch.Start(uid)
	writeJSON(w, http.StatusOK, startResponse{InterviewID: sessionID})
}

func (h *Handler) nextQuestion(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		writeError(w, http.StatusBadRequest, errors.New("httpapi: next question: missing sid"))
		return
	}
	view, err := h.orch.NextQuestion(sid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// submitAnswerResponse is the POST /interview/answer response body — an
// acknowledgement plus the coverage decision, so a caller doesn't need a
// second round trip to learn whether a follow-up is coming.
type submitAnswerResponse struct {
	Ack              bool     `json:"ack"`
	NeedsFollowUp    bool     `json:"needs_follow_up"`
	CoveragePercent  float64  `json:"coverage_percent"`
	MissingSubtopics []string `json:"missing_subtopics"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	qid := r.URL.Query().Get("qid")
	if sid == "" {
		writeError(w, http.StatusBadRequest, errors.New("httpapi: submit answer: missing sid"))
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.orch.SubmitAnswer(r.Context(), sid, qid, string(data))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, submitAnswerResponse{
		Ack:              true,
		NeedsFollowUp:    result.NeedsFollowUp,
		CoveragePercent:  result.CoveragePercent,
		MissingSubtopics: result.MissingSubtopics,
	})
}

// endResponse is the POST /interview/end response body.
type endResponse struct {
	Score           string  `json:"score"`
	MeanCoveragePct float64 `json:"mean_coverage_percent"`
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		writeError(w, http.StatusBadRequest, errors.New("httpapi: end: missing sid"))
		return
	}
	result, err := h.orch.End(r.Context(), sid)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, endResponse{Score: string(result.Score), MeanCoveragePct: result.MeanCoveragePct})
}

// statusFor maps a known sentinel error to its HTTP status; anything else is
// a 500.
func statusFor(err error) int {
	if errors.Is(err, registry.ErrUnknownSession) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON and writes it with the given status code,
// mirroring internal/health's writeJSON helper.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
