package registry_test

import (
	"context"
	"testing"

	"github.com/simonealverdi/interviewer/internal/coverage"
	"github.com/simonealverdi/interviewer/internal/interview"
	"github.com/simonealverdi/interviewer/internal/llmgateway"
	"github.com/simonealverdi/interviewer/internal/question"
	"github.com/simonealverdi/interviewer/internal/questionstore"
	"github.com/simonealverdi/interviewer/internal/registry"
	llmmock "github.com/simonealverdi/interviewer/pkg/provider/llm/mock"
)

type nopDetector struct{}

func (nopDetector) Detect(ctx context.Context, utterance string, topics []question.Topic, focus string) (coverage.Result, error) {
	return coverage.Result{Covered: map[string]struct{}{}, Coverage: 0}, nil
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	store := questionstore.New()
	if _, err := store.Load([]questionstore.Item{{ID: "q-0", Prompt: "Tell me about yourself."}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	gw := llmgateway.New(&llmmock.Provider{}, llmgateway.Config{Temperature: 0.3, MaxTokens: 512, MaxRetries: 3})
	return registry.New(func() *interview.Controller {
		return interview.New(interview.Config{
			Store: store, Detector: nopDetector{}, Gateway: gw, ThresholdPercent: 60,
		})
	})
}

func TestGet_IsIdempotentUntilReset(t *testing.T) {
	r := newRegistry(t)
	sid1, ctrl1 := r.Get("alice")
	sid2, ctrl2 := r.Get("alice")
	if sid1 != sid2 {
		t.Errorf("Get should be idempotent, got session ids %q and %q", sid1, sid2)
	}
	if ctrl1 != ctrl2 {
		t.Errorf("Get should return the same controller instance across calls")
	}
}

func TestStart_ResetsThenGets(t *testing.T) {
	r := newRegistry(t)
	sid1, _ := r.Get("bob")
	sid2 := r.Start("bob")
	if sid1 == sid2 {
		t.Errorf("Start should issue a fresh session id, got the same %q twice", sid1)
	}
	if !r.Has("bob") {
		t.Errorf("expected a session to exist for bob after Start")
	}
}

func TestByID_UnknownSessionErrors(t *testing.T) {
	r := newRegistry(t)
	if _, err := r.ByID("does-not-exist"); err == nil {
		t.Errorf("expected an error for an unknown session id")
	}
}

func TestReset_RemovesSessionFromInfo(t *testing.T) {
	r := newRegistry(t)
	r.Get("carol")
	if info := r.Info(); info.ActiveSessions != 1 {
		t.Fatalf("expected 1 active session, got %d", info.ActiveSessions)
	}
	r.Reset("carol")
	if r.Has("carol") {
		t.Errorf("expected carol's session gone after Reset")
	}
	if info := r.Info(); info.ActiveSessions != 0 {
		t.Errorf("expected 0 active sessions after Reset, got %d", info.ActiveSessions)
	}
}

func TestInfo_TracksMultipleUsers(t *testing.T) {
	r := newRegistry(t)
	r.Get("dave")
	r.Get("erin")
	info := r.Info()
	if info.ActiveSessions != 2 {
		t.Errorf("ActiveSessions = %d, want 2", info.ActiveSessions)
	}
	if len(info.IDs) != 2 {
		t.Errorf("IDs = %v, want 2 entries", info.IDs)
	}
}
