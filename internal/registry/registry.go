// Package registry implements the Session Registry: a concurrent map from a
// caller-supplied user id to that user's single active [interview.Controller]
// (spec.md §4.8). Entries are per-user and mutated under one registry-wide lock;
// there is no cross-session shared mutable state.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/simonealverdi/interviewer/internal/interview"
)

// ErrUnknownSession is returned by [Registry.ByID] for a session id that was
// never issued by Get/Start, or that has since been replaced by a Reset.
var ErrUnknownSession = errors.New("registry: unknown session")

// Factory builds a fresh [interview.Controller] bound to the current
// Question Store snapshot. The registry calls it exactly once per new
// session.
type Factory func() *interview.Controller

// Info is the summary [Registry.Info] returns.
type Info struct {
	ActiveSessions int
	IDs            []string
}

// entry pairs a session id with its controller, so Get can be indexed by
// either the user id (the map key) or the session id handed back to callers.
type entry struct {
	sessionID string
	ctrl      *interview.Controller
}

// Registry maps user ids to interview sessions.
type Registry struct {
	factory Factory

	mu       sync.RWMutex
	byUser   map[string]*entry
	bySessID map[string]*entry
}

// New returns an empty Registry that builds new controllers via factory.
func New(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		byUser:   make(map[string]*entry),
		bySessID: make(map[string]*entry),
	}
}

// Get returns the existing session for uid, constructing one bound to the
// current Question Store snapshot if none exists yet. Creation is
// idempotent: calling Get repeatedly for the same uid before a Reset
// returns the same controller and session id.
func (r *Registry) Get(uid string) (sessionID string, ctrl *interview.Controller) {
	r.mu.RLock()
	if e, ok := r.byUser[uid]; ok {
		r.mu.RUnlock()
		return e.sessionID, e.ctrl
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byUser[uid]; ok {
		return e.sessionID, e.ctrl
	}
	e := &entry{sessionID: uuid.NewString(), ctrl: r.factory()}
	r.byUser[uid] = e
	r.bySessID[e.sessionID] = e
	return e.sessionID, e.ctrl
}

// Has reports whether uid currently has a session.
func (r *Registry) Has(uid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[uid]
	return ok
}

// Reset discards uid's existing session, if any, so the next Get constructs
// a fresh controller. Start (spec.md §4.8) is Reset followed by Get.
func (r *Registry) Reset(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byUser[uid]; ok {
		delete(r.bySessID, e.sessionID)
		delete(r.byUser, uid)
	}
}

// Start discards any existing session for uid and constructs a fresh one,
// returning its session id.
func (r *Registry) Start(uid string) string {
	r.Reset(uid)
	sessionID, _ := r.Get(uid)
	return sessionID
}

// ByID returns the controller for a previously issued session id, found via
// [Registry.Get] or [Registry.Start].
func (r *Registry) ByID(sessionID string) (*interview.Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.bySessID[sessionID]
	if !ok {
		return nil, fmt.Errorf("registry: %w: %s", ErrUnknownSession, sessionID)
	}
	return e.ctrl, nil
}

// Info summarizes the registry's current contents.
func (r *Registry) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.bySessID))
	for id := range r.bySessID {
		ids = append(ids, id)
	}
	return Info{ActiveSessions: len(ids), IDs: ids}
}
