package server

import (
	"sync"

	"github.com/harehare/mq-edit/src/internal/types"
)

type trackerKey struct {
	language string
	kind     types.EventKind
}

type trackedRequest struct {
	id       types.RequestID
	answered bool
}

// requestTracker remembers the latest request issued per language and
// answer kind. Answers to anything older are stale.
type requestTracker struct {
	mu     sync.Mutex
	latest map[trackerKey]*trackedRequest
}

func newRequestTracker() *requestTracker {
	return &requestTracker{latest: make(map[trackerKey]*trackedRequest)}
}

// issue records id as the latest request of kind for language
func (t *requestTracker) issue(language string, kind types.EventKind, id types.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[trackerKey{language, kind}] = &trackedRequest{id: id}
}

// accept reports whether an event answers the latest request of its kind
// and marks that request answered. Events of untracked kinds are accepted.
func (t *requestTracker) accept(language string, event types.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.latest[trackerKey{language, event.Kind}]
	if !ok {
		return !isStaleSensitive(event.Kind)
	}

	if event.RequestID != current.id {
		return !isStaleSensitive(event.Kind)
	}

	current.answered = true
	return true
}

// fail marks the request an error event answers as settled
func (t *requestTracker) fail(language string, id types.RequestID) {
	if id == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, req := range t.latest {
		if key.language == language && req.id == id {
			req.answered = true
		}
	}
}

// awaiting reports whether the latest request of kind is still unanswered
func (t *requestTracker) awaiting(language string, kind types.EventKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.latest[trackerKey{language, kind}]
	return ok && !current.answered
}

// forget drops everything tracked for a language
func (t *requestTracker) forget(language string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.latest {
		if key.language == language {
			delete(t.latest, key)
		}
	}
}

// isStaleSensitive lists the answer kinds where only the newest one matters
func isStaleSensitive(kind types.EventKind) bool {
	return kind == types.EventCompletion || kind == types.EventDefinition
}
