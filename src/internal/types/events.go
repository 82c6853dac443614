package types

import (
	"fmt"
	"sync"

	"go.lsp.dev/protocol"
)

// RequestID identifies an outbound request. Events answering a request carry
// its id so callers can match late answers to the interaction that asked.
// Zero means the event was not solicited by a request.
type RequestID int64

// EventKind discriminates the Event union
type EventKind int

const (
	EventDiagnostics EventKind = iota + 1
	EventSemanticTokens
	EventCompletion
	EventDefinition
	EventReferences
	EventInitialized
	EventError
)

var eventKindNames = map[EventKind]string{
	EventDiagnostics:    "diagnostics",
	EventSemanticTokens: "semantic_tokens",
	EventCompletion:     "completion",
	EventDefinition:     "definition",
	EventReferences:     "references",
	EventInitialized:    "initialized",
	EventError:          "error",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a result or notification produced by a Backend. Only the fields
// belonging to Kind are populated.
type Event struct {
	Kind      EventKind
	RequestID RequestID

	// EventDiagnostics, EventSemanticTokens
	URI protocol.DocumentURI

	// EventDiagnostics
	Diagnostics []protocol.Diagnostic

	// EventSemanticTokens
	Tokens *protocol.SemanticTokens

	// EventCompletion
	Completion *protocol.CompletionList

	// EventDefinition, EventReferences
	Locations []protocol.Location

	// EventInitialized
	TriggerCharacters []string

	// EventError
	Message string
}

// NewDiagnosticsEvent creates a diagnostics snapshot for one document
func NewDiagnosticsEvent(uri protocol.DocumentURI, diagnostics []protocol.Diagnostic) Event {
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	return Event{Kind: EventDiagnostics, URI: uri, Diagnostics: diagnostics}
}

// NewSemanticTokensEvent creates a semantic tokens answer
func NewSemanticTokensEvent(id RequestID, uri protocol.DocumentURI, tokens *protocol.SemanticTokens) Event {
	if tokens == nil {
		tokens = &protocol.SemanticTokens{Data: []uint32{}}
	}
	return Event{Kind: EventSemanticTokens, RequestID: id, URI: uri, Tokens: tokens}
}

// NewCompletionEvent creates a completion answer
func NewCompletionEvent(id RequestID, list *protocol.CompletionList) Event {
	if list == nil {
		list = &protocol.CompletionList{Items: []protocol.CompletionItem{}}
	}
	return Event{Kind: EventCompletion, RequestID: id, Completion: list}
}

// NewDefinitionEvent creates a definition answer
func NewDefinitionEvent(id RequestID, locations []protocol.Location) Event {
	return Event{Kind: EventDefinition, RequestID: id, Locations: locations}
}

// NewReferencesEvent creates a references answer
func NewReferencesEvent(id RequestID, locations []protocol.Location) Event {
	return Event{Kind: EventReferences, RequestID: id, Locations: locations}
}

// NewInitializedEvent reports a finished initialize handshake
func NewInitializedEvent(id RequestID, triggerCharacters []string) Event {
	if triggerCharacters == nil {
		triggerCharacters = []string{}
	}
	return Event{Kind: EventInitialized, RequestID: id, TriggerCharacters: triggerCharacters}
}

// NewErrorEvent reports a failure that happened away from the caller
func NewErrorEvent(id RequestID, message string) Event {
	return Event{Kind: EventError, RequestID: id, Message: message}
}

// EventQueue is an unbounded FIFO of events. Push never blocks, so a backend
// reader goroutine can always hand off, and Drain never blocks, so the
// editor loop can poll it every tick.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
}

// NewEventQueue creates an empty queue
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Push appends an event
func (q *EventQueue) Push(event Event) {
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()
}

// Drain removes and returns every queued event in production order
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	drained := q.events
	q.events = nil
	return drained
}

// Len returns the number of queued events
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
