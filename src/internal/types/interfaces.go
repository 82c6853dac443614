package types

// Backend is the capability set shared by every LSP provider, whether it is
// an external language server process or an in-process analyzer. Callers
// never branch on the kind of backend they hold.
//
// Every operation is fire-and-forget: it queues work and returns. Answers
// arrive later as Events on the queue returned by Events. A returned error
// describes only the failed call and never invalidates the backend.
type Backend interface {
	// Initialize starts the initialize handshake. The negotiated trigger
	// characters arrive as an EventInitialized.
	Initialize() error

	// Initialized signals that the client finished processing initialize.
	Initialized() error

	// DidOpen announces a document with its full text.
	DidOpen(path, text string) error

	// DidChange replaces the full text of an open document.
	DidChange(path string, version int32, text string) error

	// RequestSemanticTokens asks for semantic tokens of the whole document.
	RequestSemanticTokens(path string) (RequestID, error)

	// RequestCompletion asks for completions at a 0-indexed position.
	// trigger is the character that caused the request, or nil when invoked.
	RequestCompletion(path string, line, col uint32, trigger *string) (RequestID, error)

	// RequestDefinition asks for the definition of the symbol at a position.
	RequestDefinition(path string, line, col uint32) (RequestID, error)

	// RequestReferences asks for every reference to the symbol at a position.
	RequestReferences(path string, line, col uint32, includeDeclaration bool) (RequestID, error)

	// Shutdown releases everything the backend owns. For process backends
	// the server process is killed unconditionally.
	Shutdown() error

	// LanguageID returns the language identifier this backend serves.
	LanguageID() string

	// Events returns the queue this backend publishes its events to.
	Events() *EventQueue
}

// Feature names a capability that can be toggled per language
type Feature string

const (
	FeatureCompletion  Feature = "completion"
	FeatureDiagnostics Feature = "diagnostics"
	FeatureDefinition  Feature = "definition"
)
