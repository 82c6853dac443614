package markdown

import (
	"sync"

	"go.lsp.dev/protocol"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/utils"
	"github.com/harehare/mq-edit/src/utils/lspconv"
)

// document is the analyzer's record of one open file
type document struct {
	text  string
	lines *lspconv.LineIndex
	tree  *Tree
}

// Analyzer is the embedded Markdown language backend. It answers every
// request synchronously and publishes results to its event queue.
type Analyzer struct {
	mu         sync.Mutex
	documents  map[protocol.DocumentURI]*document
	events     *types.EventQueue
	nextID     int64
	fileExists FileExists
	logger     *common.SafeLogger

	enableCompletion  bool
	enableDiagnostics bool
	enableDefinition  bool
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithCapabilities switches the individual features on or off
func WithCapabilities(completion, diagnostics, definition bool) Option {
	return func(a *Analyzer) {
		a.enableCompletion = completion
		a.enableDiagnostics = diagnostics
		a.enableDefinition = definition
	}
}

// WithFileExists replaces the file system check used for relative links
func WithFileExists(exists FileExists) Option {
	return func(a *Analyzer) {
		if exists != nil {
			a.fileExists = exists
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.SafeLogger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an analyzer with every feature enabled
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		documents:         make(map[protocol.DocumentURI]*document),
		events:            types.NewEventQueue(),
		fileExists:        osFileExists,
		logger:            common.LSPLogger,
		enableCompletion:  true,
		enableDiagnostics: true,
		enableDefinition:  true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize publishes the trigger characters
func (a *Analyzer) Initialize() error {
	a.events.Push(types.NewInitializedEvent(0, append([]string{}, TriggerCharacters...)))
	return nil
}

// Initialized has nothing to do for the embedded backend
func (a *Analyzer) Initialized() error {
	return nil
}

// DidOpen stores and analyzes a document
func (a *Analyzer) DidOpen(path, text string) error {
	a.update(utils.FilePathToURI(path), text)
	return nil
}

// DidChange replaces a document's text and analyzes it again
func (a *Analyzer) DidChange(path string, version int32, text string) error {
	a.update(utils.FilePathToURI(path), text)
	return nil
}

func (a *Analyzer) update(uri protocol.DocumentURI, text string) {
	a.mu.Lock()
	doc := &document{text: text, lines: lspconv.NewLineIndex(text)}
	tree, err := Parse(text)
	if err != nil {
		a.logger.Warn("Failed to parse %s, keeping previous tree: %v", uri, err)
		if previous, ok := a.documents[uri]; ok {
			tree = previous.tree
		}
	}
	doc.tree = tree
	a.documents[uri] = doc
	a.mu.Unlock()

	if a.enableDiagnostics {
		// published even when empty so fixed links clear their warnings
		a.events.Push(types.NewDiagnosticsEvent(uri, Diagnose(tree)))
	}
}

// RequestSemanticTokens highlights the whole document
func (a *Analyzer) RequestSemanticTokens(path string) (types.RequestID, error) {
	uri := utils.FilePathToURI(path)
	a.mu.Lock()
	id := a.issue()
	doc := a.documents[uri]
	a.mu.Unlock()

	data := []uint32{}
	if doc != nil {
		data = SemanticTokens(doc.text)
	}
	a.events.Push(types.NewSemanticTokensEvent(id, uri, &protocol.SemanticTokens{Data: data}))
	return id, nil
}

// RequestCompletion computes completions at a position. An unknown
// document yields an empty list.
func (a *Analyzer) RequestCompletion(path string, line, col uint32, trigger *string) (types.RequestID, error) {
	if !a.enableCompletion {
		return 0, lsperrors.NewFeatureDisabledError(constants.LanguageMarkdown, string(types.FeatureCompletion))
	}

	uri := utils.FilePathToURI(path)
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.issue()

	items := []protocol.CompletionItem{}
	if doc := a.documents[uri]; doc != nil {
		pos := protocol.Position{Line: line, Character: col}
		offset := doc.lines.PositionToOffset(pos)
		prefix := doc.text[doc.lines.LineStart(int(line)):offset]
		items = Complete(doc.tree, line, prefix)
	}
	a.events.Push(types.NewCompletionEvent(id, &protocol.CompletionList{Items: items}))
	return id, nil
}

// RequestDefinition resolves the link at a position. Nothing is published
// when there is no target.
func (a *Analyzer) RequestDefinition(path string, line, col uint32) (types.RequestID, error) {
	if !a.enableDefinition {
		return 0, lsperrors.NewFeatureDisabledError(constants.LanguageMarkdown, string(types.FeatureDefinition))
	}

	uri := utils.FilePathToURI(path)
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.issue()

	doc := a.documents[uri]
	if doc == nil {
		return id, nil
	}
	if location, ok := Definition(doc.tree, uri, protocol.Position{Line: line, Character: col}, a.fileExists); ok {
		a.events.Push(types.NewDefinitionEvent(id, []protocol.Location{location}))
	}
	return id, nil
}

// RequestReferences lists the heading and anchor links tied to a position.
// Nothing is published when the list is empty.
func (a *Analyzer) RequestReferences(path string, line, col uint32, includeDeclaration bool) (types.RequestID, error) {
	uri := utils.FilePathToURI(path)
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.issue()

	doc := a.documents[uri]
	if doc == nil {
		return id, nil
	}
	if locations := References(doc.tree, uri, protocol.Position{Line: line, Character: col}, includeDeclaration); len(locations) > 0 {
		a.events.Push(types.NewReferencesEvent(id, locations))
	}
	return id, nil
}

// Shutdown forgets every document
func (a *Analyzer) Shutdown() error {
	a.mu.Lock()
	a.documents = make(map[protocol.DocumentURI]*document)
	a.mu.Unlock()
	return nil
}

// LanguageID returns "markdown"
func (a *Analyzer) LanguageID() string {
	return constants.LanguageMarkdown
}

// Events returns the analyzer's event queue
func (a *Analyzer) Events() *types.EventQueue {
	return a.events
}

// DocumentCount returns the number of open documents
func (a *Analyzer) DocumentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.documents)
}

// issue allocates the next request id. Callers hold a.mu.
func (a *Analyzer) issue() types.RequestID {
	a.nextID++
	return types.RequestID(a.nextID)
}

var _ types.Backend = (*Analyzer)(nil)
