package server

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lsp "go.lsp.dev/protocol"

	"github.com/harehare/mq-edit/src/config"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/internal/version"
	"github.com/harehare/mq-edit/src/server/capabilities"
	"github.com/harehare/mq-edit/src/server/errors"
	"github.com/harehare/mq-edit/src/server/process"
	"github.com/harehare/mq-edit/src/server/protocol"
	"github.com/harehare/mq-edit/src/utils"
	"github.com/harehare/mq-edit/src/utils/lspconv"
)

const connectionClosedMessage = "LSP server connection closed"

// pendingRequest is the slot a response is matched against
type pendingRequest struct {
	method string
	uri    lsp.DocumentURI
	done   chan struct{}
}

// ProcessClient is a Backend that talks JSON-RPC to an external language
// server over its standard streams
type ProcessClient struct {
	language        string
	config          *config.BackendConfig
	processManager  process.ProcessManager
	processInfo     *process.ProcessInfo
	jsonrpcProtocol *protocol.LSPJSONRPCProtocol
	capDetector     capabilities.CapabilityDetector
	errorTranslator errors.ErrorTranslator
	events          *types.EventQueue

	mu           sync.Mutex
	requests     map[int64]*pendingRequest
	nextID       int64
	capabilities capabilities.ServerCapabilities
	capsKnown    bool

	writeMu      sync.Mutex
	readerDone   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// ClientOption customizes a ProcessClient
type ClientOption func(*ProcessClient)

// WithProcessManager replaces the process manager used to spawn and stop the server
func WithProcessManager(pm process.ProcessManager) ClientOption {
	return func(c *ProcessClient) {
		c.processManager = pm
	}
}

// WithErrorTranslator replaces the stderr translator
func WithErrorTranslator(t errors.ErrorTranslator) ClientOption {
	return func(c *ProcessClient) {
		c.errorTranslator = t
	}
}

// NewProcessClient spawns the configured server and starts reading its output.
// A spawn failure is returned as a *errors.ProcessError and no client is created.
func NewProcessClient(language string, cfg *config.BackendConfig, opts ...ClientOption) (*ProcessClient, error) {
	if cfg == nil {
		return nil, lsperrors.NewNotConfiguredError(language)
	}

	c := newProcessClient(language, cfg, opts...)

	info, err := c.processManager.StartProcess(cfg.ClientConfig(), language)
	if err != nil {
		return nil, fmt.Errorf("failed to start LSP server: %w", err)
	}

	c.attach(info)
	return c, nil
}

func newProcessClient(language string, cfg *config.BackendConfig, opts ...ClientOption) *ProcessClient {
	c := &ProcessClient{
		language:        language,
		config:          cfg,
		processManager:  process.NewLSPProcessManager(),
		jsonrpcProtocol: protocol.NewLSPJSONRPCProtocol(language),
		capDetector:     capabilities.NewLSPCapabilityDetector(),
		errorTranslator: errors.NewLSPErrorTranslator(),
		events:          types.NewEventQueue(),
		requests:        make(map[int64]*pendingRequest),
		readerDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// attach wires the client to a started process: one reader, one stderr
// logger and one exit monitor
func (c *ProcessClient) attach(info *process.ProcessInfo) {
	c.processInfo = info

	go func() {
		defer close(c.readerDone)
		err := c.jsonrpcProtocol.HandleMessages(info.Stdout, c, info.StopCh)
		c.handleReaderExit(err)
	}()

	if info.Stderr != nil {
		go c.logStderr()
	}

	if info.Cmd != nil {
		go c.processManager.MonitorProcess(info, func(err error) {
			if err != nil && !info.IntentionalStop() {
				common.LSPLogger.Debug("LSP server process exited: language=%s, error=%v", c.language, err)
			}
		})
	}
}

// handleReaderExit reports the end of the server's output stream as a
// terminal Error event. Nothing is reported after an intentional stop.
func (c *ProcessClient) handleReaderExit(err error) {
	c.mu.Lock()
	abandoned := len(c.requests)
	c.requests = make(map[int64]*pendingRequest)
	c.mu.Unlock()

	if c.processInfo.IntentionalStop() {
		common.LSPLogger.Debug("LSP reader for %s stopped", c.language)
		return
	}

	// A nil error here means the exit monitor closed StopCh first
	message := connectionClosedMessage
	if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, os.ErrClosed) {
		message = fmt.Sprintf("%s: %v", connectionClosedMessage, err)
	}
	if abandoned > 0 {
		common.LSPLogger.Debug("%d pending %s requests abandoned", abandoned, c.language)
	}
	common.LSPLogger.Warn("LSP server %s: %s", c.language, message)
	c.events.Push(types.NewErrorEvent(0, message))
}

// LanguageID returns the language this client serves
func (c *ProcessClient) LanguageID() string {
	return c.language
}

// Events returns the queue responses and notifications are published to
func (c *ProcessClient) Events() *types.EventQueue {
	return c.events
}

// PendingCount returns the number of requests still waiting for a response
func (c *ProcessClient) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Supports reports whether the server advertised method in its initialize
// result. It is false until initialize has completed.
func (c *ProcessClient) Supports(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capsKnown && c.capDetector.SupportsMethod(c.capabilities, method)
}

// sendRequest registers the pending slot before writing so a fast response
// always finds it
func (c *ProcessClient) sendRequest(method string, uri lsp.DocumentURI, params interface{}) (types.RequestID, *pendingRequest, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	req := &pendingRequest{method: method, uri: uri, done: make(chan struct{})}
	c.requests[id] = req
	if c.capsKnown && !c.capDetector.SupportsMethod(c.capabilities, method) {
		common.LSPLogger.Debug("LSP server %s does not advertise %s, sending anyway", c.language, method)
	}
	c.mu.Unlock()

	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		c.removePending(id)
		return 0, nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	if err := c.write(msg); err != nil {
		c.removePending(id)
		common.LSPLogger.Error("Failed to send LSP request: method=%s, id=%d, error=%v", method, id, err)
		return 0, nil, err
	}

	return types.RequestID(id), req, nil
}

func (c *ProcessClient) sendNotification(method string, params interface{}) error {
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode %s notification: %w", method, err)
	}
	return c.write(msg)
}

func (c *ProcessClient) write(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := protocol.WriteMessage(c.processInfo.Stdin, msg); err != nil {
		return c.errorTranslator.TranslateToUnifiedError(c.language, err)
	}
	return nil
}

func (c *ProcessClient) removePending(id int64) {
	c.mu.Lock()
	delete(c.requests, id)
	c.mu.Unlock()
}

// Initialize sends the initialize request. The negotiated trigger characters
// arrive later as an Initialized event.
func (c *ProcessClient) Initialize() error {
	wd, err := common.ResolveWorkingDir(c.config.WorkingDir)
	if err != nil {
		wd = os.TempDir()
	}
	rootURI := utils.FilePathToURI(wd)

	initParams := map[string]interface{}{
		"processId": os.Getpid(),
		"clientInfo": map[string]interface{}{
			"name":    constants.ClientName,
			"version": version.Version,
		},
		"rootUri": rootURI,
		"workspaceFolders": []map[string]interface{}{
			{
				"uri":  rootURI,
				"name": filepath.Base(wd),
			},
		},
		"capabilities": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"synchronization": map[string]interface{}{
					"dynamicRegistration": false,
					"didSave":             false,
				},
				"completion": map[string]interface{}{
					"contextSupport": true,
					"completionItem": map[string]interface{}{
						"snippetSupport":      true,
						"documentationFormat": []string{"markdown", "plaintext"},
					},
				},
				"definition": map[string]interface{}{
					"linkSupport": true,
				},
				"references": map[string]interface{}{},
				"publishDiagnostics": map[string]interface{}{
					"relatedInformation": true,
				},
				"semanticTokens": map[string]interface{}{
					"requests": map[string]interface{}{
						"full": true,
					},
					"tokenTypes":     lspconv.TokenTypes,
					"tokenModifiers": lspconv.TokenModifiers,
					"formats":        []string{"relative"},
				},
			},
		},
		"trace": "off",
	}

	_, _, err = c.sendRequest(types.MethodInitialize, "", initParams)
	return err
}

// Initialized sends the initialized notification
func (c *ProcessClient) Initialized() error {
	return c.sendNotification(types.MethodInitialized, struct{}{})
}

// DidOpen announces a document at version 1
func (c *ProcessClient) DidOpen(path, text string) error {
	params := lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        utils.FilePathToURI(path),
			LanguageID: lsp.LanguageIdentifier(c.language),
			Version:    1,
			Text:       text,
		},
	}
	return c.sendNotification(types.MethodTextDocumentDidOpen, params)
}

type versionedDocument struct {
	URI     lsp.DocumentURI `json:"uri"`
	Version int32           `json:"version"`
}

// fullTextChange is a content change without a range, which replaces the whole document
type fullTextChange struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   versionedDocument `json:"textDocument"`
	ContentChanges []fullTextChange  `json:"contentChanges"`
}

// DidChange sends the full new text of a document
func (c *ProcessClient) DidChange(path string, version int32, text string) error {
	params := didChangeParams{
		TextDocument:   versionedDocument{URI: utils.FilePathToURI(path), Version: version},
		ContentChanges: []fullTextChange{{Text: text}},
	}
	return c.sendNotification(types.MethodTextDocumentDidChange, params)
}

func positionParams(path string, line, col uint32) lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: utils.FilePathToURI(path)},
		Position:     lsp.Position{Line: line, Character: col},
	}
}

// RequestSemanticTokens asks for semantic tokens of a whole document
func (c *ProcessClient) RequestSemanticTokens(path string) (types.RequestID, error) {
	uri := utils.FilePathToURI(path)
	params := lsp.SemanticTokensParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
	}
	id, _, err := c.sendRequest(types.MethodTextDocumentSemanticTokensFull, uri, params)
	return id, err
}

// RequestCompletion asks for completions at a position
func (c *ProcessClient) RequestCompletion(path string, line, col uint32, trigger *string) (types.RequestID, error) {
	if !c.config.EnableCompletion {
		return 0, lsperrors.NewFeatureDisabledError(c.language, string(types.FeatureCompletion))
	}

	completionContext := &lsp.CompletionContext{TriggerKind: lsp.CompletionTriggerKindInvoked}
	if trigger != nil {
		completionContext.TriggerKind = lsp.CompletionTriggerKindTriggerCharacter
		completionContext.TriggerCharacter = *trigger
	}

	params := lsp.CompletionParams{
		TextDocumentPositionParams: positionParams(path, line, col),
		Context:                    completionContext,
	}
	id, _, err := c.sendRequest(types.MethodTextDocumentCompletion, utils.FilePathToURI(path), params)
	return id, err
}

// RequestDefinition asks for the definition of the symbol at a position
func (c *ProcessClient) RequestDefinition(path string, line, col uint32) (types.RequestID, error) {
	if !c.config.EnableGotoDefinition {
		return 0, lsperrors.NewFeatureDisabledError(c.language, string(types.FeatureDefinition))
	}

	params := lsp.DefinitionParams{
		TextDocumentPositionParams: positionParams(path, line, col),
	}
	id, _, err := c.sendRequest(types.MethodTextDocumentDefinition, utils.FilePathToURI(path), params)
	return id, err
}

// RequestReferences asks for every reference to the symbol at a position
func (c *ProcessClient) RequestReferences(path string, line, col uint32, includeDeclaration bool) (types.RequestID, error) {
	params := lsp.ReferenceParams{
		TextDocumentPositionParams: positionParams(path, line, col),
		Context:                    lsp.ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	id, _, err := c.sendRequest(types.MethodTextDocumentReferences, utils.FilePathToURI(path), params)
	return id, err
}

// SendShutdownRequest sends shutdown and waits for its answer until ctx expires
func (c *ProcessClient) SendShutdownRequest(ctx context.Context) error {
	_, req, err := c.sendRequest(types.MethodShutdown, "", nil)
	if err != nil {
		return err
	}

	select {
	case <-req.done:
		return nil
	case <-c.readerDone:
		return fmt.Errorf("LSP server %s closed before answering shutdown", c.language)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendExitNotification sends the exit notification
func (c *ProcessClient) SendExitNotification(ctx context.Context) error {
	return c.sendNotification(types.MethodExit, nil)
}

// Shutdown runs the best-effort shutdown handshake and then kills the
// server unconditionally. Later calls return the first result.
func (c *ProcessClient) Shutdown() error {
	c.shutdownOnce.Do(func() {
		common.LSPLogger.Debug("Shutting down LSP server for %s", c.language)
		c.shutdownErr = c.processManager.StopProcess(c.processInfo, c)
	})
	return c.shutdownErr
}

// Close kills the server without the shutdown handshake
func (c *ProcessClient) Close() error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.processManager.Kill(c.processInfo)
	})
	return c.shutdownErr
}

// HandleRequest answers server-initiated requests with a null result so
// servers waiting on them keep going
func (c *ProcessClient) HandleRequest(method string, id json.RawMessage, params json.RawMessage) error {
	common.LSPLogger.Debug("Answering server request %s from %s with null", method, c.language)

	response, err := protocol.NewResponse(id, nil, nil)
	if err != nil {
		return err
	}
	if err := c.write(response); err != nil {
		common.LSPLogger.Debug("Failed to answer server request %s: %v", method, err)
	}
	return nil
}

// HandleResponse matches a response to its pending slot and publishes the resulting event
func (c *ProcessClient) HandleResponse(id json.RawMessage, result json.RawMessage, rpcErr *protocol.RPCError) error {
	requestID, ok := protocol.ParseID(id)
	if !ok {
		common.LSPLogger.Debug("Dropping response with unusable id %s from %s", string(id), c.language)
		return nil
	}

	c.mu.Lock()
	req, exists := c.requests[requestID]
	if exists {
		delete(c.requests, requestID)
	}
	if exists && req.method == types.MethodInitialize && rpcErr == nil {
		if caps, err := c.capDetector.ParseCapabilities(result); err == nil {
			c.capabilities = caps
			c.capsKnown = true
		}
	}
	c.mu.Unlock()

	if !exists {
		common.LSPLogger.Debug("No matching request found for response: id=%d", requestID)
		return nil
	}
	close(req.done)

	if event, ok := responseEvent(types.RequestID(requestID), req, result, rpcErr, c.capDetector); ok {
		c.events.Push(event)
	}
	return nil
}

// HandleNotification publishes diagnostics; every other notification is ignored
func (c *ProcessClient) HandleNotification(method string, params json.RawMessage) error {
	if method != types.MethodTextDocumentPublishDiagnostics {
		return nil
	}

	if !c.config.EnableDiagnostics {
		return nil
	}

	var diagnostics lsp.PublishDiagnosticsParams
	if err := json.Unmarshal(params, &diagnostics); err != nil {
		common.LSPLogger.Debug("Dropping malformed diagnostics from %s: %v", c.language, err)
		return nil
	}

	c.events.Push(types.NewDiagnosticsEvent(diagnostics.URI, diagnostics.Diagnostics))
	return nil
}

// logStderr logs server stderr at debug level, translating known failure patterns
func (c *ProcessClient) logStderr() {
	processInfo := c.processInfo
	if processInfo == nil || processInfo.Stderr == nil {
		return
	}

	scanner := bufio.NewScanner(processInfo.Stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), constants.LSPResponseBufferSize)
	var errorContext []string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.Contains(line, "Traceback") {
			errorContext = []string{line}
			continue
		}

		if len(errorContext) > 0 && (strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")) {
			errorContext = append(errorContext, line)
			continue
		}

		if c.errorTranslator.TranslateAndLogError(c.config.Command, line, errorContext) {
			errorContext = nil
			continue
		}

		common.LSPLogger.Debug("LSP %s stderr: %s", c.config.Command, line)
		errorContext = nil
	}
}
