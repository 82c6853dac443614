package server

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harehare/mq-edit/src/config"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/server/process"
	"github.com/harehare/mq-edit/src/server/protocol"
	"github.com/harehare/mq-edit/src/utils"
)

// fakeServer is the far end of a pair of in-memory pipes standing in for a
// language server's stdin and stdout
type fakeServer struct {
	t        *testing.T
	in       *io.PipeReader
	out      *io.PipeWriter
	received chan *protocol.Message
}

func newTestClient(t *testing.T, cfg *config.BackendConfig) (*ProcessClient, *fakeServer) {
	t.Helper()

	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	server := &fakeServer{
		t:        t,
		in:       clientToServerR,
		out:      serverToClientW,
		received: make(chan *protocol.Message, 64),
	}
	go server.readLoop()

	info := &process.ProcessInfo{
		Stdin:    clientToServerW,
		Stdout:   serverToClientR,
		StopCh:   make(chan struct{}),
		Done:     make(chan struct{}),
		Language: "rust",
		Command:  "fake-server",
	}

	client := newProcessClient("rust", cfg)
	client.attach(info)
	t.Cleanup(func() {
		client.Close()
		server.out.Close()
	})
	return client, server
}

func (s *fakeServer) readLoop() {
	frames := protocol.NewFrameReader(s.in)
	for {
		body, err := frames.ReadFrame()
		if err != nil {
			close(s.received)
			return
		}
		msg, err := protocol.Decode(body)
		if err != nil {
			continue
		}
		if msg.Method == types.MethodShutdown {
			go s.respond(msg.ID, nil)
		}
		s.received <- msg
	}
}

func (s *fakeServer) expect(method string) *protocol.Message {
	s.t.Helper()
	select {
	case msg, ok := <-s.received:
		require.True(s.t, ok, "server input closed while waiting for %s", method)
		require.Equal(s.t, method, msg.Method)
		return msg
	case <-time.After(2 * time.Second):
		s.t.Fatalf("timed out waiting for %s", method)
		return nil
	}
}

func (s *fakeServer) send(msg protocol.Message) {
	_ = protocol.WriteMessage(s.out, msg)
}

func (s *fakeServer) respond(id json.RawMessage, result interface{}) {
	msg, err := protocol.NewResponse(id, result, nil)
	require.NoError(s.t, err)
	s.send(msg)
}

func (s *fakeServer) respondRaw(id json.RawMessage, result string) {
	s.send(protocol.Message{JSONRPC: protocol.JSONRPCVersion, ID: id, Result: json.RawMessage(result)})
}

func (s *fakeServer) respondError(id json.RawMessage, code int, message string) {
	msg, err := protocol.NewResponse(id, nil, protocol.NewRPCError(code, message))
	require.NoError(s.t, err)
	s.send(msg)
}

func (s *fakeServer) notify(method string, params interface{}) {
	msg, err := protocol.NewNotification(method, params)
	require.NoError(s.t, err)
	s.send(msg)
}

func collectEvents(t *testing.T, q *types.EventQueue, n int) []types.Event {
	t.Helper()
	var events []types.Event
	require.Eventually(t, func() bool {
		events = append(events, q.Drain()...)
		return len(events) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return events
}

func TestProcessClientInitialize(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	require.NoError(t, client.Initialize())
	msg := server.expect(types.MethodInitialize)
	id, ok := msg.IntID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Params, &params))
	assert.Equal(t, "mq-edit", params["clientInfo"].(map[string]interface{})["name"])
	assert.Contains(t, params, "rootUri")

	assert.False(t, client.Supports(types.MethodTextDocumentDefinition), "nothing is advertised before initialize completes")
	server.respondRaw(msg.ID, `{"capabilities":{"completionProvider":{"triggerCharacters":[".",":"]},"definitionProvider":true}}`)

	events := collectEvents(t, client.Events(), 1)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventInitialized, events[0].Kind)
	assert.Equal(t, types.RequestID(1), events[0].RequestID)
	assert.Equal(t, []string{".", ":"}, events[0].TriggerCharacters)

	assert.True(t, client.Supports(types.MethodTextDocumentDefinition))
	assert.False(t, client.Supports(types.MethodTextDocumentReferences))

	require.NoError(t, client.Initialized())
	server.expect(types.MethodInitialized)
}

func TestProcessClientInitializeWithoutTriggerCharacters(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	require.NoError(t, client.Initialize())
	msg := server.expect(types.MethodInitialize)
	server.respondRaw(msg.ID, `{"capabilities":{}}`)

	events := collectEvents(t, client.Events(), 1)
	assert.Equal(t, types.EventInitialized, events[0].Kind)
	assert.NotNil(t, events[0].TriggerCharacters)
	assert.Empty(t, events[0].TriggerCharacters)
}

func TestProcessClientDocumentSync(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))
	path := filepath.Join(t.TempDir(), "main.rs")

	require.NoError(t, client.DidOpen(path, "fn main() {}"))
	open := server.expect(types.MethodTextDocumentDidOpen)
	assert.False(t, open.HasID())
	assert.JSONEq(t, fmt.Sprintf(`{"textDocument":{"uri":%q,"languageId":"rust","version":1,"text":"fn main() {}"}}`,
		string(utils.FilePathToURI(path))), string(open.Params))

	require.NoError(t, client.DidChange(path, 2, "fn main() { }"))
	change := server.expect(types.MethodTextDocumentDidChange)
	assert.JSONEq(t, fmt.Sprintf(`{"textDocument":{"uri":%q,"version":2},"contentChanges":[{"text":"fn main() { }"}]}`,
		string(utils.FilePathToURI(path))), string(change.Params))
}

func TestProcessClientRoutesResponsesByMethod(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))
	path := filepath.Join(t.TempDir(), "lib.rs")

	trigger := "."
	completionID, err := client.RequestCompletion(path, 3, 7, &trigger)
	require.NoError(t, err)
	completion := server.expect(types.MethodTextDocumentCompletion)
	assert.Contains(t, string(completion.Params), `"triggerCharacter":"."`)

	definitionID, err := client.RequestDefinition(path, 1, 2)
	require.NoError(t, err)
	definition := server.expect(types.MethodTextDocumentDefinition)

	referencesID, err := client.RequestReferences(path, 1, 2, true)
	require.NoError(t, err)
	references := server.expect(types.MethodTextDocumentReferences)
	assert.Contains(t, string(references.Params), `"includeDeclaration":true`)

	tokensID, err := client.RequestSemanticTokens(path)
	require.NoError(t, err)
	tokens := server.expect(types.MethodTextDocumentSemanticTokensFull)

	assert.Less(t, completionID, definitionID)
	assert.Less(t, definitionID, referencesID)
	assert.Less(t, referencesID, tokensID)
	assert.Equal(t, 4, client.PendingCount())

	// answered out of order on purpose
	server.respondRaw(tokens.ID, `{"data":[0,0,2,1,0]}`)
	server.respondRaw(references.ID, `null`)
	server.respondRaw(definition.ID, `[{"originSelectionRange":{"start":{"line":1,"character":0},"end":{"line":1,"character":3}},"targetUri":"file:///tmp/other.rs","targetRange":{"start":{"line":10,"character":0},"end":{"line":20,"character":1}},"targetSelectionRange":{"start":{"line":10,"character":3},"end":{"line":10,"character":7}}}]`)
	server.respondRaw(completion.ID, `[{"label":"len"},{"label":"push"}]`)

	events := collectEvents(t, client.Events(), 4)
	require.Len(t, events, 4)
	assert.Equal(t, 0, client.PendingCount())

	assert.Equal(t, types.EventSemanticTokens, events[0].Kind)
	assert.Equal(t, tokensID, events[0].RequestID)
	assert.Equal(t, utils.FilePathToURI(path), events[0].URI)
	assert.Equal(t, []uint32{0, 0, 2, 1, 0}, events[0].Tokens.Data)

	assert.Equal(t, types.EventReferences, events[1].Kind)
	assert.Equal(t, referencesID, events[1].RequestID)
	assert.Empty(t, events[1].Locations)

	assert.Equal(t, types.EventDefinition, events[2].Kind)
	assert.Equal(t, definitionID, events[2].RequestID)
	require.Len(t, events[2].Locations, 1)
	assert.Equal(t, "file:///tmp/other.rs", string(events[2].Locations[0].URI))
	assert.Equal(t, uint32(10), events[2].Locations[0].Range.Start.Line)
	assert.Equal(t, uint32(3), events[2].Locations[0].Range.Start.Character)

	assert.Equal(t, types.EventCompletion, events[3].Kind)
	assert.Equal(t, completionID, events[3].RequestID)
	require.Len(t, events[3].Completion.Items, 2)
	assert.Equal(t, "len", events[3].Completion.Items[0].Label)
}

func TestProcessClientErrorResponse(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	id, err := client.RequestDefinition("/tmp/a.rs", 0, 0)
	require.NoError(t, err)
	msg := server.expect(types.MethodTextDocumentDefinition)
	server.respondError(msg.ID, lsperrors.InternalError, "boom")

	events := collectEvents(t, client.Events(), 1)
	assert.Equal(t, types.EventError, events[0].Kind)
	assert.Equal(t, id, events[0].RequestID)
	assert.Equal(t, "textDocument/definition failed: boom (internal error -32603)", events[0].Message)
}

func TestProcessClientDropsUnknownResponseIDs(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	server.respondRaw(json.RawMessage("999"), `{"ok":true}`)
	server.respondRaw(json.RawMessage(`"abc"`), `{"ok":true}`)

	// a later notification proves the reader kept going
	server.notify(types.MethodTextDocumentPublishDiagnostics, map[string]interface{}{
		"uri":         "file:///tmp/a.rs",
		"diagnostics": []interface{}{},
	})

	events := collectEvents(t, client.Events(), 1)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventDiagnostics, events[0].Kind)
}

func TestProcessClientPublishDiagnostics(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	server.notify("window/logMessage", map[string]interface{}{"type": 3, "message": "hello"})
	server.notify(types.MethodTextDocumentPublishDiagnostics, map[string]interface{}{
		"uri": "file:///tmp/a.rs",
		"diagnostics": []map[string]interface{}{
			{
				"range":    map[string]interface{}{"start": map[string]int{"line": 2, "character": 1}, "end": map[string]int{"line": 2, "character": 4}},
				"severity": 1,
				"message":  "mismatched types",
			},
		},
	})

	events := collectEvents(t, client.Events(), 1)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventDiagnostics, events[0].Kind)
	assert.Equal(t, "file:///tmp/a.rs", string(events[0].URI))
	require.Len(t, events[0].Diagnostics, 1)
	assert.Equal(t, "mismatched types", events[0].Diagnostics[0].Message)
	assert.Equal(t, types.RequestID(0), events[0].RequestID)
}

func TestProcessClientDiagnosticsDisabled(t *testing.T) {
	cfg := config.NewBackendConfig("fake-server", nil)
	cfg.EnableDiagnostics = false
	client, server := newTestClient(t, cfg)

	server.notify(types.MethodTextDocumentPublishDiagnostics, map[string]interface{}{
		"uri":         "file:///tmp/a.rs",
		"diagnostics": []interface{}{},
	})

	// round trip a request so the notification has certainly been processed
	_, err := client.RequestReferences("/tmp/a.rs", 0, 0, false)
	require.NoError(t, err)
	msg := server.expect(types.MethodTextDocumentReferences)
	server.respondRaw(msg.ID, `[]`)

	events := collectEvents(t, client.Events(), 1)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventReferences, events[0].Kind)
}

func TestProcessClientAnswersServerRequests(t *testing.T) {
	_, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	server.send(protocol.Message{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      json.RawMessage("42"),
		Method:  "window/workDoneProgress/create",
		Params:  json.RawMessage(`{"token":"t"}`),
	})

	select {
	case msg := <-server.received:
		require.NotNil(t, msg)
		assert.True(t, msg.IsResponse())
		assert.Equal(t, "42", string(msg.ID))
		assert.Equal(t, "null", string(msg.Result))
		assert.Nil(t, msg.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("server request was not answered")
	}
}

func TestProcessClientFeatureToggles(t *testing.T) {
	cfg := config.NewBackendConfig("fake-server", nil)
	cfg.EnableCompletion = false
	cfg.EnableGotoDefinition = false
	client, _ := newTestClient(t, cfg)

	_, err := client.RequestCompletion("/tmp/a.rs", 0, 0, nil)
	assert.True(t, lsperrors.IsFeatureDisabled(err))

	_, err = client.RequestDefinition("/tmp/a.rs", 0, 0)
	assert.True(t, lsperrors.IsFeatureDisabled(err))

	assert.Equal(t, 0, client.PendingCount())
}

func TestProcessClientConnectionClosedOnEOF(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	_, err := client.RequestDefinition("/tmp/a.rs", 0, 0)
	require.NoError(t, err)
	server.expect(types.MethodTextDocumentDefinition)

	require.NoError(t, server.out.Close())

	events := collectEvents(t, client.Events(), 1)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventError, events[0].Kind)
	assert.Equal(t, "LSP server connection closed", events[0].Message)
	assert.Equal(t, 0, client.PendingCount())
}

func TestProcessClientConnectionClosedOnFramingError(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	_, err := server.out.Write([]byte("Content-Length: nope\r\n\r\n{}"))
	require.NoError(t, err)

	events := collectEvents(t, client.Events(), 1)
	assert.Equal(t, types.EventError, events[0].Kind)
	assert.Contains(t, events[0].Message, "LSP server connection closed: ")
	assert.Contains(t, events[0].Message, protocol.ErrMalformedHeader.Error())
}

func TestProcessClientSkipsUndecodableFrames(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	_, err := server.out.Write([]byte("Content-Length: 9\r\n\r\n{not json"))
	require.NoError(t, err)
	server.notify(types.MethodTextDocumentPublishDiagnostics, map[string]interface{}{
		"uri":         "file:///tmp/a.rs",
		"diagnostics": []interface{}{},
	})

	events := collectEvents(t, client.Events(), 1)
	assert.Equal(t, types.EventDiagnostics, events[0].Kind)
}

func TestProcessClientWriteFailureKeepsClientUsable(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	require.NoError(t, server.in.Close())

	_, err := client.RequestCompletion("/tmp/a.rs", 0, 0, nil)
	require.Error(t, err)
	assert.True(t, lsperrors.IsConnectionError(err))
	assert.Equal(t, 0, client.PendingCount())

	err = client.DidChange("/tmp/a.rs", 2, "x")
	assert.True(t, lsperrors.IsConnectionError(err))

	assert.Empty(t, client.Events().Drain())
}

func TestProcessClientShutdown(t *testing.T) {
	client, server := newTestClient(t, config.NewBackendConfig("fake-server", nil))

	done := make(chan error, 1)
	go func() { done <- client.Shutdown() }()

	server.expect(types.MethodShutdown)
	server.expect(types.MethodExit)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not finish")
	}

	assert.True(t, client.processInfo.IntentionalStop())
	assert.NoError(t, client.Shutdown())

	_, err := client.RequestDefinition("/tmp/a.rs", 0, 0)
	assert.True(t, lsperrors.IsConnectionError(err))

	// intentional stops are not reported as errors
	time.Sleep(20 * time.Millisecond)
	for _, event := range client.Events().Drain() {
		assert.NotEqual(t, types.EventError, event.Kind)
	}
}

func TestNewProcessClientSpawnFailure(t *testing.T) {
	client, err := NewProcessClient("rust", config.NewBackendConfig("definitely-not-a-real-lsp-binary", nil))
	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, lsperrors.IsProcessError(err))

	client, err = NewProcessClient("rust", nil)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, lsperrors.IsConfigError(err))
}

const helperProcessEnv = "MQ_EDIT_HELPER_LSP"

// envProcessManager injects environment variables into spawned servers
type envProcessManager struct {
	*process.LSPProcessManager
	env []string
}

func (pm *envProcessManager) StartProcess(cfg types.ClientConfig, language string) (*process.ProcessInfo, error) {
	cfg.Env = append(cfg.Env, pm.env...)
	return pm.LSPProcessManager.StartProcess(cfg, language)
}

func TestProcessClientWithHelperProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	cfg := config.NewBackendConfig(os.Args[0], []string{"-test.run=TestHelperLanguageServer", "--"})
	pm := &envProcessManager{LSPProcessManager: process.NewLSPProcessManager(), env: []string{helperProcessEnv + "=1"}}

	client, err := NewProcessClient("helper", cfg, WithProcessManager(pm))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Initialize())
	require.NoError(t, client.Initialized())
	require.NoError(t, client.DidOpen("/tmp/doc.txt", "hello"))

	completionID, err := client.RequestCompletion("/tmp/doc.txt", 0, 1, nil)
	require.NoError(t, err)

	events := collectEvents(t, client.Events(), 3)
	kinds := map[types.EventKind]types.Event{}
	for _, event := range events {
		kinds[event.Kind] = event
	}
	require.Contains(t, kinds, types.EventInitialized)
	assert.Equal(t, []string{"@"}, kinds[types.EventInitialized].TriggerCharacters)
	require.Contains(t, kinds, types.EventDiagnostics)
	require.Contains(t, kinds, types.EventCompletion)
	assert.Equal(t, completionID, kinds[types.EventCompletion].RequestID)

	assert.NoError(t, client.Shutdown())
	assert.True(t, client.processInfo.Exited())
}

// TestHelperLanguageServer is not a real test: it is the body of the fake
// language server spawned by TestProcessClientWithHelperProcess
func TestHelperLanguageServer(t *testing.T) {
	if os.Getenv(helperProcessEnv) != "1" {
		return
	}

	frames := protocol.NewFrameReader(os.Stdin)
	write := func(msg protocol.Message, err error) {
		if err == nil {
			_ = protocol.WriteMessage(os.Stdout, msg)
		}
	}

	for {
		body, err := frames.ReadFrame()
		if err != nil {
			os.Exit(0)
		}
		msg, err := protocol.Decode(body)
		if err != nil {
			continue
		}

		switch msg.Method {
		case types.MethodInitialize:
			write(protocol.NewResponse(msg.ID, map[string]interface{}{
				"capabilities": map[string]interface{}{
					"completionProvider": map[string]interface{}{"triggerCharacters": []string{"@"}},
				},
			}, nil))
		case types.MethodTextDocumentDidOpen:
			var params struct {
				TextDocument struct {
					URI string `json:"uri"`
				} `json:"textDocument"`
			}
			_ = json.Unmarshal(msg.Params, &params)
			write(protocol.NewNotification(types.MethodTextDocumentPublishDiagnostics, map[string]interface{}{
				"uri":         params.TextDocument.URI,
				"diagnostics": []interface{}{},
			}))
		case types.MethodTextDocumentCompletion:
			write(protocol.NewResponse(msg.ID, []map[string]string{{"label": "hello"}}, nil))
		case types.MethodShutdown:
			write(protocol.NewResponse(msg.ID, nil, nil))
		case types.MethodExit:
			os.Exit(0)
		}
	}
}
