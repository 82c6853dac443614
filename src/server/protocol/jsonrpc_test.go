package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	reqCount   int
	notifCount int
	respCount  int
	lastMethod string
	lastID     json.RawMessage
	lastParams json.RawMessage
	lastResult json.RawMessage
	lastErr    *RPCError
	methods    []string
}

func (m *mockHandler) HandleRequest(method string, id json.RawMessage, params json.RawMessage) error {
	m.reqCount++
	m.lastMethod = method
	m.lastID = id
	m.lastParams = params
	return nil
}

func (m *mockHandler) HandleResponse(id json.RawMessage, result json.RawMessage, err *RPCError) error {
	m.respCount++
	m.lastID = id
	m.lastResult = result
	m.lastErr = err
	return nil
}

func (m *mockHandler) HandleNotification(method string, params json.RawMessage) error {
	m.notifCount++
	m.lastMethod = method
	m.lastParams = params
	m.methods = append(m.methods, method)
	return nil
}

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestWriteMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	msg, err := NewRequest(1, "initialize", map[string]any{"capabilities": map[string]any{}})
	require.NoError(t, err)
	if err := WriteMessage(buf, msg); err != nil {
		t.Fatalf("WriteMessage error: %v", err)
	}

	parts := bytes.SplitN(buf.Bytes(), []byte("\r\n\r\n"), 2)
	if len(parts) != 2 {
		t.Fatalf("invalid header/body split: %q", buf.String())
	}
	assert.Equal(t, fmt.Sprintf("Content-Length: %d", len(parts[1])), string(parts[0]))

	var dec map[string]any
	require.NoError(t, json.Unmarshal(parts[1], &dec))
	assert.Equal(t, "2.0", dec["jsonrpc"])
	assert.Equal(t, "initialize", dec["method"])
	assert.EqualValues(t, 1, dec["id"])
	assert.NotContains(t, string(parts[1]), "\n", "body must be compact")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 2, 42, 1 << 40} {
		msg, err := NewRequest(id, "textDocument/completion", map[string]any{"textDocument": map[string]string{"uri": "file:///a.md"}})
		require.NoError(t, err)

		data, err := Encode(msg)
		require.NoError(t, err)

		body, err := NewFrameReader(bytes.NewReader(data)).ReadFrame()
		require.NoError(t, err)

		decoded, err := Decode(body)
		require.NoError(t, err)
		assert.Equal(t, "textDocument/completion", decoded.Method)
		gotID, ok := decoded.IntID()
		require.True(t, ok)
		assert.Equal(t, id, gotID)
		assert.True(t, decoded.IsRequest())
	}
}

func TestNotificationHasNoID(t *testing.T) {
	msg, err := NewNotification("initialized", struct{}{})
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
	assert.True(t, msg.IsNotification())
}

func TestNewResponseNullResult(t *testing.T) {
	msg, err := NewResponse(json.RawMessage("7"), nil, nil)
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":null}`, string(data))
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"3", 3, true},
		{`"12"`, 12, true},
		{`"abc"`, 0, false},
		{"null", 0, false},
		{" null ", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseID(json.RawMessage(tt.raw))
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestReadFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr error
	}{
		{
			name:  "two frames",
			input: frame(`{"a":1}`) + frame(`{"b":2}`),
			want:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "extra headers are ignored",
			input: "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\ncontent-length: 2\r\n\r\n{}",
			want:  []string{`{}`},
		},
		{
			name:    "non numeric length",
			input:   "Content-Length: abc\r\n\r\n{}",
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "negative length",
			input:   "Content-Length: -4\r\n\r\n{}",
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "header without colon",
			input:   "garbage\r\n\r\n{}",
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "missing length",
			input:   "Content-Type: text\r\n\r\n{}",
			wantErr: ErrMalformedHeader,
		},
		{
			name:    "truncated body",
			input:   "Content-Length: 10\r\n\r\n{}",
			wantErr: ErrTruncatedBody,
		},
		{
			name:    "stream ends inside header",
			input:   "Content-Length: 10\r\n",
			wantErr: ErrTruncatedBody,
		},
		{
			name:    "empty stream",
			input:   "",
			wantErr: io.EOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := NewFrameReader(strings.NewReader(tt.input))
			for _, want := range tt.want {
				body, err := fr.ReadFrame()
				require.NoError(t, err)
				assert.Equal(t, want, string(body))
			}
			if tt.wantErr != nil {
				_, err := fr.ReadFrame()
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			_, err := fr.ReadFrame()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestHandleMessage_RoutesCorrectly(t *testing.T) {
	p := NewLSPJSONRPCProtocol("rust")
	h := &mockHandler{}

	if err := p.HandleMessage([]byte(`{"jsonrpc":"2.0","id":2,"method":"workspace/configuration","params":{"items":[]}}`), h); err != nil {
		t.Fatalf("handle request: %v", err)
	}
	if h.reqCount != 1 || h.lastMethod != "workspace/configuration" {
		t.Fatalf("request not handled: %+v", h)
	}

	require.NoError(t, p.HandleMessage([]byte(`{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":"file:///a","diagnostics":[]}}`), h))
	assert.Equal(t, 1, h.notifCount)

	require.NoError(t, p.HandleMessage([]byte(`{"jsonrpc":"2.0","id":5,"result":{"ok":true}}`), h))
	assert.Equal(t, 1, h.respCount)
	assert.JSONEq(t, `{"ok":true}`, string(h.lastResult))
	assert.Nil(t, h.lastErr)

	require.NoError(t, p.HandleMessage([]byte(`{"jsonrpc":"2.0","id":6,"error":{"code":-32601,"message":"nope"}}`), h))
	assert.Equal(t, 2, h.respCount)
	require.NotNil(t, h.lastErr)
	assert.Equal(t, -32601, h.lastErr.Code)

	assert.Error(t, p.HandleMessage([]byte(`{"jsonrpc":"2.0"}`), h))
	assert.Error(t, p.HandleMessage([]byte(`not json`), h))
}

func TestHandleMessages_SkipsUndecodableBodies(t *testing.T) {
	p := NewLSPJSONRPCProtocol("rust")
	h := &mockHandler{}

	input := frame(`{"jsonrpc":"2.0","method":"first"}`) +
		frame(`{this is not json}`) +
		frame(`{"jsonrpc":"2.0","method":"second"}`)

	err := p.HandleMessages(strings.NewReader(input), h, make(chan struct{}))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"first", "second"}, h.methods)
}

func TestHandleMessages_StopsOnFramingError(t *testing.T) {
	p := NewLSPJSONRPCProtocol("rust")
	h := &mockHandler{}

	input := frame(`{"jsonrpc":"2.0","method":"first"}`) +
		"Content-Length: 500\r\n\r\n{\"jsonrpc\":\"2.0\"" +
		frame(`{"jsonrpc":"2.0","method":"never"}`)

	err := p.HandleMessages(strings.NewReader(input), h, make(chan struct{}))
	assert.ErrorIs(t, err, ErrTruncatedBody)
	assert.Equal(t, []string{"first"}, h.methods)
}

func TestHandleMessages_StopChannel(t *testing.T) {
	p := NewLSPJSONRPCProtocol("rust")
	stop := make(chan struct{})
	close(stop)
	h := &mockHandler{}

	input := frame(`{"jsonrpc":"2.0","id":1,"result":null}`) + frame(`{"jsonrpc":"2.0","method":"x"}`)
	err := p.HandleMessages(strings.NewReader(input), h, stop)
	assert.NoError(t, err)
	assert.Equal(t, 1, h.respCount, "buffered frames are delivered after stop")
	assert.Equal(t, []string{"x"}, h.methods)
}
