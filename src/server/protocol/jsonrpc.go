package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
)

// JSON-RPC protocol constants
const (
	JSONRPCVersion = "2.0"

	contentLengthHeader = "content-length"
	headerSeparator     = "\r\n\r\n"
)

// Framing errors. Both are fatal for the stream they were read from.
var (
	ErrMalformedHeader = errors.New("malformed LSP header")
	ErrTruncatedBody   = errors.New("truncated LSP frame")
)

// Message represents a JSON-RPC 2.0 request, response or notification.
// Requests carry ID and Method, responses carry ID and Result or Error,
// notifications carry Method only.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HasID reports whether the message carries a non-null id
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// IsRequest reports whether the message is a request from the peer
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.HasID()
}

// IsNotification reports whether the message is a notification
func (m *Message) IsNotification() bool {
	return m.Method != "" && !m.HasID()
}

// IsResponse reports whether the message is a response to one of our requests
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.HasID()
}

// IntID returns the numeric id of the message. Ids sent as numeric strings
// are accepted too, since some servers echo ids back as strings.
func (m *Message) IntID() (int64, bool) {
	return ParseID(m.ID)
}

// ParseID decodes a JSON-RPC id that is either a number or a numeric string
func ParseID(raw json.RawMessage) (int64, bool) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// MessageHandler defines the interface for handling decoded JSON-RPC messages
type MessageHandler interface {
	HandleRequest(method string, id json.RawMessage, params json.RawMessage) error
	HandleResponse(id json.RawMessage, result json.RawMessage, err *RPCError) error
	HandleNotification(method string, params json.RawMessage) error
}

// NewRequest creates a request message with a numeric id
func NewRequest(id int64, method string, params interface{}) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s params: %w", method, err)
	}
	return Message{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification creates a notification message (no id)
func NewNotification(method string, params interface{}) (Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s params: %w", method, err)
	}
	return Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResponse creates a response to a peer request. A nil result with a nil
// error is encoded as an explicit null result.
func NewResponse(id json.RawMessage, result interface{}, rpcErr *RPCError) (Message, error) {
	msg := Message{JSONRPC: JSONRPCVersion, ID: id, Error: rpcErr}
	if rpcErr != nil {
		return msg, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal result: %w", err)
	}
	msg.Result = raw
	return msg, nil
}

// NewRPCError creates a new RPCError with the specified code and message
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// NewMethodNotFoundError creates a method not found error (-32601)
func NewMethodNotFoundError(method string) *RPCError {
	return NewRPCError(lsperrors.MethodNotFound, fmt.Sprintf("method not found: %s", method))
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

// Encode serializes msg as compact JSON preceded by its Content-Length header
func Encode(msg Message) ([]byte, error) {
	if msg.JSONRPC == "" {
		msg.JSONRPC = JSONRPCVersion
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d%s", len(body), headerSeparator)
	buf.Write(body)
	return buf.Bytes(), nil
}

// WriteMessage sends a JSON-RPC message with proper Content-Length header
// formatting. The frame is written with a single Write call so concurrent
// writers serialized by the caller never interleave partial frames.
func WriteMessage(writer io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = writer.Write(frame)
	return err
}

// Decode parses a frame body into a Message
func Decode(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode JSON-RPC message: %w", err)
	}
	if msg.Method == "" && !msg.HasID() {
		return nil, fmt.Errorf("malformed JSON-RPC message: no id and no method")
	}
	return &msg, nil
}

// FrameReader reads Content-Length framed bodies from a stream
type FrameReader struct {
	reader *bufio.Reader
}

// NewFrameReader wraps r with a buffered frame reader
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{reader: bufio.NewReaderSize(r, constants.LSPResponseBufferSize)}
}

// ReadFrame reads one frame and returns its body. It returns io.EOF when the
// stream ends cleanly between frames, an error wrapping ErrMalformedHeader
// for an unusable header block and one wrapping ErrTruncatedBody when the
// stream ends mid-frame.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	contentLength := -1
	headerLines := 0

	for {
		line, err := fr.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if headerLines == 0 && strings.TrimSpace(line) == "" {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("%w: stream ended inside header", ErrTruncatedBody)
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if headerLines == 0 {
				// stray blank line between frames
				continue
			}
			break
		}

		headerLines++
		if headerLines > constants.MaxHeaderLines {
			return nil, fmt.Errorf("%w: too many header lines", ErrMalformedHeader)
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		if strings.ToLower(strings.TrimSpace(name)) != contentLengthHeader {
			continue
		}
		length, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || length < 0 {
			return nil, fmt.Errorf("%w: invalid Content-Length %q", ErrMalformedHeader, strings.TrimSpace(value))
		}
		contentLength = length
	}

	if contentLength < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length", ErrMalformedHeader)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(fr.reader, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: expected %d bytes", ErrTruncatedBody, contentLength)
		}
		return nil, err
	}
	return body, nil
}

// LSPJSONRPCProtocol runs the read side of one language server connection
type LSPJSONRPCProtocol struct {
	language string // Language identifier for logging context
}

// NewLSPJSONRPCProtocol creates a new LSP JSON-RPC protocol handler
func NewLSPJSONRPCProtocol(language string) *LSPJSONRPCProtocol {
	return &LSPJSONRPCProtocol{
		language: language,
	}
}

// HandleMessages reads frames until the stream ends or a framing error
// occurs. Bodies that fail to decode are dropped and reading continues.
// Frames already buffered are delivered even after stopCh closes. It returns
// nil when the stream ends after stopCh closed, io.EOF on any other clean end
// of stream and the framing error otherwise.
func (p *LSPJSONRPCProtocol) HandleMessages(reader io.Reader, messageHandler MessageHandler, stopCh <-chan struct{}) error {
	frames := NewFrameReader(reader)

	for {
		body, err := frames.ReadFrame()
		if err != nil {
			select {
			case <-stopCh:
				return nil
			default:
				return err
			}
		}

		if err := p.HandleMessage(body, messageHandler); err != nil {
			common.LSPLogger.Debug("Dropped message from %s server: %v", p.language, err)
		}
	}
}

// HandleMessage decodes a single frame body and routes it to the handler
func (p *LSPJSONRPCProtocol) HandleMessage(data []byte, messageHandler MessageHandler) error {
	msg, err := Decode(data)
	if err != nil {
		return err
	}

	switch {
	case msg.IsRequest():
		common.LSPLogger.Debug("Received server request: method=%s, id=%s from %s", msg.Method, string(msg.ID), p.language)
		return messageHandler.HandleRequest(msg.Method, msg.ID, msg.Params)
	case msg.IsNotification():
		common.LSPLogger.Debug("Received server notification: method=%s from %s", msg.Method, p.language)
		return messageHandler.HandleNotification(msg.Method, msg.Params)
	default:
		if msg.Error != nil {
			common.LSPLogger.Debug("LSP response contains error: id=%s, error=%s", string(msg.ID), common.SanitizeErrorForLogging(msg.Error.Message))
		}
		return messageHandler.HandleResponse(msg.ID, msg.Result, msg.Error)
	}
}
