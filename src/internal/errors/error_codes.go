// Package errors provides the typed errors shared by the LSP subsystem.
package errors

// Standard JSON-RPC error codes as defined in RFC 7309
const (
	ParseError     = -32700 // Invalid JSON was received by the server
	InvalidRequest = -32600 // The JSON sent is not a valid Request object
	MethodNotFound = -32601 // The method does not exist / is not available
	InvalidParams  = -32602 // Invalid method parameter(s)
	InternalError  = -32603 // Internal JSON-RPC error
)

// LSP-specific error codes (range: -32899 to -32000)
const (
	ServerNotInitialized = -32002
	UnknownErrorCode     = -32001
	RequestCancelled     = -32800
	ContentModified      = -32801
	ServerCancelled      = -32802
	RequestFailed        = -32803
)

// CodeName returns a short human readable name for a JSON-RPC/LSP error code
func CodeName(code int) string {
	switch code {
	case ParseError:
		return "parse error"
	case InvalidRequest:
		return "invalid request"
	case MethodNotFound:
		return "method not found"
	case InvalidParams:
		return "invalid params"
	case InternalError:
		return "internal error"
	case ServerNotInitialized:
		return "server not initialized"
	case RequestCancelled:
		return "request cancelled"
	case ContentModified:
		return "content modified"
	case ServerCancelled:
		return "server cancelled"
	case RequestFailed:
		return "request failed"
	default:
		return "unknown error"
	}
}
