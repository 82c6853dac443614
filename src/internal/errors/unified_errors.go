package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
)

// LSPError is an error response returned by a language server
type LSPError struct {
	Method  string      `json:"method,omitempty"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *LSPError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s failed: %s (%s %d)", e.Method, e.Message, CodeName(e.Code), e.Code)
	}
	return fmt.Sprintf("LSP error %d: %s", e.Code, e.Message)
}

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Parameter string `json:"parameter"`
	Message   string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for parameter '%s': %s", e.Parameter, e.Message)
}

// ConnectionError represents a failure talking to a running LSP server
type ConnectionError struct {
	Language string `json:"language"`
	Cause    error  `json:"cause,omitempty"`
	Type     string `json:"type,omitempty"`
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error for %s (%s): %v", e.Language, e.Type, e.Cause)
	}
	return fmt.Sprintf("connection error for %s (%s)", e.Language, e.Type)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ProcessError represents LSP server process errors
type ProcessError struct {
	Language string `json:"language"`
	Command  string `json:"command"`
	Cause    error  `json:"cause,omitempty"`
	Type     string `json:"type"` // "start", "stop"
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process error for %s server (%s): %s - %v", e.Language, e.Type, e.Command, e.Cause)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// ConfigError reports a language that cannot be served with the current configuration
type ConfigError struct {
	Language string `json:"language"`
	Message  string `json:"message"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Language)
}

// Error constructors

// NewLSPError creates an error for a failed server response
func NewLSPError(method string, code int, message string, data interface{}) *LSPError {
	return &LSPError{
		Method:  method,
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewValidationError creates a new validation error for the specified parameter
func NewValidationError(parameter, message string) *ValidationError {
	return &ValidationError{
		Parameter: parameter,
		Message:   message,
	}
}

// NewConnectionError creates a new connection error with language context
func NewConnectionError(language string, cause error) *ConnectionError {
	errType := "unknown"
	if cause != nil {
		errType = classifyConnectionError(cause)
	}
	return &ConnectionError{
		Language: language,
		Cause:    cause,
		Type:     errType,
	}
}

// NewProcessError creates a new process error for LSP server operations
func NewProcessError(language, command, errorType string, cause error) *ProcessError {
	return &ProcessError{
		Language: language,
		Command:  command,
		Type:     errorType,
		Cause:    cause,
	}
}

// NewNotConfiguredError reports a language without any LSP configuration
func NewNotConfiguredError(language string) *ConfigError {
	return &ConfigError{Language: language, Message: "LSP not configured for language"}
}

// NewNoEmbeddedError reports an embedded entry for a language without an in-process analyzer
func NewNoEmbeddedError(language string) *ConfigError {
	return &ConfigError{Language: language, Message: "no embedded LSP implementation for language"}
}

// Error classification functions

// IsConnectionError checks if the error is a connection-related error
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return stderrors.As(err, &target)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	var target *ValidationError
	return stderrors.As(err, &target)
}

// IsProcessError checks if the error is a process-related error
func IsProcessError(err error) bool {
	var target *ProcessError
	return stderrors.As(err, &target)
}

// IsConfigError checks if the error reports a missing or unusable configuration
func IsConfigError(err error) bool {
	var target *ConfigError
	return stderrors.As(err, &target)
}

// IsFeatureDisabled checks if the error was caused by a disabled capability toggle
func IsFeatureDisabled(err error) bool {
	var target *FeatureDisabledError
	return stderrors.As(err, &target)
}

// IsLSPError checks if the error is an error response from a server
func IsLSPError(err error) bool {
	var target *LSPError
	return stderrors.As(err, &target)
}

// IsBrokenPipe reports whether err means the peer process is gone
func IsBrokenPipe(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, os.ErrClosed)
}

// WrapWithContext wraps an error with operation context
func WrapWithContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// classifyConnectionError determines the specific type of connection error
func classifyConnectionError(err error) string {
	if err == nil {
		return "unknown"
	}
	if stderrors.Is(err, syscall.EPIPE) {
		return "broken_pipe"
	}
	if stderrors.Is(err, io.ErrClosedPipe) || stderrors.Is(err, os.ErrClosed) {
		return "closed"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(errMsg, "closed"):
		return "closed"
	case strings.Contains(errMsg, "no such file") || strings.Contains(errMsg, "executable"):
		return "not_found"
	}
	return "io"
}
