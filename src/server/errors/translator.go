// Package errors turns language server stderr output and transport failures
// into log lines and typed errors.
package errors

import (
	"strings"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/errors"
)

type ErrorTranslator interface {
	TranslateAndLogError(serverName, line string, context []string) bool
	TranslateToUnifiedError(language string, err error) error
}

type LSPErrorTranslator struct {
	logger *common.SafeLogger
}

func NewLSPErrorTranslator() *LSPErrorTranslator {
	return &LSPErrorTranslator{logger: common.LSPLogger}
}

// NewLSPErrorTranslatorWithLogger routes translated lines to a specific logger
func NewLSPErrorTranslatorWithLogger(logger *common.SafeLogger) *LSPErrorTranslator {
	return &LSPErrorTranslator{logger: logger}
}

// TranslateAndLogError logs a recognised stderr line with a readable message.
// It returns false when the line matched no known pattern.
func (t *LSPErrorTranslator) TranslateAndLogError(serverName, line string, context []string) bool {
	if strings.Contains(line, "Method not found") || strings.Contains(line, "MethodNotFound") {
		if method := extractMethodFromError(line); method != "" {
			t.logger.Warn("LSP %s: Method '%s' not supported by this server", serverName, method)
			return true
		}
	}

	if strings.Contains(line, "not supported") || strings.Contains(line, "unsupported") {
		t.logger.Warn("LSP %s: Feature not supported by this server: %s", serverName, line)
		return true
	}

	if len(context) > 0 && strings.Contains(context[0], "Traceback") {
		t.logger.Error("LSP %s crashed: %s (%d lines of traceback)", serverName, line, len(context))
		return true
	}

	if strings.Contains(line, "panic:") {
		t.logger.Error("LSP %s panicked: %s", serverName, line)
		return true
	}

	return false
}

func extractMethodFromError(errorLine string) string {
	patterns := []string{
		"textDocument/semanticTokens/full",
		"textDocument/definition",
		"textDocument/references",
		"textDocument/completion",
		"textDocument/didChange",
		"textDocument/didOpen",
	}

	for _, pattern := range patterns {
		if strings.Contains(errorLine, pattern) {
			return pattern
		}
	}

	return ""
}

// TranslateToUnifiedError maps a transport failure onto the typed error set
func (t *LSPErrorTranslator) TranslateToUnifiedError(language string, err error) error {
	if err == nil {
		return nil
	}

	if errors.IsConnectionError(err) || errors.IsValidationError(err) ||
		errors.IsProcessError(err) || errors.IsLSPError(err) || errors.IsFeatureDisabled(err) {
		return err
	}

	errMsg := strings.ToLower(err.Error())
	if errors.IsBrokenPipe(err) || strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "pipe") {
		return errors.NewConnectionError(language, err)
	}

	return errors.WrapWithContext(language, err)
}
