// Package capabilities parses the capabilities a server reports in its
// initialize response.
package capabilities

import (
	"encoding/json"
	"fmt"

	"github.com/harehare/mq-edit/src/internal/types"
)

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

type ServerCapabilities struct {
	CompletionProvider     *CompletionOptions `json:"completionProvider,omitempty"`
	DefinitionProvider     interface{}        `json:"definitionProvider,omitempty"`
	ReferencesProvider     interface{}        `json:"referencesProvider,omitempty"`
	SemanticTokensProvider interface{}        `json:"semanticTokensProvider,omitempty"`
	TextDocumentSync       interface{}        `json:"textDocumentSync,omitempty"`
}

type CapabilityDetector interface {
	ParseCapabilities(response json.RawMessage) (ServerCapabilities, error)
	SupportsMethod(caps ServerCapabilities, method string) bool
}

type LSPCapabilityDetector struct{}

func NewLSPCapabilityDetector() *LSPCapabilityDetector {
	return &LSPCapabilityDetector{}
}

func (d *LSPCapabilityDetector) ParseCapabilities(response json.RawMessage) (ServerCapabilities, error) {
	var initResponse struct {
		Capabilities ServerCapabilities `json:"capabilities"`
	}

	if err := json.Unmarshal(response, &initResponse); err != nil {
		return ServerCapabilities{}, fmt.Errorf("failed to unmarshal initialize response: %w", err)
	}

	return initResponse.Capabilities, nil
}

// TriggerCharacters returns the completion trigger characters, never nil
func TriggerCharacters(caps ServerCapabilities) []string {
	if caps.CompletionProvider == nil || caps.CompletionProvider.TriggerCharacters == nil {
		return []string{}
	}
	return append([]string{}, caps.CompletionProvider.TriggerCharacters...)
}

func (d *LSPCapabilityDetector) SupportsMethod(caps ServerCapabilities, method string) bool {
	switch method {
	case types.MethodInitialize, types.MethodShutdown, types.MethodExit:
		return true
	case types.MethodTextDocumentDefinition:
		return d.isCapabilitySupported(caps.DefinitionProvider)
	case types.MethodTextDocumentReferences:
		return d.isCapabilitySupported(caps.ReferencesProvider)
	case types.MethodTextDocumentSemanticTokensFull:
		return d.isCapabilitySupported(caps.SemanticTokensProvider)
	case types.MethodTextDocumentCompletion:
		return caps.CompletionProvider != nil
	default:
		return true
	}
}

func (d *LSPCapabilityDetector) isCapabilitySupported(capability interface{}) bool {
	if capability == nil {
		return false
	}

	if boolVal, ok := capability.(bool); ok {
		return boolVal
	}

	// Options objects, even empty ones, mean the capability is present
	return true
}
