package server

import (
	"encoding/json"
	"fmt"

	"github.com/harehare/mq-edit/src/internal/common"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/server/capabilities"
	"github.com/harehare/mq-edit/src/server/protocol"
	"github.com/harehare/mq-edit/src/utils/lspconv"
)

// responseEvent converts a response to a pending request into the event it
// produces. The second result is false for responses that produce nothing,
// such as the answer to shutdown.
func responseEvent(
	id types.RequestID,
	req *pendingRequest,
	result json.RawMessage,
	rpcErr *protocol.RPCError,
	capDetector capabilities.CapabilityDetector,
) (types.Event, bool) {
	if rpcErr != nil {
		common.LSPLogger.Warn("LSP response contains error: id=%d, error=%s", id, common.SanitizeErrorForLogging(rpcErr))
		return types.NewErrorEvent(id, lsperrors.NewLSPError(req.method, rpcErr.Code, rpcErr.Message, rpcErr.Data).Error()), true
	}

	switch req.method {
	case types.MethodInitialize:
		caps, err := capDetector.ParseCapabilities(result)
		if err != nil {
			common.LSPLogger.Warn("Failed to parse server capabilities: %v", err)
		}
		return types.NewInitializedEvent(id, capabilities.TriggerCharacters(caps)), true

	case types.MethodTextDocumentCompletion:
		list, err := lspconv.ParseCompletion(result)
		if err != nil {
			return types.NewErrorEvent(id, fmt.Sprintf("%s failed: %v", req.method, err)), true
		}
		return types.NewCompletionEvent(id, list), true

	case types.MethodTextDocumentDefinition:
		return types.NewDefinitionEvent(id, lspconv.ParseLocations(result)), true

	case types.MethodTextDocumentReferences:
		return types.NewReferencesEvent(id, lspconv.ParseLocations(result)), true

	case types.MethodTextDocumentSemanticTokensFull:
		tokens, err := lspconv.ParseSemanticTokens(result)
		if err != nil {
			return types.NewErrorEvent(id, fmt.Sprintf("%s failed: %v", req.method, err)), true
		}
		return types.NewSemanticTokensEvent(id, req.uri, tokens), true

	default:
		return types.Event{}, false
	}
}
