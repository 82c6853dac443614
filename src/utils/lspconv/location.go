package lspconv

import (
	"bytes"
	"encoding/json"

	"go.lsp.dev/protocol"
)

var jsonNull = []byte("null")

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull)
}

// ParseLocations converts the result shapes allowed for definition and
// references (Location | Location[] | LocationLink[] | null) into []protocol.Location.
// LocationLinks are reduced to their target selection range.
func ParseLocations(raw json.RawMessage) []protocol.Location {
	if isNull(raw) {
		return []protocol.Location{}
	}

	var single protocol.Location
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if err := json.Unmarshal(raw, &single); err == nil && single.URI != "" {
			return []protocol.Location{single}
		}
		return []protocol.Location{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []protocol.Location{}
	}

	out := make([]protocol.Location, 0, len(items))
	for _, item := range items {
		var link protocol.LocationLink
		if err := json.Unmarshal(item, &link); err == nil && link.TargetURI != "" {
			out = append(out, protocol.Location{URI: link.TargetURI, Range: link.TargetSelectionRange})
			continue
		}
		var loc protocol.Location
		if err := json.Unmarshal(item, &loc); err == nil && loc.URI != "" {
			out = append(out, loc)
		}
	}
	return out
}

// ParseCompletion converts a completion result (CompletionItem[] |
// CompletionList | null) into a CompletionList
func ParseCompletion(raw json.RawMessage) (*protocol.CompletionList, error) {
	if isNull(raw) {
		return &protocol.CompletionList{Items: []protocol.CompletionItem{}}, nil
	}

	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		var items []protocol.CompletionItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return &protocol.CompletionList{Items: items}, nil
	}

	var list protocol.CompletionList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	if list.Items == nil {
		list.Items = []protocol.CompletionItem{}
	}
	return &list, nil
}

// ParseSemanticTokens decodes a semanticTokens/full result; null yields nil
func ParseSemanticTokens(raw json.RawMessage) (*protocol.SemanticTokens, error) {
	if isNull(raw) {
		return nil, nil
	}
	var tokens protocol.SemanticTokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}
