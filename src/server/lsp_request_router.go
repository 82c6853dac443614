package server

import (
	"github.com/harehare/mq-edit/src/internal/types"
)

// DidOpen announces a document to the language's backend, starting it if needed
func (m *LSPManager) DidOpen(language, path, text string) error {
	client, err := m.GetOrCreate(language)
	if err != nil {
		return err
	}
	return client.DidOpen(path, text)
}

// DidChange sends the new full text of a document
func (m *LSPManager) DidChange(language, path string, version int32, text string) error {
	client, err := m.GetOrCreate(language)
	if err != nil {
		return err
	}
	return client.DidChange(path, version, text)
}

// RequestCompletion asks for completions and makes the request the latest one for the language
func (m *LSPManager) RequestCompletion(language, path string, line, col uint32, trigger *string) (types.RequestID, error) {
	client, err := m.GetOrCreate(language)
	if err != nil {
		return 0, err
	}
	id, err := client.RequestCompletion(path, line, col, trigger)
	if err != nil {
		return 0, err
	}
	m.tracker.issue(language, types.EventCompletion, id)
	return id, nil
}

// RequestDefinition asks for a definition and makes the request the latest one for the language
func (m *LSPManager) RequestDefinition(language, path string, line, col uint32) (types.RequestID, error) {
	client, err := m.GetOrCreate(language)
	if err != nil {
		return 0, err
	}
	id, err := client.RequestDefinition(path, line, col)
	if err != nil {
		return 0, err
	}
	m.tracker.issue(language, types.EventDefinition, id)
	return id, nil
}

// RequestReferences asks for references to the symbol at a position
func (m *LSPManager) RequestReferences(language, path string, line, col uint32, includeDeclaration bool) (types.RequestID, error) {
	client, err := m.GetOrCreate(language)
	if err != nil {
		return 0, err
	}
	id, err := client.RequestReferences(path, line, col, includeDeclaration)
	if err != nil {
		return 0, err
	}
	m.tracker.issue(language, types.EventReferences, id)
	return id, nil
}

// RequestSemanticTokens asks for semantic tokens of a whole document
func (m *LSPManager) RequestSemanticTokens(language, path string) (types.RequestID, error) {
	client, err := m.GetOrCreate(language)
	if err != nil {
		return 0, err
	}
	id, err := client.RequestSemanticTokens(path)
	if err != nil {
		return 0, err
	}
	m.tracker.issue(language, types.EventSemanticTokens, id)
	return id, nil
}
