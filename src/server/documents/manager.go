package documents

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.lsp.dev/protocol"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/utils"
)

// Document is an open file as last sent to a backend
type Document struct {
	Path     string
	Language string
	Version  int32
	Text     string
}

// DocumentManager interface for document-related operations
type DocumentManager interface {
	DetectLanguage(path string) string
	Open(path string) (*Document, error)
	Change(path string) (*Document, error)
	Close(path string)
	IsOpen(path string) bool
	Sync(backend types.Backend, path string) (*Document, error)
}

// LSPDocumentManager tracks open documents and their versions. Versions
// start at 1 on open and grow by one per change.
type LSPDocumentManager struct {
	mu        sync.Mutex
	documents map[string]*Document
	readFile  func(string) ([]byte, error)
}

// NewLSPDocumentManager creates a new document manager
func NewLSPDocumentManager() *LSPDocumentManager {
	return &LSPDocumentManager{
		documents: make(map[string]*Document),
		readFile:  os.ReadFile,
	}
}

// DetectLanguage detects the language identifier from a file path or file:// URI
func (dm *LSPDocumentManager) DetectLanguage(path string) string {
	if strings.HasPrefix(path, "file://") {
		if filePath, err := utils.URIToFilePath(protocol.DocumentURI(path)); err == nil {
			path = filePath
		}
	}
	return constants.LanguageForPath(path)
}

// Open reads a file and records it at version 1. Opening an already open
// document restarts its version.
func (dm *LSPDocumentManager) Open(path string) (*Document, error) {
	language := dm.DetectLanguage(path)
	if language == "" {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	content, err := dm.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc := &Document{Path: path, Language: language, Version: 1, Text: string(content)}

	dm.mu.Lock()
	dm.documents[path] = doc
	dm.mu.Unlock()

	common.LSPLogger.Debug("Opened %s as %s", path, language)
	return copyDocument(doc), nil
}

// Change re-reads an open file and bumps its version
func (dm *LSPDocumentManager) Change(path string) (*Document, error) {
	dm.mu.Lock()
	doc, ok := dm.documents[path]
	dm.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("document is not open: %s", path)
	}

	content, err := dm.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	doc.Version++
	doc.Text = string(content)
	return copyDocument(doc), nil
}

// Close forgets a document
func (dm *LSPDocumentManager) Close(path string) {
	dm.mu.Lock()
	delete(dm.documents, path)
	dm.mu.Unlock()
}

// IsOpen reports whether a document is tracked
func (dm *LSPDocumentManager) IsOpen(path string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_, ok := dm.documents[path]
	return ok
}

// Sync sends the current file content to backend: didOpen the first time,
// didChange with the next version afterwards
func (dm *LSPDocumentManager) Sync(backend types.Backend, path string) (*Document, error) {
	if !dm.IsOpen(path) {
		doc, err := dm.Open(path)
		if err != nil {
			return nil, err
		}
		if err := backend.DidOpen(doc.Path, doc.Text); err != nil {
			common.LSPLogger.Error("Failed to send didOpen notification for %s: %v", path, err)
			dm.Close(path)
			return nil, fmt.Errorf("failed to send didOpen notification: %w", err)
		}
		return doc, nil
	}

	doc, err := dm.Change(path)
	if err != nil {
		return nil, err
	}
	if err := backend.DidChange(doc.Path, doc.Version, doc.Text); err != nil {
		common.LSPLogger.Error("Failed to send didChange notification for %s: %v", path, err)
		return nil, fmt.Errorf("failed to send didChange notification: %w", err)
	}
	return doc, nil
}

func copyDocument(doc *Document) *Document {
	clone := *doc
	return &clone
}
