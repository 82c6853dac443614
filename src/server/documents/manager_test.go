package documents

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harehare/mq-edit/src/internal/types"
)

// recordingBackend records document notifications
type recordingBackend struct {
	types.Backend
	mu      sync.Mutex
	opened  []string
	changes []int32
	failure error
}

func (r *recordingBackend) DidOpen(path, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return r.failure
	}
	r.opened = append(r.opened, text)
	return nil
}

func (r *recordingBackend) DidChange(path string, version int32, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return r.failure
	}
	r.changes = append(r.changes, version)
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewLSPDocumentManager(t *testing.T) {
	manager := NewLSPDocumentManager()
	if manager == nil {
		t.Fatal("NewLSPDocumentManager returned nil")
	}
}

func TestDetectLanguage(t *testing.T) {
	manager := NewLSPDocumentManager()

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "Markdown file", path: "/test/README.md", expected: "markdown"},
		{name: "Long markdown extension", path: "/test/notes.markdown", expected: "markdown"},
		{name: "mq file", path: "/test/query.mq", expected: "mq"},
		{name: "Rust file", path: "/test/main.rs", expected: "rust"},
		{name: "Python file", path: "/test/script.py", expected: "python"},
		{name: "Go file URI", path: "file:///test/main.go", expected: "go"},
		{name: "TSX file", path: "/test/component.tsx", expected: "typescript"},
		{name: "JavaScript file", path: "/test/app.js", expected: "javascript"},
		{name: "Unknown extension", path: "/test/data.txt", expected: ""},
		{name: "No extension", path: "/test/README", expected: ""},
		{name: "Mixed case extension", path: "/test/Main.GO", expected: "go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, manager.DetectLanguage(tt.path))
		})
	}
}

func TestOpenAndChangeVersions(t *testing.T) {
	manager := NewLSPDocumentManager()
	path := writeFile(t, "README.md", "# One\n")

	doc, err := manager.Open(path)
	require.NoError(t, err)
	assert.Equal(t, "markdown", doc.Language)
	assert.Equal(t, int32(1), doc.Version)
	assert.Equal(t, "# One\n", doc.Text)
	assert.True(t, manager.IsOpen(path))

	require.NoError(t, os.WriteFile(path, []byte("# Two\n"), 0644))
	doc, err = manager.Change(path)
	require.NoError(t, err)
	assert.Equal(t, int32(2), doc.Version)
	assert.Equal(t, "# Two\n", doc.Text)

	doc, err = manager.Change(path)
	require.NoError(t, err)
	assert.Equal(t, int32(3), doc.Version)

	manager.Close(path)
	assert.False(t, manager.IsOpen(path))
	_, err = manager.Change(path)
	assert.ErrorContains(t, err, "document is not open")
}

func TestOpenErrors(t *testing.T) {
	manager := NewLSPDocumentManager()

	_, err := manager.Open(writeFile(t, "data.txt", "x"))
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = manager.Open(filepath.Join(t.TempDir(), "missing.md"))
	assert.ErrorContains(t, err, "failed to read")
}

func TestSyncOpensThenChanges(t *testing.T) {
	manager := NewLSPDocumentManager()
	backend := &recordingBackend{}
	path := writeFile(t, "main.rs", "fn main() {}\n")

	doc, err := manager.Sync(backend, path)
	require.NoError(t, err)
	assert.Equal(t, int32(1), doc.Version)

	_, err = manager.Sync(backend, path)
	require.NoError(t, err)
	_, err = manager.Sync(backend, path)
	require.NoError(t, err)

	assert.Equal(t, []string{"fn main() {}\n"}, backend.opened)
	assert.Equal(t, []int32{2, 3}, backend.changes)
}

func TestSyncOpenFailureLeavesDocumentClosed(t *testing.T) {
	manager := NewLSPDocumentManager()
	backend := &recordingBackend{failure: errors.New("broken pipe")}
	path := writeFile(t, "README.md", "# x\n")

	_, err := manager.Sync(backend, path)
	assert.ErrorContains(t, err, "failed to send didOpen notification")
	assert.False(t, manager.IsOpen(path))
}
