package utils

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func TestFilePathToURI(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected protocol.DocumentURI
		os       string
	}{
		{
			name:     "Unix absolute path",
			path:     "/home/user/README.md",
			expected: "file:///home/user/README.md",
			os:       "linux",
		},
		{
			name:     "Unix path with spaces",
			path:     "/home/user name/my file.md",
			expected: "file:///home/user%20name/my%20file.md",
			os:       "linux",
		},
		{
			name:     "Unix path is cleaned",
			path:     "/home/user/./docs/../README.md",
			expected: "file:///home/user/README.md",
			os:       "linux",
		},
		{
			name:     "Windows absolute path",
			path:     `C:\Users\username\README.md`,
			expected: "file:///C:/Users/username/README.md",
			os:       "windows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if runtime.GOOS != tt.os {
				t.Skipf("Skipping %s test on %s", tt.os, runtime.GOOS)
			}
			assert.Equal(t, tt.expected, FilePathToURI(tt.path))
		})
	}
}

func TestURIToFilePathRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes with space.md")

	got, err := URIToFilePath(FilePathToURI(path))
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestURIToFilePathRejectsNonFile(t *testing.T) {
	_, err := URIToFilePath("https://example.com/readme.md")
	assert.Error(t, err)

	_, err = URIToFilePath("untitled:Untitled-1")
	assert.Error(t, err)
}

func TestIsRemoteTarget(t *testing.T) {
	assert.True(t, IsRemoteTarget("https://example.com"))
	assert.True(t, IsRemoteTarget("HTTP://EXAMPLE.COM"))
	assert.True(t, IsRemoteTarget("mailto:me@example.com"))
	assert.False(t, IsRemoteTarget("./docs/guide.md"))
	assert.False(t, IsRemoteTarget("#heading"))
}
