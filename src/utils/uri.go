package utils

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// FilePathToURI converts a file system path to an absolute file:// URI
func FilePathToURI(path string) protocol.DocumentURI {
	return uri.File(filepath.Clean(path))
}

// URIToFilePath converts a file:// URI to a file system path. Non-file URIs
// are rejected instead of panicking the way uri.URI.Filename does.
func URIToFilePath(u protocol.DocumentURI) (string, error) {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return "", fmt.Errorf("invalid URI %q: %w", string(u), err)
	}
	if parsed.Scheme != uri.FileScheme {
		return "", fmt.Errorf("only file URIs are supported, got %q", parsed.Scheme)
	}
	return u.Filename(), nil
}

// IsRemoteTarget reports whether a link target points outside the file system
func IsRemoteTarget(target string) bool {
	lower := strings.ToLower(target)
	for _, prefix := range []string{"http://", "https://", "mailto:", "ftp://", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
