package constants

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Process management timeouts
const (
	// Time allowed for the shutdown request and exit notification writes
	ShutdownRequestTimeout  = 2 * time.Second
	ExitNotificationTimeout = 1 * time.Second

	// Time allowed for a killed server to be reaped
	ProcessExitWaitTimeout = 2 * time.Second

	// CLI commands wait at most this long for an answer before giving up
	DefaultQueryTimeout = 10 * time.Second

	// Interval at which CLI commands poll the manager for events
	PollInterval = 20 * time.Millisecond
)

// Wire protocol constants
const (
	// Reader buffer for server output; large enough for big completion lists
	LSPResponseBufferSize = 1024 * 1024

	// Header block lines beyond this many are treated as a malformed frame
	MaxHeaderLines = 16
)

// File watching
const (
	FileWatchDebounceDelay = 300 * time.Millisecond
)

// Identity reported to servers in initialize
const (
	ClientName       = "mq-edit"
	DiagnosticSource = "mq-lsp"
)

// Language identifiers with built-in handling
const (
	LanguageMarkdown = "markdown"
)

// ExtensionLanguages maps file extensions to LSP language identifiers
var ExtensionLanguages = map[string]string{
	".md":       LanguageMarkdown,
	".markdown": LanguageMarkdown,
	".mdx":      LanguageMarkdown,
	".mq":       "mq",
	".rs":       "rust",
	".py":       "python",
	".pyi":      "python",
	".go":       "go",
	".ts":       "typescript",
	".tsx":      "typescript",
	".js":       "javascript",
	".jsx":      "javascript",
	".mjs":      "javascript",
	".json":     "json",
	".toml":     "toml",
	".yaml":     "yaml",
	".yml":      "yaml",
}

// Directories to skip during file scanning
var SkipDirectories = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"__pycache__":  true,
	".git":         true,
	".svn":         true,
	".hg":          true,
	".idea":        true,
	".vscode":      true,
}

// LanguageForPath returns the language identifier for a file path, or "" if unknown
func LanguageForPath(path string) string {
	return ExtensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// ExtensionsForLanguage returns every extension mapped to language, sorted
func ExtensionsForLanguage(language string) []string {
	extensions := make([]string, 0)
	for ext, lang := range ExtensionLanguages {
		if lang == language {
			extensions = append(extensions, ext)
		}
	}
	sort.Strings(extensions)
	return extensions
}
