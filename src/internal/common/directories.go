package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDirName is the per-user directory holding lsp.yaml and installed tools
const ConfigDirName = ".mq-edit"

// ConfigHome returns ~/.mq-edit, or ./.mq-edit when there is no home directory
func ConfigHome() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ConfigDirName)
	}
	return filepath.Join(homeDir, ConfigDirName)
}

// ToolPath returns where a language server binary installed for language
// lives: ~/.mq-edit/tools/{language}/bin/{command}
func ToolPath(language, command string) string {
	return filepath.Join(ConfigHome(), "tools", language, "bin", command)
}

// ResolveWorkingDir returns the absolute directory a server process runs in.
// An empty dir means the current directory, falling back to the temp dir.
func ResolveWorkingDir(dir string) (string, error) {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			return wd, nil
		}
		return os.TempDir(), nil
	}

	expanded, err := ExpandPath(dir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory %s: %w", expanded, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("working directory %s does not exist: %w", absPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", absPath)
	}
	return absPath, nil
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path, fmt.Errorf("failed to get user home directory: %w", err)
	}
	if path == "~" {
		return homeDir, nil
	}
	return filepath.Join(homeDir, path[2:]), nil
}
