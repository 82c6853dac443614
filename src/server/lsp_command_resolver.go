package server

import (
	"os/exec"
	"path/filepath"

	"github.com/harehare/mq-edit/src/internal/common"
)

// resolveCommandPath returns the absolute path of command when it can be
// found on PATH and the command unchanged otherwise
func resolveCommandPath(command string) string {
	if command == "" || filepath.IsAbs(command) {
		return command
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		common.LSPLogger.Debug("Command %s not found on PATH: %v", command, err)
		return command
	}
	return resolved
}

// isCommandAvailable reports whether command can be executed
func isCommandAvailable(command string) bool {
	if command == "" {
		return false
	}
	if filepath.IsAbs(command) {
		return common.FileExists(command)
	}
	_, err := exec.LookPath(command)
	return err == nil
}
