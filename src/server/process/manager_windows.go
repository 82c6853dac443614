//go:build windows
// +build windows

package process

import (
	"errors"
	"os"
	"strings"
)

// isExpectedKillError reports errors that only mean the process was already gone
func isExpectedKillError(err error) bool {
	if errors.Is(err, os.ErrProcessDone) {
		return true
	}
	// TerminateProcess on an exited process fails with ERROR_ACCESS_DENIED
	return strings.Contains(strings.ToLower(err.Error()), "access is denied")
}
