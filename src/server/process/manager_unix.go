//go:build !windows
// +build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// isExpectedKillError reports errors that only mean the process was already gone
func isExpectedKillError(err error) bool {
	if errors.Is(err, os.ErrProcessDone) {
		return true
	}
	// "no such process" / "no child processes"
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.ECHILD) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESRCH || errno == syscall.ECHILD
	}
	return false
}
