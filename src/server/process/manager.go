package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
)

// ProcessInfo holds information about a running LSP server process
type ProcessInfo struct {
	Cmd      *exec.Cmd
	Stdin    io.WriteCloser
	Stdout   io.ReadCloser
	Stderr   io.ReadCloser
	StopCh   chan struct{}
	Done     chan struct{} // closed once the process has been reaped
	Language string
	Command  string

	mu              sync.Mutex
	exitErr         error
	intentionalStop bool
	stopOnce        sync.Once
	cleanupOnce     sync.Once
}

// Exited reports whether the process has been reaped
func (info *ProcessInfo) Exited() bool {
	select {
	case <-info.Done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error returned by Wait, valid once Exited is true
func (info *ProcessInfo) ExitErr() error {
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.exitErr
}

// IntentionalStop reports whether the process was stopped by us
func (info *ProcessInfo) IntentionalStop() bool {
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.intentionalStop
}

func (info *ProcessInfo) closeStopCh() {
	info.stopOnce.Do(func() { close(info.StopCh) })
}

// ShutdownSender interface for sending LSP shutdown messages
type ShutdownSender interface {
	SendShutdownRequest(ctx context.Context) error
	SendExitNotification(ctx context.Context) error
}

// ProcessManager interface for LSP server process lifecycle management
type ProcessManager interface {
	StartProcess(config types.ClientConfig, language string) (*ProcessInfo, error)
	StopProcess(info *ProcessInfo, sender ShutdownSender) error
	Kill(info *ProcessInfo) error
	MonitorProcess(info *ProcessInfo, onExit func(error))
	CleanupProcess(info *ProcessInfo)
}

// LSPProcessManager implements ProcessManager for LSP server processes
type LSPProcessManager struct{}

// NewLSPProcessManager creates a new LSP process manager
func NewLSPProcessManager() *LSPProcessManager {
	return &LSPProcessManager{}
}

// StartProcess spawns an LSP server process with piped standard streams.
// A spawn failure is returned as a *errors.ProcessError of type "start".
func (pm *LSPProcessManager) StartProcess(config types.ClientConfig, language string) (*ProcessInfo, error) {
	if config.Command == "" {
		return nil, lsperrors.NewProcessError(language, "", "start", fmt.Errorf("empty command"))
	}

	dir, err := common.ResolveWorkingDir(config.WorkingDir)
	if err != nil {
		return nil, lsperrors.NewProcessError(language, config.Command, "start", err)
	}

	cmd := exec.Command(config.Command, config.Args...)
	cmd.Dir = dir
	if len(config.Env) > 0 {
		cmd.Env = append(os.Environ(), config.Env...)
	}

	info := &ProcessInfo{
		Cmd:      cmd,
		StopCh:   make(chan struct{}),
		Done:     make(chan struct{}),
		Language: language,
		Command:  config.Command,
	}

	info.Stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, lsperrors.NewProcessError(language, config.Command, "start", fmt.Errorf("failed to create stdin pipe: %w", err))
	}

	// Plain os.Pipe pairs instead of StdoutPipe/StderrPipe: cmd.Wait must not
	// close the read ends while the reader goroutine is still draining them.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		info.Stdin.Close()
		return nil, lsperrors.NewProcessError(language, config.Command, "start", fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		info.Stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, lsperrors.NewProcessError(language, config.Command, "start", fmt.Errorf("failed to create stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	info.Stdout = stdoutR
	info.Stderr = stderrR

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		pm.CleanupProcess(info)
		return nil, lsperrors.NewProcessError(language, config.Command, "start", fmt.Errorf("failed to start LSP server: %w", startErr))
	}

	// Single owner of cmd.Wait; everything else waits on Done.
	go func() {
		err := cmd.Wait()
		info.mu.Lock()
		info.exitErr = err
		info.mu.Unlock()
		close(info.Done)
	}()

	common.LSPLogger.Info("Started LSP server process for %s: PID %d", language, cmd.Process.Pid)
	return info, nil
}

// StopProcess sends the shutdown handshake when a sender is given and then
// kills the process unconditionally
func (pm *LSPProcessManager) StopProcess(info *ProcessInfo, sender ShutdownSender) error {
	if info == nil {
		return nil
	}

	if sender != nil && !info.Exited() {
		pm.sendShutdown(sender)
	}

	return pm.Kill(info)
}

// Kill terminates the process without any handshake, waits briefly for it to
// be reaped and releases its pipes. Calling Kill more than once is safe.
func (pm *LSPProcessManager) Kill(info *ProcessInfo) error {
	if info == nil {
		return nil
	}

	info.mu.Lock()
	info.intentionalStop = true
	info.mu.Unlock()
	info.closeStopCh()

	var killErr error
	if info.Cmd != nil && info.Cmd.Process != nil && !info.Exited() {
		if err := info.Cmd.Process.Kill(); err != nil && !isExpectedKillError(err) {
			killErr = lsperrors.NewProcessError(info.Language, info.Command, "stop", err)
			common.LSPLogger.Debug("Failed to kill LSP server %s: %v", info.Language, err)
		}

		select {
		case <-info.Done:
		case <-time.After(constants.ProcessExitWaitTimeout):
			common.LSPLogger.Warn("LSP server %s was not reaped within %v", info.Language, constants.ProcessExitWaitTimeout)
		}
	}

	pm.CleanupProcess(info)
	return killErr
}

// MonitorProcess blocks until the process exits and reports it through onExit
func (pm *LSPProcessManager) MonitorProcess(info *ProcessInfo, onExit func(error)) {
	if info == nil || info.Cmd == nil || info.Cmd.Process == nil {
		common.LSPLogger.Error("MonitorProcess called with nil process info or command")
		if onExit != nil {
			onExit(fmt.Errorf("invalid process info"))
		}
		return
	}

	<-info.Done
	err := info.ExitErr()

	if info.IntentionalStop() {
		common.LSPLogger.Debug("LSP server %s stopped", info.Language)
	} else if err != nil {
		common.LSPLogger.Error("LSP server %s exited unexpectedly: %v", info.Language, err)
	} else {
		common.LSPLogger.Info("LSP server %s exited", info.Language)
	}

	info.closeStopCh()

	if onExit != nil {
		onExit(err)
	}
}

// CleanupProcess closes all pipes
func (pm *LSPProcessManager) CleanupProcess(info *ProcessInfo) {
	if info == nil {
		return
	}

	info.cleanupOnce.Do(func() {
		if info.Stdin != nil {
			info.Stdin.Close()
		}
		if info.Stdout != nil {
			info.Stdout.Close()
		}
		if info.Stderr != nil {
			info.Stderr.Close()
		}
	})
}

// sendShutdown sends shutdown sequence to LSP server through the ShutdownSender
func (pm *LSPProcessManager) sendShutdown(sender ShutdownSender) {
	shutdownCtx, shutdownCancel := common.CreateContext(constants.ShutdownRequestTimeout)
	defer shutdownCancel()

	if err := sender.SendShutdownRequest(shutdownCtx); err != nil {
		common.LSPLogger.Debug("Shutdown request failed: %v", err)
	}

	exitCtx, exitCancel := common.CreateContext(constants.ExitNotificationTimeout)
	defer exitCancel()

	if err := sender.SendExitNotification(exitCtx); err != nil {
		common.LSPLogger.Debug("Exit notification failed: %v", err)
	}
}
