//go:build !windows

package process

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
)

type mockShutdownSender struct {
	shutdownCalled bool
	exitCalled     bool
}

func (m *mockShutdownSender) SendShutdownRequest(ctx context.Context) error {
	m.shutdownCalled = true
	return nil
}

func (m *mockShutdownSender) SendExitNotification(ctx context.Context) error {
	m.exitCalled = true
	return nil
}

func TestStartProcess(t *testing.T) {
	tests := []struct {
		name        string
		config      types.ClientConfig
		language    string
		expectError bool
	}{
		{
			name: "valid echo command",
			config: types.ClientConfig{
				Command: "echo",
				Args:    []string{"hello"},
			},
			language:    "test",
			expectError: false,
		},
		{
			name: "invalid command",
			config: types.ClientConfig{
				Command: "nonexistentcommand12345",
			},
			language:    "test",
			expectError: true,
		},
		{
			name:        "empty command",
			config:      types.ClientConfig{},
			language:    "test",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := NewLSPProcessManager()
			info, err := pm.StartProcess(tt.config, tt.language)

			if tt.expectError {
				require.Error(t, err)
				assert.True(t, lsperrors.IsProcessError(err))
				assert.Nil(t, info)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, info)
			assert.Equal(t, tt.language, info.Language)
			assert.Equal(t, tt.config.Command, info.Command)
			assert.NoError(t, pm.Kill(info))
		})
	}
}

func TestStartProcessPipesStdio(t *testing.T) {
	pm := NewLSPProcessManager()
	info, err := pm.StartProcess(types.ClientConfig{Command: "cat"}, "echo")
	require.NoError(t, err)
	defer pm.Kill(info)

	_, err = info.Stdin.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, info.Stdin.Close())

	out, err := io.ReadAll(info.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(out))
}

func TestKillIsUnconditional(t *testing.T) {
	pm := NewLSPProcessManager()

	info, err := pm.StartProcess(types.ClientConfig{Command: "sleep", Args: []string{"30"}}, "test")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, pm.Kill(info))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.True(t, info.Exited())
	assert.True(t, info.IntentionalStop())

	select {
	case <-info.StopCh:
	default:
		t.Fatal("StopCh should be closed after Kill")
	}

	// Killing twice is harmless
	assert.NoError(t, pm.Kill(info))
	assert.NoError(t, pm.Kill(nil))
}

func TestStopProcessWithShutdownSender(t *testing.T) {
	pm := NewLSPProcessManager()

	info, err := pm.StartProcess(types.ClientConfig{Command: "sleep", Args: []string{"30"}}, "test")
	require.NoError(t, err)

	sender := &mockShutdownSender{}
	require.NoError(t, pm.StopProcess(info, sender))

	assert.True(t, sender.shutdownCalled, "Expected SendShutdownRequest to be called")
	assert.True(t, sender.exitCalled, "Expected SendExitNotification to be called")
	assert.True(t, info.Exited())
}

func TestStopProcessSkipsHandshakeForExitedProcess(t *testing.T) {
	pm := NewLSPProcessManager()

	info, err := pm.StartProcess(types.ClientConfig{Command: "sh", Args: []string{"-c", "exit 0"}}, "test")
	require.NoError(t, err)

	select {
	case <-info.Done:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	sender := &mockShutdownSender{}
	require.NoError(t, pm.StopProcess(info, sender))
	assert.False(t, sender.shutdownCalled)
}

func TestMonitorProcess(t *testing.T) {
	pm := NewLSPProcessManager()

	info, err := pm.StartProcess(types.ClientConfig{Command: "sh", Args: []string{"-c", "exit 3"}}, "test")
	require.NoError(t, err)
	defer pm.CleanupProcess(info)

	exitCalled := make(chan error, 1)
	go pm.MonitorProcess(info, func(err error) {
		exitCalled <- err
	})

	select {
	case err := <-exitCalled:
		assert.Error(t, err)
		assert.False(t, info.IntentionalStop())
	case <-time.After(5 * time.Second):
		t.Error("Process monitoring timed out")
	}
}

func TestMonitorProcessInvalidInfo(t *testing.T) {
	pm := NewLSPProcessManager()
	var got error
	pm.MonitorProcess(nil, func(err error) { got = err })
	assert.Error(t, got)
}

func TestCleanupProcess(t *testing.T) {
	pm := NewLSPProcessManager()

	info, err := pm.StartProcess(types.ClientConfig{Command: "echo", Args: []string{"test"}}, "test")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		pm.CleanupProcess(info)
		pm.CleanupProcess(info)
		pm.CleanupProcess(nil)
	})
	<-info.Done
}
