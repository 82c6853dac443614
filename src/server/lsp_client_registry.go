package server

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/harehare/mq-edit/src/internal/common"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
)

// ClientStatus represents the status of a language backend
type ClientStatus struct {
	Active    bool
	Embedded  bool
	Available bool // Whether the server command is available on system
	Command   string
}

// GetOrCreate returns the backend for a language, creating and initializing
// it on first use. An unconfigured language is an error and creates nothing.
// Initialize failures are logged and the backend is registered anyway.
// Creation runs outside the manager lock and concurrent callers for the same
// language share one creation.
func (m *LSPManager) GetOrCreate(language string) (types.Backend, error) {
	m.mu.RLock()
	client, ok := m.clients[language]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	cfg, ok := m.config.Get(language)
	if !ok {
		return nil, lsperrors.NewNotConfiguredError(language)
	}

	result, err, _ := m.creating.Do(language, func() (interface{}, error) {
		// an earlier creation may have finished after the first lookup
		m.mu.RLock()
		existing, ok := m.clients[language]
		m.mu.RUnlock()
		if ok {
			return existing, nil
		}

		client, err := m.factory(language, cfg)
		if err != nil {
			common.LSPLogger.Error("Failed to create %s backend: %v", language, err)
			return nil, fmt.Errorf("failed to create %s backend: %w", language, err)
		}

		if err := client.Initialize(); err != nil {
			common.LSPLogger.Warn("Failed to initialize %s backend: %v", language, err)
		} else if err := client.Initialized(); err != nil {
			common.LSPLogger.Warn("Failed to send initialized to %s backend: %v", language, err)
		}

		m.mu.Lock()
		m.clients[language] = client
		m.mu.Unlock()
		common.LSPLogger.Info("Started %s backend", language)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(types.Backend), nil
}

// Shutdown shuts every backend down and forgets them. Failures are logged.
func (m *LSPManager) Shutdown() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]types.Backend)
	m.triggerChars = make(map[string]map[string]struct{})
	m.mu.Unlock()

	var errs error
	for language, client := range clients {
		if err := client.Shutdown(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", language, err))
		}
		m.tracker.forget(language)
	}

	for _, err := range multierr.Errors(errs) {
		common.LSPLogger.Warn("Error shutting down backend %v", err)
	}
}

// GetClientStatus reports every configured language with whether its
// backend is running and whether its server command can be found
func (m *LSPManager) GetClientStatus() map[string]ClientStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]ClientStatus, len(m.config.Servers))
	for _, language := range m.config.Languages() {
		cfg := m.config.Servers[language]
		if cfg == nil {
			continue
		}
		_, active := m.clients[language]
		available := isCommandAvailable(cfg.Command)
		if cfg.Embedded {
			available = HasEmbeddedBackend(language)
		}
		status[language] = ClientStatus{
			Active:    active,
			Embedded:  cfg.Embedded,
			Available: available,
			Command:   cfg.Command,
		}
	}
	return status
}
