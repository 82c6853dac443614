package server

import (
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/harehare/mq-edit/src/config"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/types"
)

// LanguageEvent is an event tagged with the language of the backend that produced it
type LanguageEvent struct {
	Language string
	Event    types.Event
}

// LSPManager owns one backend per configured language, routes document and
// request operations to it and collects the events its backends publish.
// PollEvents is meant to be called from a single foreground loop.
type LSPManager struct {
	config  *config.Config
	factory BackendFactory

	mu           sync.RWMutex
	clients      map[string]types.Backend
	triggerChars map[string]map[string]struct{}
	tracker      *requestTracker
	creating     singleflight.Group
}

// ManagerOption customizes an LSPManager
type ManagerOption func(*LSPManager)

// WithBackendFactory replaces the function used to create backends
func WithBackendFactory(factory BackendFactory) ManagerOption {
	return func(m *LSPManager) {
		m.factory = factory
	}
}

// NewLSPManager creates a manager for cfg. A nil cfg falls back to the
// default configuration. No backend is started until first use.
func NewLSPManager(cfg *config.Config, opts ...ManagerOption) *LSPManager {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	manager := &LSPManager{
		config:       cfg,
		factory:      NewBackend,
		clients:      make(map[string]types.Backend),
		triggerChars: make(map[string]map[string]struct{}),
		tracker:      newRequestTracker(),
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// PollEvents drains every backend without blocking. Events keep their order
// within a language and languages are visited in sorted order. Initialized
// events refresh the trigger character cache. Completion and definition
// answers to anything but the latest request of their kind are dropped.
func (m *LSPManager) PollEvents() []LanguageEvent {
	m.mu.RLock()
	languages := make([]string, 0, len(m.clients))
	for language := range m.clients {
		languages = append(languages, language)
	}
	clients := make(map[string]types.Backend, len(m.clients))
	for language, client := range m.clients {
		clients[language] = client
	}
	m.mu.RUnlock()
	sort.Strings(languages)

	var collected []LanguageEvent
	for _, language := range languages {
		for _, event := range clients[language].Events().Drain() {
			switch event.Kind {
			case types.EventInitialized:
				m.setTriggerCharacters(language, event.TriggerCharacters)
			case types.EventError:
				m.tracker.fail(language, event.RequestID)
			}

			if !m.tracker.accept(language, event) {
				common.LSPLogger.Debug("Discarding stale %s event for %s (request %d)", event.Kind, language, event.RequestID)
				continue
			}
			collected = append(collected, LanguageEvent{Language: language, Event: event})
		}
	}
	return collected
}

// Awaiting reports whether the latest request of kind for language has not been answered yet
func (m *LSPManager) Awaiting(language string, kind types.EventKind) bool {
	return m.tracker.awaiting(language, kind)
}

func (m *LSPManager) setTriggerCharacters(language string, chars []string) {
	set := make(map[string]struct{}, len(chars))
	for _, ch := range chars {
		set[ch] = struct{}{}
	}
	m.mu.Lock()
	m.triggerChars[language] = set
	m.mu.Unlock()
}

// IsTriggerCharacter reports whether typing ch should request completions
func (m *LSPManager) IsTriggerCharacter(language, ch string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.triggerChars[language][ch]
	return ok
}

// TriggerCharacters returns the cached trigger characters for a language, sorted
func (m *LSPManager) TriggerCharacters(language string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chars := make([]string, 0, len(m.triggerChars[language]))
	for ch := range m.triggerChars[language] {
		chars = append(chars, ch)
	}
	sort.Strings(chars)
	return chars
}

// HasClient reports whether a backend exists for a language
func (m *LSPManager) HasClient(language string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[language]
	return ok
}

// IsEnabled reports whether a feature is switched on for a language;
// unconfigured languages have nothing enabled
func (m *LSPManager) IsEnabled(language string, feature types.Feature) bool {
	return m.config.IsEnabled(language, feature)
}

// Languages returns the languages that currently have a backend, sorted
func (m *LSPManager) Languages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	languages := make([]string, 0, len(m.clients))
	for language := range m.clients {
		languages = append(languages, language)
	}
	sort.Strings(languages)
	return languages
}

// GetConfiguredServers returns the configured languages and their entries
func (m *LSPManager) GetConfiguredServers() map[string]*config.BackendConfig {
	return m.config.Servers
}
