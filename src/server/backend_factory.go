package server

import (
	"github.com/harehare/mq-edit/src/config"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/server/markdown"
)

// BackendFactory creates the backend serving a language
type BackendFactory func(language string, cfg *config.BackendConfig) (types.Backend, error)

// embeddedBackends lists the languages with an in-process analyzer
var embeddedBackends = map[string]func(cfg *config.BackendConfig) types.Backend{
	constants.LanguageMarkdown: func(cfg *config.BackendConfig) types.Backend {
		return markdown.NewAnalyzer(markdown.WithCapabilities(
			cfg.EnableCompletion,
			cfg.EnableDiagnostics,
			cfg.EnableGotoDefinition,
		))
	},
}

// NewBackend picks the backend kind from the embedded flag alone: embedded
// entries get the in-process analyzer for their language, everything else
// spawns the configured server command.
func NewBackend(language string, cfg *config.BackendConfig) (types.Backend, error) {
	if cfg == nil {
		return nil, lsperrors.NewNotConfiguredError(language)
	}

	if cfg.Embedded {
		create, ok := embeddedBackends[language]
		if !ok {
			return nil, lsperrors.NewNoEmbeddedError(language)
		}
		common.LSPLogger.Debug("Using embedded analyzer for %s", language)
		return create(cfg), nil
	}

	resolved := cfg.Clone()
	resolved.Command = resolveCommandPath(cfg.Command)
	return NewProcessClient(language, resolved)
}

// HasEmbeddedBackend reports whether a language has an in-process analyzer
func HasEmbeddedBackend(language string) bool {
	_, ok := embeddedBackends[language]
	return ok
}
