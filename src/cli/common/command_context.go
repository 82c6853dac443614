package common

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harehare/mq-edit/src/config"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/server"
	"github.com/harehare/mq-edit/src/server/documents"
	"github.com/harehare/mq-edit/src/utils/configloader"
)

// CommandContext encapsulates common CLI command lifecycle components
type CommandContext struct {
	Config    *config.Config
	Manager   *server.LSPManager
	Documents *documents.LSPDocumentManager
	Context   context.Context
	Cancel    context.CancelFunc
}

// CommandContextOptions configures CommandContext creation
type CommandContextOptions struct {
	Timeout time.Duration
	Parent  context.Context
	// Factory replaces the backend factory, for tests
	Factory server.BackendFactory
}

// NewCommandContext creates a CommandContext whose context expires after timeout
func NewCommandContext(configPath string, timeout time.Duration) (*CommandContext, error) {
	return NewCommandContextWithOptions(configPath, CommandContextOptions{Timeout: timeout})
}

// NewCommandContextWithOptions creates a CommandContext with custom options
func NewCommandContextWithOptions(configPath string, opts CommandContextOptions) (*CommandContext, error) {
	cfg, err := configloader.LoadForCLI(configPath)
	if err != nil {
		return nil, err
	}

	parent := opts.Parent
	if parent == nil {
		parent = context.Background()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	var managerOpts []server.ManagerOption
	if opts.Factory != nil {
		managerOpts = append(managerOpts, server.WithBackendFactory(opts.Factory))
	}

	return &CommandContext{
		Config:    cfg,
		Manager:   server.NewLSPManager(cfg, managerOpts...),
		Documents: documents.NewLSPDocumentManager(),
		Context:   ctx,
		Cancel:    cancel,
	}, nil
}

// Backend resolves the language of path and returns its running backend
func (c *CommandContext) Backend(path string) (string, types.Backend, error) {
	language := c.Documents.DetectLanguage(path)
	if language == "" {
		return "", nil, fmt.Errorf("cannot detect language of %s", path)
	}
	backend, err := c.Manager.GetOrCreate(language)
	if err != nil {
		return "", nil, err
	}
	return language, backend, nil
}

// Open starts the backend for path and sends it the file content. Paths
// are made absolute so URIs in results are stable.
func (c *CommandContext) Open(path string) (*documents.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	_, backend, err := c.Backend(abs)
	if err != nil {
		return nil, err
	}
	return c.Documents.Sync(backend, abs)
}

// IsEmbedded reports whether language is served in-process. Embedded
// backends answer synchronously, so there is nothing to wait for.
func (c *CommandContext) IsEmbedded(language string) bool {
	cfg, ok := c.Config.Get(language)
	return ok && cfg.Embedded
}

// Await polls the manager until match accepts an event, the context ends,
// or, when requestID is set, an error event for language either answers
// requestID or reports the connection as lost. Every polled event is
// passed to match in order.
func (c *CommandContext) Await(language string, requestID types.RequestID, match func(server.LanguageEvent) bool) error {
	ctx := c.Context
	if c.IsEmbedded(language) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, constants.PollInterval)
		defer cancel()
	}

	ticker := time.NewTicker(constants.PollInterval)
	defer ticker.Stop()

	for {
		for _, event := range c.Manager.PollEvents() {
			if event.Event.Kind == types.EventError {
				common.CLILogger.Debug("%s: %s", event.Language, event.Event.Message)
				answered := event.Event.RequestID == requestID || event.Event.RequestID == 0
				if requestID != 0 && event.Language == language && answered {
					return fmt.Errorf("%s", event.Event.Message)
				}
			}
			if match(event) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cleanup shuts every backend down and cancels the context
func (c *CommandContext) Cleanup() {
	if c.Cancel != nil {
		c.Cancel()
	}
	if c.Manager != nil {
		c.Manager.Shutdown()
	}
}
