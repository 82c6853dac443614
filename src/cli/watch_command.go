package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"golang.org/x/sync/errgroup"

	clicommon "github.com/harehare/mq-edit/src/cli/common"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/server/diagnostics"
	"github.com/harehare/mq-edit/src/server/watcher"
	"github.com/harehare/mq-edit/src/utils"
)

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchDocuments(ctx, cmd.OutOrStdout(), args[0], extensions, constants.FileWatchDebounceDelay)
}

// watchDocuments opens every matching file under root, then syncs each
// debounced change to its backend and prints diagnostics as they arrive,
// until ctx ends
func watchDocuments(ctx context.Context, out io.Writer, root string, exts []string, debounce time.Duration) error {
	cmdCtx, err := clicommon.NewCommandContextWithOptions(configPath, clicommon.CommandContextOptions{
		Parent:  ctx,
		Factory: backendFactory,
	})
	if err != nil {
		return err
	}
	defer cmdCtx.Cleanup()

	paths, err := watcher.ListDocuments(root, exts)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", root, err)
	}
	for _, path := range paths {
		if _, err := cmdCtx.Open(path); err != nil {
			common.CLILogger.Warn("Skipping %s: %v", path, err)
		}
	}

	changes := make(chan []watcher.DocumentChange, 16)
	dw, err := watcher.NewDocumentWatcher(exts, func(batch []watcher.DocumentChange) {
		select {
		case changes <- batch:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dw.SetDebounceDelay(debounce)
	if err := dw.AddPath(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	dw.Start()
	defer dw.Stop()

	common.CLILogger.Info("Watching %d document(s) under %s", len(paths), root)

	g, gctx := errgroup.WithContext(cmdCtx.Context)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case batch := <-changes:
				syncChanges(cmdCtx, batch)
			}
		}
	})
	g.Go(func() error {
		printDiagnosticUpdates(gctx, cmdCtx, out)
		return nil
	})
	return g.Wait()
}

func syncChanges(cmdCtx *clicommon.CommandContext, batch []watcher.DocumentChange) {
	for _, change := range batch {
		switch change.Op {
		case watcher.OpRemove, watcher.OpRename:
			cmdCtx.Documents.Close(change.Path)
		default:
			if _, err := cmdCtx.Open(change.Path); err != nil {
				common.CLILogger.Warn("Failed to sync %s: %v", change.Path, err)
			}
		}
	}
}

// printDiagnosticUpdates polls the manager and prints each new diagnostics
// snapshot with a one-line summary
func printDiagnosticUpdates(ctx context.Context, cmdCtx *clicommon.CommandContext, out io.Writer) {
	ticker := time.NewTicker(constants.PollInterval)
	defer ticker.Stop()

	indexes := make(map[protocol.DocumentURI]*diagnostics.DiagnosticIndex)
	for {
		for _, event := range cmdCtx.Manager.PollEvents() {
			switch event.Event.Kind {
			case types.EventDiagnostics:
				index, ok := indexes[event.Event.URI]
				if !ok {
					index = diagnostics.NewDiagnosticIndex()
					indexes[event.Event.URI] = index
				}
				index.Update(event.Event.Diagnostics)
				printSnapshot(out, event.Event.URI, index)
			case types.EventError:
				common.CLILogger.Error("%s: %s", event.Language, event.Event.Message)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printSnapshot(out io.Writer, uri protocol.DocumentURI, index *diagnostics.DiagnosticIndex) {
	path, err := utils.URIToFilePath(uri)
	if err != nil {
		path = string(uri)
	}
	fmt.Fprintf(out, "%s: %d error(s), %d warning(s)\n", path, index.ErrorCount(), index.WarningCount())
	for _, line := range index.Lines() {
		for _, diag := range index.GetForLine(line) {
			printDiagnostic(out, path, diag)
		}
	}
}
