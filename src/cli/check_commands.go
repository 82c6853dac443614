package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"golang.org/x/sync/errgroup"

	clicommon "github.com/harehare/mq-edit/src/cli/common"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/server"
	"github.com/harehare/mq-edit/src/server/diagnostics"
	"github.com/harehare/mq-edit/src/server/documents"
	"github.com/harehare/mq-edit/src/server/watcher"
	"github.com/harehare/mq-edit/src/utils"
)

// checkedFile is one file of a check run with its diagnostics
type checkedFile struct {
	path     string
	language string
	uri      protocol.DocumentURI
	index    *diagnostics.DiagnosticIndex
	received bool
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	cmdCtx, err := clicommon.NewCommandContextWithOptions(configPath, clicommon.CommandContextOptions{
		Timeout: timeout,
		Parent:  cmd.Context(),
		Factory: backendFactory,
	})
	if err != nil {
		return err
	}
	defer cmdCtx.Cleanup()

	files, err := checkFiles(cmdCtx, args)
	if err != nil {
		return err
	}
	return reportDiagnostics(cmd, files)
}

// expandArgs turns files and directories into the list of files to check
func expandArgs(args []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		found, err := watcher.ListDocuments(abs, configuredExtensions())
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", arg, err)
		}
		for _, path := range found {
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		}
	}
	return paths, nil
}

func configuredExtensions() []string {
	exts := make([]string, 0, len(constants.ExtensionLanguages))
	for ext := range constants.ExtensionLanguages {
		exts = append(exts, ext)
	}
	return exts
}

// checkFiles reads every file concurrently, announces each to its backend
// and waits until every backend has published diagnostics for its files
// or the command times out
func checkFiles(cmdCtx *clicommon.CommandContext, args []string) ([]*checkedFile, error) {
	paths, err := expandArgs(args)
	if err != nil {
		return nil, err
	}

	docs := make([]*documents.Document, len(paths))
	g, _ := errgroup.WithContext(cmdCtx.Context)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			doc, err := cmdCtx.Documents.Open(path)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make([]*checkedFile, 0, len(docs))
	byURI := make(map[protocol.DocumentURI]*checkedFile, len(docs))
	for _, doc := range docs {
		if !cmdCtx.Config.IsEnabled(doc.Language, types.FeatureDiagnostics) {
			common.CLILogger.Debug("Diagnostics disabled for %s, skipping %s", doc.Language, doc.Path)
			continue
		}
		if err := cmdCtx.Manager.DidOpen(doc.Language, doc.Path, doc.Text); err != nil {
			return nil, err
		}
		file := &checkedFile{
			path:     doc.Path,
			language: doc.Language,
			uri:      utils.FilePathToURI(doc.Path),
			index:    diagnostics.NewDiagnosticIndex(),
		}
		files = append(files, file)
		byURI[file.uri] = file
	}

	var mu sync.Mutex
	record := func(event server.LanguageEvent) {
		if event.Event.Kind != types.EventDiagnostics {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if file, ok := byURI[event.Event.URI]; ok {
			file.index.Update(event.Event.Diagnostics)
			file.received = true
		}
	}

	for _, language := range checkedLanguages(files) {
		if allReceived(files, language) {
			continue
		}
		err := cmdCtx.Await(language, 0, func(event server.LanguageEvent) bool {
			record(event)
			return allReceived(files, language)
		})
		if errors.Is(err, context.DeadlineExceeded) {
			common.CLILogger.Warn("Timed out waiting for %s diagnostics", language)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func checkedLanguages(files []*checkedFile) []string {
	var languages []string
	seen := make(map[string]bool)
	for _, file := range files {
		if !seen[file.language] {
			seen[file.language] = true
			languages = append(languages, file.language)
		}
	}
	return languages
}

func allReceived(files []*checkedFile, language string) bool {
	for _, file := range files {
		if file.language == language && !file.received {
			return false
		}
	}
	return true
}

// reportDiagnostics prints every diagnostic and fails when any is an error
func reportDiagnostics(cmd *cobra.Command, files []*checkedFile) error {
	out := cmd.OutOrStdout()
	var errorCount, warningCount, unchecked int
	for _, file := range files {
		if !file.received {
			unchecked++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: no diagnostics received\n", file.path)
			continue
		}
		for _, line := range file.index.Lines() {
			for _, diag := range file.index.GetForLine(line) {
				printDiagnostic(out, file.path, diag)
			}
		}
		errorCount += file.index.ErrorCount()
		warningCount += file.index.WarningCount()
	}

	common.CLILogger.Info("Checked %d file(s): %d error(s), %d warning(s), %d unchecked",
		len(files)-unchecked, errorCount, warningCount, unchecked)
	if errorCount > 0 {
		return fmt.Errorf("%d error(s) found", errorCount)
	}
	return nil
}
