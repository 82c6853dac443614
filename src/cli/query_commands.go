package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	clicommon "github.com/harehare/mq-edit/src/cli/common"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/types"
	"github.com/harehare/mq-edit/src/server"
)

// query is a request against one open document. send issues the request
// and returns its id; kind is the event that answers it.
type query struct {
	kind types.EventKind
	send func(cmdCtx *clicommon.CommandContext, language, path string) (types.RequestID, error)
}

// runQuery opens path, sends the query and returns the answering event.
// ok is false when the backend had nothing to say before the timeout.
func runQuery(cmd *cobra.Command, path string, q query) (event types.Event, ok bool, err error) {
	cmdCtx, err := clicommon.NewCommandContextWithOptions(configPath, clicommon.CommandContextOptions{
		Timeout: timeout,
		Parent:  cmd.Context(),
		Factory: backendFactory,
	})
	if err != nil {
		return types.Event{}, false, err
	}
	defer cmdCtx.Cleanup()

	doc, err := cmdCtx.Open(path)
	if err != nil {
		return types.Event{}, false, err
	}

	id, err := q.send(cmdCtx, doc.Language, doc.Path)
	if err != nil {
		return types.Event{}, false, err
	}

	err = cmdCtx.Await(doc.Language, id, func(le server.LanguageEvent) bool {
		if le.Language != doc.Language || le.Event.Kind != q.kind || le.Event.RequestID != id {
			return false
		}
		event = le.Event
		ok = true
		return true
	})
	if ok {
		return event, true, nil
	}
	if cmdCtx.IsEmbedded(doc.Language) || cmdCtx.Context.Err() != nil {
		return types.Event{}, false, nil
	}
	return types.Event{}, false, err
}

// parsePosition reads the file line col arguments shared by position queries
func parsePosition(args []string) (string, uint32, uint32, error) {
	line, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid line %q: %w", args[1], err)
	}
	col, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid column %q: %w", args[2], err)
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return "", 0, 0, err
	}
	return path, uint32(line), uint32(col), nil
}

func runDefinitionCmd(cmd *cobra.Command, args []string) error {
	path, line, col, err := parsePosition(args)
	if err != nil {
		return err
	}

	event, ok, err := runQuery(cmd, path, query{
		kind: types.EventDefinition,
		send: func(cmdCtx *clicommon.CommandContext, language, path string) (types.RequestID, error) {
			return cmdCtx.Manager.RequestDefinition(language, path, line, col)
		},
	})
	if err != nil {
		return err
	}
	if !ok || len(event.Locations) == 0 {
		cmd.PrintErrln("No definition found")
		return nil
	}
	printLocations(cmd.OutOrStdout(), event.Locations)
	return nil
}

func runReferencesCmd(cmd *cobra.Command, args []string) error {
	path, line, col, err := parsePosition(args)
	if err != nil {
		return err
	}

	event, ok, err := runQuery(cmd, path, query{
		kind: types.EventReferences,
		send: func(cmdCtx *clicommon.CommandContext, language, path string) (types.RequestID, error) {
			return cmdCtx.Manager.RequestReferences(language, path, line, col, includeDeclaration)
		},
	})
	if err != nil {
		return err
	}
	if !ok || len(event.Locations) == 0 {
		cmd.PrintErrln("No references found")
		return nil
	}
	printLocations(cmd.OutOrStdout(), event.Locations)
	return nil
}

func runCompleteCmd(cmd *cobra.Command, args []string) error {
	path, line, col, err := parsePosition(args)
	if err != nil {
		return err
	}

	var trigger *string
	if triggerChar != "" {
		trigger = &triggerChar
	}

	event, ok, err := runQuery(cmd, path, query{
		kind: types.EventCompletion,
		send: func(cmdCtx *clicommon.CommandContext, language, path string) (types.RequestID, error) {
			// picks up the trigger characters announced on initialization
			cmdCtx.Manager.PollEvents()
			if trigger != nil && !cmdCtx.Manager.IsTriggerCharacter(language, *trigger) {
				common.CLILogger.Debug("%q is not a %s trigger character, requesting as invoked", *trigger, language)
				trigger = nil
			}
			return cmdCtx.Manager.RequestCompletion(language, path, line, col, trigger)
		},
	})
	if err != nil {
		return err
	}
	if !ok || event.Completion == nil || len(event.Completion.Items) == 0 {
		cmd.PrintErrln("No completions")
		return nil
	}
	printCompletions(cmd.OutOrStdout(), event.Completion)
	return nil
}

func runTokensCmd(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	event, ok, err := runQuery(cmd, path, query{
		kind: types.EventSemanticTokens,
		send: func(cmdCtx *clicommon.CommandContext, language, path string) (types.RequestID, error) {
			return cmdCtx.Manager.RequestSemanticTokens(language, path)
		},
	})
	if err != nil {
		return err
	}
	if !ok {
		cmd.PrintErrln("No semantic tokens")
		return nil
	}
	printTokens(cmd.OutOrStdout(), event.Tokens)
	return nil
}
