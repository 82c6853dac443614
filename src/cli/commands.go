package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	versionpkg "github.com/harehare/mq-edit/src/internal/version"
	"github.com/harehare/mq-edit/src/server"
)

// CLI Constants
const (
	CmdCheck        = "check"
	CmdWatch        = "watch"
	CmdDefinition   = "definition"
	CmdReferences   = "references"
	CmdComplete     = "complete"
	CmdTokens       = "tokens"
	CmdStatus       = "status"
	CmdConfig       = "config"
	CmdVersion      = "version"
	FlagConfig      = "config"
	FlagVerbose     = "verbose"
	FlagTimeout     = "timeout"
	FlagIncludeDecl = "include-declaration"
	FlagTrigger     = "trigger"
	FlagForce       = "force"
	FlagExtensions  = "ext"
	FlagDetect      = "detect"
)

// CLI Variables
var (
	configPath         string
	verbose            bool
	timeout            time.Duration
	includeDeclaration bool
	triggerChar        string
	force              bool
	extensions         []string
	detectDir          string

	// backendFactory replaces server.NewBackend when set
	backendFactory server.BackendFactory
)

// Root command
var rootCmd = &cobra.Command{
	Use:   "mq-lsp",
	Short: "mq-lsp - Language Server Protocol integration for mq-edit",
	Long: `mq-lsp drives the language servers used by mq-edit from the command line.

Markdown is served by a built-in analyzer; other languages are served by
external language servers configured in ~/.mq-edit/lsp.yaml.

AVAILABLE COMMANDS:

  Documents:
    mq-lsp check README.md docs/*.md          # Print diagnostics, fail on errors
    mq-lsp watch docs                         # Re-check files as they change

  Queries (0-indexed positions):
    mq-lsp definition README.md 12 8          # Go to definition
    mq-lsp references README.md 0 3           # Find references
    mq-lsp complete README.md 4 8             # List completions
    mq-lsp tokens README.md                   # Dump semantic tokens

  Configuration:
    mq-lsp config init                        # Write the default configuration
    mq-lsp config show                        # Print the effective configuration
    mq-lsp status                             # Show configured servers

Use 'mq-lsp <command> --help' for detailed command information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			common.SetLogLevel(common.LogDebug)
		}
	},
}

// Command definitions
var (
	checkCmd = &cobra.Command{
		Use:   CmdCheck + " <file>...",
		Short: "Print diagnostics for files",
		Long: `Open every file in the backend for its language, wait for diagnostics
and print them as path:line:col: severity: message.

The command exits with a non-zero status when any error is reported.
Files whose backend publishes nothing before --timeout are reported as
unchecked.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCheckCmd,
	}

	watchCmd = &cobra.Command{
		Use:   CmdWatch + " <dir>",
		Short: "Re-check documents as they change",
		Long: `Open matching files under a directory and send every saved change to
its backend, printing a diagnostics summary whenever one arrives.

Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchCmd,
	}

	definitionCmd = &cobra.Command{
		Use:   CmdDefinition + " <file> <line> <col>",
		Short: "Find the definition of the symbol at a position",
		Args:  cobra.ExactArgs(3),
		RunE:  runDefinitionCmd,
	}

	referencesCmd = &cobra.Command{
		Use:   CmdReferences + " <file> <line> <col>",
		Short: "Find references to the symbol at a position",
		Args:  cobra.ExactArgs(3),
		RunE:  runReferencesCmd,
	}

	completeCmd = &cobra.Command{
		Use:   CmdComplete + " <file> <line> <col>",
		Short: "List completions at a position",
		Args:  cobra.ExactArgs(3),
		RunE:  runCompleteCmd,
	}

	tokensCmd = &cobra.Command{
		Use:   CmdTokens + " <file>",
		Short: "Print the semantic tokens of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokensCmd,
	}

	statusCmd = &cobra.Command{
		Use:   CmdStatus,
		Short: "Show configured language servers",
		Long:  `Display every configured language with its backend kind and whether its server command is available.`,
		RunE:  runStatusCmd,
	}

	configCmd = &cobra.Command{
		Use:   CmdConfig,
		Short: "Manage the LSP configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long: `Write the built-in configuration to --config, or ~/.mq-edit/lsp.yaml.

An existing file is kept unless --force is given. With --detect DIR only
the languages of files found under DIR are configured.`,
		RunE: runConfigInitCmd,
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE:  runConfigShowCmd,
	}

	versionCmd = &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		Long: `Display version information for mq-lsp.

Examples:
  mq-lsp version              # Show version number
  mq-lsp version --verbose    # Show detailed build information`,
		RunE: runVersionCmd,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, FlagVerbose, "v", false, "Enable debug logging")

	checkCmd.Flags().DurationVar(&timeout, FlagTimeout, constants.DefaultQueryTimeout, "How long to wait for diagnostics")
	watchCmd.Flags().StringSliceVar(&extensions, FlagExtensions, constants.ExtensionsForLanguage(constants.LanguageMarkdown), "File extensions to watch")

	for _, cmd := range []*cobra.Command{definitionCmd, referencesCmd, completeCmd, tokensCmd} {
		cmd.Flags().DurationVar(&timeout, FlagTimeout, constants.DefaultQueryTimeout, "How long to wait for an answer")
	}
	referencesCmd.Flags().BoolVar(&includeDeclaration, FlagIncludeDecl, true, "Include the declaration itself")
	completeCmd.Flags().StringVar(&triggerChar, FlagTrigger, "", "Character that triggered the completion")

	configInitCmd.Flags().BoolVarP(&force, FlagForce, "f", false, "Overwrite an existing configuration file")
	configInitCmd.Flags().StringVar(&detectDir, FlagDetect, "", "Only configure languages found under this directory")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(definitionCmd)
	rootCmd.AddCommand(referencesCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func runVersionCmd(cmd *cobra.Command, args []string) error {
	if verbose {
		cmd.Println(versionpkg.GetFullVersionInfo())
		return nil
	}
	cmd.Printf("mq-lsp %s\n", versionpkg.GetVersion())
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
