package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harehare/mq-edit/src/config"
	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	"github.com/harehare/mq-edit/src/server"
	"github.com/harehare/mq-edit/src/server/watcher"
	"github.com/harehare/mq-edit/src/utils/configloader"
)

func targetConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetDefaultConfigPath()
}

func runConfigInitCmd(cmd *cobra.Command, args []string) error {
	path := targetConfigPath()
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	if detectDir != "" {
		languages, err := detectLanguages(detectDir)
		if err != nil {
			return err
		}
		cfg = config.GenerateConfigForLanguages(languages)
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}
	common.CLILogger.Info("Wrote configuration for %d language(s) to %s", len(cfg.Servers), path)
	cmd.Println(path)
	return nil
}

// detectLanguages lists the languages of the documents under dir, sorted
func detectLanguages(dir string) ([]string, error) {
	files, err := watcher.ListDocuments(dir, configuredExtensions())
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	var languages []string
	for _, file := range files {
		language := constants.LanguageForPath(file)
		if language != "" && !seen[language] {
			seen[language] = true
			languages = append(languages, language)
		}
	}
	sort.Strings(languages)
	return languages, nil
}

func runConfigShowCmd(cmd *cobra.Command, args []string) error {
	cfg, err := configloader.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	cfg, err := configloader.LoadForCLI(configPath)
	if err != nil {
		return err
	}

	status := server.NewLSPManager(cfg).GetClientStatus()
	languages := make([]string, 0, len(status))
	for language := range status {
		languages = append(languages, language)
	}
	sort.Strings(languages)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LANGUAGE\tBACKEND\tAVAILABLE")
	for _, language := range languages {
		s := status[language]
		backend := s.Command
		if s.Embedded {
			backend = "embedded"
		}
		available := "no"
		if s.Available {
			available = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", language, backend, available)
	}
	return w.Flush()
}
