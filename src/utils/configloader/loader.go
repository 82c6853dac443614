package configloader

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/harehare/mq-edit/src/config"
	"github.com/harehare/mq-edit/src/internal/common"
)

// LoadOrDefault loads configPath when given, else the default config file
// when it exists, else the built-in defaults. Only an explicitly requested
// file that fails to load is an error.
func LoadOrDefault(configPath string) (*config.Config, error) {
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return loaded, nil
	}

	defaultPath := config.GetDefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		loaded, err := config.LoadConfig(defaultPath)
		if err == nil {
			return loaded, nil
		}
		common.CLILogger.Warn("Ignoring %s: %v", defaultPath, err)
	}

	common.CLILogger.Debug("Falling back to default config")
	return config.GetDefaultConfig(), nil
}

// LoadForCLI loads configuration for CLI commands and points external
// servers missing from PATH at their installed copies, if any
func LoadForCLI(configPath string) (*config.Config, error) {
	cfg, err := LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	autoDetectInstalledServers(cfg)
	return cfg, nil
}

// autoDetectInstalledServers rewrites bare commands that are not on PATH
// to ~/.mq-edit/tools/<language>/bin/<command> when that file is executable
func autoDetectInstalledServers(cfg *config.Config) {
	if cfg == nil || cfg.Servers == nil {
		return
	}

	for _, language := range cfg.Languages() {
		server := cfg.Servers[language]
		if server == nil || server.Embedded || server.Command == "" || filepath.IsAbs(server.Command) {
			continue
		}
		if _, err := exec.LookPath(server.Command); err == nil {
			continue
		}
		if installed := getInstalledServerPath(language, server.Command); installed != "" {
			common.CLILogger.Info("Auto-detected installed %s server at: %s", language, installed)
			server.Command = installed
		}
	}
}

// getInstalledServerPath returns the path of an installed server binary if it exists
func getInstalledServerPath(language, command string) string {
	binary := command
	if runtime.GOOS == "windows" {
		binary += ".exe"
	}
	path := common.ToolPath(language, binary)

	fileInfo, err := os.Stat(path)
	if err != nil || fileInfo.IsDir() {
		return ""
	}
	if runtime.GOOS != "windows" && fileInfo.Mode()&0111 == 0 {
		return ""
	}
	return path
}
