package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/harehare/mq-edit/src/internal/common"
	"github.com/harehare/mq-edit/src/internal/constants"
	lsperrors "github.com/harehare/mq-edit/src/internal/errors"
	"github.com/harehare/mq-edit/src/internal/types"
)

// Config maps language identifiers to their LSP backend configuration.
// A language without an entry has LSP disabled.
type Config struct {
	Servers map[string]*BackendConfig `yaml:"servers"`
}

// BackendConfig describes how to serve one language: either an external
// server command or the embedded analyzer, plus capability toggles
type BackendConfig struct {
	Command              string   `yaml:"command,omitempty"`
	Args                 []string `yaml:"args,omitempty"`
	WorkingDir           string   `yaml:"working_dir,omitempty"`
	Embedded             bool     `yaml:"embedded,omitempty"`
	EnableCompletion     bool     `yaml:"enable_completion"`
	EnableDiagnostics    bool     `yaml:"enable_diagnostics"`
	EnableGotoDefinition bool     `yaml:"enable_goto_definition"`
}

// UnmarshalYAML applies the capability defaults (all enabled) before decoding
func (c *BackendConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain BackendConfig
	decoded := plain(*NewBackendConfig("", nil))
	if err := value.Decode(&decoded); err != nil {
		return err
	}
	*c = BackendConfig(decoded)
	return nil
}

// NewBackendConfig creates an external backend configuration with every capability enabled
func NewBackendConfig(command string, args []string) *BackendConfig {
	return &BackendConfig{
		Command:              command,
		Args:                 args,
		EnableCompletion:     true,
		EnableDiagnostics:    true,
		EnableGotoDefinition: true,
	}
}

// NewEmbeddedConfig creates an embedded backend configuration with every capability enabled
func NewEmbeddedConfig() *BackendConfig {
	cfg := NewBackendConfig("", nil)
	cfg.Embedded = true
	return cfg
}

// IsEnabled reports whether a feature is switched on
func (c *BackendConfig) IsEnabled(feature types.Feature) bool {
	switch feature {
	case types.FeatureCompletion:
		return c.EnableCompletion
	case types.FeatureDiagnostics:
		return c.EnableDiagnostics
	case types.FeatureDefinition:
		return c.EnableGotoDefinition
	default:
		return false
	}
}

// ClientConfig converts an external backend entry into process spawn parameters
func (c *BackendConfig) ClientConfig() types.ClientConfig {
	return types.ClientConfig{
		Command:    c.Command,
		Args:       append([]string{}, c.Args...),
		WorkingDir: c.WorkingDir,
	}
}

// Clone returns a deep copy
func (c *BackendConfig) Clone() *BackendConfig {
	clone := *c
	clone.Args = append([]string{}, c.Args...)
	return &clone
}

// Get returns the configuration for a language
func (c *Config) Get(language string) (*BackendConfig, bool) {
	if c == nil || c.Servers == nil {
		return nil, false
	}
	cfg, ok := c.Servers[language]
	if !ok || cfg == nil {
		return nil, false
	}
	return cfg, true
}

// IsEnabled reports whether a feature is on for a language; unconfigured languages have nothing enabled
func (c *Config) IsEnabled(language string, feature types.Feature) bool {
	cfg, ok := c.Get(language)
	return ok && cfg.IsEnabled(feature)
}

// Languages returns the configured language identifiers, sorted
func (c *Config) Languages() []string {
	if c == nil {
		return nil
	}
	languages := make([]string, 0, len(c.Servers))
	for language := range c.Servers {
		languages = append(languages, language)
	}
	sort.Strings(languages)
	return languages
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// validateConfig reports every problem at once instead of stopping at the first
func validateConfig(config *Config) error {
	if config.Servers == nil {
		return lsperrors.NewValidationError("servers", "servers configuration is required")
	}

	var err error
	for _, language := range config.Languages() {
		serverConfig := config.Servers[language]
		switch {
		case strings.TrimSpace(language) == "":
			err = multierr.Append(err, lsperrors.NewValidationError("servers", "language identifier must not be empty"))
		case serverConfig == nil:
			err = multierr.Append(err, lsperrors.NewValidationError("servers."+language, "configuration is empty"))
		case !serverConfig.Embedded && serverConfig.Command == "":
			err = multierr.Append(err, lsperrors.NewValidationError("servers."+language+".command", "command is required for external servers"))
		}
	}
	return err
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	return filepath.Join(common.ConfigHome(), "lsp.yaml")
}

// GetDefaultConfig returns the built-in configuration: the embedded
// Markdown analyzer plus common external servers
func GetDefaultConfig() *Config {
	return &Config{
		Servers: map[string]*BackendConfig{
			constants.LanguageMarkdown: NewEmbeddedConfig(),
			"mq":                       NewBackendConfig("mq-lsp", nil),
			"rust":                     NewBackendConfig("rust-analyzer", nil),
			"python":                   NewBackendConfig("pyright-langserver", []string{"--stdio"}),
			"go":                       NewBackendConfig("gopls", []string{"serve"}),
			"typescript":               NewBackendConfig("typescript-language-server", []string{"--stdio"}),
			"javascript":               NewBackendConfig("typescript-language-server", []string{"--stdio"}),
		},
	}
}

// GenerateConfigForLanguages generates a Config for the specified languages only,
// using the default entries
func GenerateConfigForLanguages(languages []string) *Config {
	config := &Config{Servers: make(map[string]*BackendConfig)}
	if len(languages) == 0 {
		common.CLILogger.Warn("No languages provided, returning empty config")
		return config
	}

	defaultConfig := GetDefaultConfig()
	for _, language := range languages {
		if serverConfig, exists := defaultConfig.Servers[language]; exists {
			config.Servers[language] = serverConfig.Clone()
			common.CLILogger.Debug("Added %s server configuration", language)
		} else {
			common.CLILogger.Warn("No default configuration found for language: %s", language)
		}
	}

	return config
}
