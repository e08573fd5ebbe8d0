// Package config provides the local settings of the DebAI CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Version is the config file format version
const Version = "1"

// Config represents the CLI configuration file
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	// Server is the DebAI server URL used by the client commands
	Server string `yaml:"server,omitempty"`

	// KeyStore is where the Gemini key lives: "keychain" or "file"
	KeyStore string `yaml:"key_store,omitempty"`

	// GeminiKey is only set when KeyStore is "file"
	GeminiKey string `yaml:"gemini_key,omitempty"`

	// Defaults for all commands
	Defaults Defaults `yaml:"defaults,omitempty"`
}

// Defaults contains default settings for commands
type Defaults struct {
	// Output format: table, json, yaml
	Output string `yaml:"output,omitempty"`

	// NoHeaders suppresses table headers
	NoHeaders bool `yaml:"no_headers,omitempty"`

	// Quiet mode for minimal output
	Quiet bool `yaml:"quiet,omitempty"`
}

// DefaultConfigDir returns the default config directory path
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".debai"
	}
	return filepath.Join(home, ".debai")
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// New creates a new empty configuration
func New() *Config {
	return &Config{
		Version: Version,
		Defaults: Defaults{
			Output: "table",
		},
	}
}

// Load reads configuration from the specified path
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadOrCreate reads configuration or returns a new one if the file doesn't exist
func LoadOrCreate(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return cfg, err
}

// Save writes the configuration to the specified path
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	// Ensure directory exists with restricted permissions
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with 0600 permissions (owner read/write only)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Set changes one settable key
func (c *Config) Set(key, value string) error {
	switch key {
	case "server":
		c.Server = value
	case "defaults.output":
		switch value {
		case "table", "json", "yaml":
		default:
			return fmt.Errorf("invalid output format: %s (valid: table, json, yaml)", value)
		}
		c.Defaults.Output = value
	case "defaults.no_headers":
		c.Defaults.NoHeaders = value == "true"
	case "defaults.quiet":
		c.Defaults.Quiet = value == "true"
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}
