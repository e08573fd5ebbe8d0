package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/debai-app/debai/cli/output"
	"github.com/debai-app/debai/cli/util"
)

var configCLI bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect DebAI configuration",
	Long:  `View the resolved server configuration and change CLI settings.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the resolved configuration",
	Long: `Show the server configuration after defaults, debai.yaml, .env files and
DEBAI_ environment variables are applied. Secrets are masked.

Examples:
  debai config view
  debai config view --output json
  debai config view --cli`,
	RunE: runConfigView,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a CLI configuration value",
	Long: `Set a value in the CLI config file.

Available keys:
  server              - DebAI server URL for the sessions commands
  defaults.output     - Default output format (table, json, yaml)
  defaults.no_headers - Hide table headers by default
  defaults.quiet      - Quiet mode by default

Examples:
  debai config set server http://localhost:8080
  debai config set defaults.output json`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configViewCmd.Flags().BoolVar(&configCLI, "cli", false, "show the CLI config file instead")

	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigView(cmd *cobra.Command, args []string) error {
	if configCLI {
		view := *cliCfg
		if view.GeminiKey != "" {
			view.GeminiKey = util.MaskKey(view.GeminiKey)
		}
		return viewFormatter().Print(view)
	}

	if _, err := loadServerConfig(); err != nil {
		return err
	}

	settings := viper.AllSettings()
	maskSecret(settings, "ai", "gemini", "api_key")
	maskSecret(settings, "redis", "url")
	return viewFormatter().Print(settings)
}

// viewFormatter prints YAML unless another format was asked for explicitly
func viewFormatter() *output.Formatter {
	if formatter.Format != output.FormatTable {
		return formatter
	}
	f := *formatter
	f.Format = output.FormatYAML
	return &f
}

// maskSecret replaces a non-empty string at path in nested settings
func maskSecret(settings map[string]any, path ...string) {
	node := settings
	for _, key := range path[:len(path)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	last := path[len(path)-1]
	if s, ok := node[last].(string); ok && s != "" {
		node[last] = util.MaskKey(s)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if err := cliCfg.Set(key, value); err != nil {
		return err
	}
	if err := cliCfg.Save(GetConfigPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	formatter.PrintSuccess(fmt.Sprintf("Set %s = %s", key, value))
	return nil
}
