package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliconfig "github.com/debai-app/debai/cli/config"
	"github.com/debai-app/debai/cli/util"
)

var keyFile bool

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored Gemini API key",
	Long: `Store the Gemini API key in the system keychain. The stored key is used by
serve, chat and ocr whenever GEMINI_API_KEY is not set.`,
}

var keySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the Gemini API key",
	Long: `Prompt for the Gemini API key and store it in the system keychain.
Use --file on systems without a keychain to keep it in the CLI config file.`,
	Args: cobra.NoArgs,
	RunE: runKeySet,
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored Gemini API key",
	Args:  cobra.NoArgs,
	RunE:  runKeyClear,
}

var keyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the Gemini API key comes from",
	Args:  cobra.NoArgs,
	RunE:  runKeyStatus,
}

func init() {
	keySetCmd.Flags().BoolVar(&keyFile, "file", false, "store the key in the CLI config file instead of the keychain")

	keyCmd.AddCommand(keySetCmd)
	keyCmd.AddCommand(keyClearCmd)
	keyCmd.AddCommand(keyStatusCmd)
}

func runKeySet(cmd *cobra.Command, args []string) error {
	if !util.IsInteractive() {
		return fmt.Errorf("key set needs an interactive terminal")
	}

	key, err := util.ReadPassword("Gemini API key: ")
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	if err := cliconfig.NewCredentialManager(cliCfg).SaveGeminiKey(key, !keyFile); err != nil {
		return err
	}
	if err := cliCfg.Save(GetConfigPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	formatter.PrintSuccess(fmt.Sprintf("Gemini key stored in %s.", cliCfg.KeyStore))
	return nil
}

func runKeyClear(cmd *cobra.Command, args []string) error {
	if err := cliconfig.NewCredentialManager(cliCfg).DeleteGeminiKey(); err != nil {
		return err
	}
	if err := cliCfg.Save(GetConfigPath()); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	formatter.PrintSuccess("Gemini key removed.")
	return nil
}

func runKeyStatus(cmd *cobra.Command, args []string) error {
	if env := os.Getenv("GEMINI_API_KEY"); env != "" {
		formatter.PrintKeyValue("GEMINI_API_KEY", util.MaskKey(env)+" (environment, takes precedence)")
	}

	key, err := cliconfig.NewCredentialManager(cliCfg).GeminiKey()
	if err != nil {
		return err
	}
	if key == "" {
		formatter.PrintKeyValue("stored", "none")
		return nil
	}
	formatter.PrintKeyValue("stored", fmt.Sprintf("%s (%s)", util.MaskKey(key), cliCfg.KeyStore))
	return nil
}
