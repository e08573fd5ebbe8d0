// Package cmd provides the Cobra commands for the DebAI CLI.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/debai-app/debai/cli/client"
	cliconfig "github.com/debai-app/debai/cli/config"
	"github.com/debai-app/debai/cli/output"
	"github.com/debai-app/debai/internal/config"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	serverURL string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	cliCfg    *cliconfig.Config
	formatter *output.Formatter

	// env holds the CLI's own environment overrides; the global viper
	// instance belongs to the server configuration
	env = viper.New()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "debai",
	Short: "DebAI CLI - OCR and multilingual chat from the terminal",
	Long: `DebAI extracts text from images and PDFs and chats about it with a
local Ollama model, falling back to Gemini in the cloud.

Get started:
  debai serve              Run the HTTP and websocket server
  debai chat               Chat in the terminal without a server
  debai ocr scan.png       Print the text of an image or PDF
  debai key set            Store the Gemini API key in the keychain`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"CLI config file (default is ~/.debai/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "",
		"DebAI server URL (default "+client.DefaultServer+")")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	env.SetEnvPrefix("DEBAI")
	_ = env.BindEnv("server") // DEBAI_SERVER
	_ = env.BindEnv("debug")  // DEBAI_DEBUG
}

// setup loads the CLI config and builds the formatter before any command runs
func setup(cmd *cobra.Command, args []string) error {
	// Silence errors only when --quiet is used
	cmd.SilenceErrors = quiet

	var err error
	cliCfg, err = cliconfig.LoadOrCreate(GetConfigPath())
	if err != nil {
		return err
	}

	if env.GetBool("debug") {
		debug = true
	}

	format := outputFmt
	if format == "" {
		format = cliCfg.Defaults.Output
	}
	parsed, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(parsed, noHeaders || cliCfg.Defaults.NoHeaders, quiet || cliCfg.Defaults.Quiet)

	setupLogging(zerolog.WarnLevel)
	return nil
}

// setupLogging routes zerolog to a console writer on stderr. --debug wins over level.
func setupLogging(level zerolog.Level) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// newClient returns an API client for the server named by flag, environment or CLI config
func newClient() *client.Client {
	server := serverURL
	if server == "" {
		server = env.GetString("server")
	}
	if server == "" && cliCfg != nil {
		server = cliCfg.Server
	}
	return client.NewClient(server, client.WithDebug(debug))
}

// loadServerConfig loads the server configuration and fills the Gemini key
// from the credential store when the environment does not provide one
func loadServerConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		debug = true
	}

	if cfg.AI.Gemini.APIKey == "" && cliCfg != nil {
		key, err := cliconfig.NewCredentialManager(cliCfg).GeminiKey()
		if err != nil {
			log.Warn().Err(err).Msg("Could not read the stored Gemini key")
		} else if key != "" {
			cfg.AI.Gemini.APIKey = key
			log.Debug().Str("store", cliCfg.KeyStore).Msg("Using stored Gemini key")
		}
	}
	return cfg, nil
}

// GetConfigPath returns the CLI config file path
func GetConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return cliconfig.DefaultConfigPath()
}
