package cmd

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/debai-app/debai/internal/app"
	"github.com/debai-app/debai/internal/observability"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the DebAI server",
	Long: `Start the HTTP API and websocket endpoint. Configuration comes from
debai.yaml, .env files and DEBAI_ environment variables; a Gemini key stored
with 'debai key set' is used when GEMINI_API_KEY is not set.

Examples:
  debai serve
  debai serve --address :9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (overrides server.address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}

	setupLogging(zerolog.InfoLevel)
	observability.Version = Version
	log.Info().Str("version", Version).Str("commit", Commit).Msg("Starting DebAI")

	return app.Run(cmd.Context(), cfg)
}
