package main

import (
	"fmt"
	"os"

	"github.com/atividade/backend/internal/config"
	"github.com/atividade/backend/pkg/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "atividades",
	Short: "Atividades photo album server",
	Long: `Serves the Atividades photo album: a JSON API under /api and
server-rendered pages for the browser.

Configuration comes from config.yaml (or CONFIG_PATH) and environment
variables such as DB_DRIVER, SUPABASE_URL and AUTH_SERVER_URL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.Configure(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	logger.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
