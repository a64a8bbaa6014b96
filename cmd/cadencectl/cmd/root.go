package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/drewmudry/cadence-api/internal/app"
	"github.com/drewmudry/cadence-api/internal/platform"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cadencectl",
	Short: "cadencectl operates the cadence publishing pipeline",
	Long: `cadencectl runs the batch operations of the cadence pipeline directly
against the database, without going through the HTTP API.

Common workflows:

  Apply migrations:
    cadencectl migrate

  Publish everything that is due:
    cadencectl run-due --limit 50

  Retry one draft:
    cadencectl publish-now 42

  Materialize drafts for every active brand:
    cadencectl generate-all

  Show what a rule expands to:
    cadencectl preview --rule 7 --month 2026-03

Configuration is read from .env, the optional --config YAML file and the
environment (DATABASE_URL, REDIS_URL, TOKEN_ENCRYPTION_KEY, ...).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
}

func loadConfig() (platform.Config, error) {
	cfg, err := platform.LoadConfig(cfgFile)
	if err != nil {
		return cfg, err
	}
	return cfg, platform.SetupLogging(cfg.Log)
}

// openApp is swapped out in tests.
var openApp = func(ctx context.Context) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
