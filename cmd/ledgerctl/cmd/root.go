package cmd

import (
	"fmt"

	"github.com/sheikh-saqib/brokerage-ledger/internal/app"
	"github.com/sheikh-saqib/brokerage-ledger/internal/config"
	"github.com/sheikh-saqib/brokerage-ledger/internal/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the brokerage ledger",
	Long: `ledgerctl inspects and maintains the brokerage ledger.

It reads the same configuration as the server, so it works against the
configured postgres database. Use it to apply the schema, read balances
and history, and reconcile cached balances and positions against a full
replay of the ledger.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	rootCmd.AddCommand(
		newMigrateCmd(),
		newBalanceCmd(),
		newHistoryCmd(),
		newReconcileCmd(),
	)
}

// openApp loads the configuration and wires the ledger. Logs go to stderr
// so that command output stays parseable.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Log.File = ""
	log, _, err := logger.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return nil, fmt.Errorf("wire ledger: %w", err)
	}
	return a, nil
}
