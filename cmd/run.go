package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/internal/app"
	"github.com/parlaytech/updown-arb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the arbitrage engine",
	Long: `Starts the engine, which will:
1. Discover the live 15-minute up/down windows for each configured asset
2. Subscribe to their orderbooks via WebSocket
3. Detect two-sided opportunities (YES ask + NO ask < $1.00 minus threshold)
4. Execute paired fill-or-kill orders, then claim winnings at resolution

Set ARB_DRY_RUN=true to simulate fills against live books without
placing real orders.`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	if err := application.Run(); err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
