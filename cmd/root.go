package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "updown-arb",
	Short: "Two-sided arbitrage engine for 15-minute up/down markets",
	Long: `updown-arb trades Polymarket's 15-minute up/down binary markets.
When the YES ask plus the NO ask price below $1.00, buying both sides
locks in the difference regardless of where the underlying settles.

The engine discovers each new window via the Gamma API, streams its
orderbooks over WebSocket, and fires paired fill-or-kill orders when the
spread clears the configured threshold. Run 'updown-arb run' to start it;
the remaining commands are operational tools.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
