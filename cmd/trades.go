package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/pkg/config"
	"github.com/parlaytech/updown-arb/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Show recent executions from the trade store",
	Args:  cobra.NoArgs,
	RunE:  runTrades,
}

//nolint:gochecknoglobals // Cobra boilerplate
var tradesLimit int

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(tradesCmd)
	tradesCmd.Flags().IntVarP(&tradesLimit, "limit", "l", 20, "Number of trades to show")
}

func runTrades(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger("warn")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	trades, err := store.GetRecentTrades(ctx, tradesLimit)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}

	if len(trades) == 0 {
		fmt.Println("No trades recorded.")
		return nil
	}

	fmt.Printf("%-20s %-5s %-12s %8s %8s %10s %10s %s\n",
		"Time", "Asset", "Status", "Up@", "Down@", "Pairs", "Cost", "Mode")

	totalCost := decimal.Zero
	for _, trade := range trades {
		mode := "live"
		if trade.DryRun {
			mode = "dry-run"
		}

		cost := trade.ActualCost()
		totalCost = totalCost.Add(cost)

		fmt.Printf("%-20s %-5s %-12s %8s %8s %10s %10s %s\n",
			trade.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			trade.Asset,
			trade.Status,
			trade.YesPrice.StringFixed(3),
			trade.NoPrice.StringFixed(3),
			minShares(trade).StringFixed(2),
			"$"+cost.StringFixed(2),
			mode)
	}

	fmt.Printf("\n%d trades, $%s executed\n", len(trades), totalCost.StringFixed(2))
	return nil
}

// minShares is the paired quantity actually secured on both legs.
func minShares(trade *types.TradeRecord) decimal.Decimal {
	if trade.YesShares.LessThan(trade.NoShares) {
		return trade.YesShares
	}
	return trade.NoShares
}
