package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/internal/position"
	"github.com/parlaytech/updown-arb/pkg/config"
	"github.com/parlaytech/updown-arb/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show open positions reconstructed from the trade store",
	Long: `Rebuilds open positions from trades whose market window has not ended
yet, the same way the engine does after a restart. Shows holdings, cost
basis, and hedge ratio per market.`,
	Args: cobra.NoArgs,
	RunE: runPositions,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd)
}

func runPositions(cmd *cobra.Command, args []string) error {
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

	now := time.Now().UTC()
	trades, err := store.GetTradesEndingAfter(ctx, now)
	if err != nil {
		return fmt.Errorf("load live trades: %w", err)
	}

	manager := position.NewManager(logger)
	manager.Recover(trades)

	open := manager.All()
	if len(open) == 0 {
		fmt.Println("No open positions.")
		return nil
	}

	fmt.Printf("%-5s %-34s %10s %10s %8s %10s %10s\n",
		"Asset", "Market", "Up", "Down", "Hedge", "Cost", "Ends In")
	totalCost := decimal.Zero

	for _, pos := range open {
		cost := pos.TotalCost()
		totalCost = totalCost.Add(cost)
		fmt.Printf("%-5s %-34s %10s %10s %8s %10s %10s\n",
			pos.Asset,
			truncate(pos.Slug, 34),
			pos.YesShares.StringFixed(2),
			pos.NoShares.StringFixed(2),
			pos.HedgeRatio().StringFixed(3),
			"$"+cost.StringFixed(2),
			pos.MarketEndTime.Sub(now).Round(time.Second).String())

		if side, excess, ok := pos.ExcessSide(); ok {
			fmt.Printf("      ! lopsided: %s excess of %s shares\n", sideLabel(side), excess.StringFixed(2))
		}
	}

	fmt.Printf("\n%d open positions, $%s at risk\n", len(open), totalCost.StringFixed(2))
	return nil
}

func sideLabel(side types.OutcomeSide) string {
	if side == types.OutcomeYes {
		return "up"
	}
	return "down"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
