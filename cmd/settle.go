package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/internal/exchange"
	"github.com/parlaytech/updown-arb/internal/settlement"
	"github.com/parlaytech/updown-arb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Claim resolved winning positions",
	Long: `Runs one sweep of the settlement queue: every claimable row whose
market resolved long enough ago gets a sell order at the claim price.
The engine does this continuously; this command drains the backlog when
the engine has been down.

Use --list to show the queue without claiming. Claiming requires full
trading credentials.`,
	Args: cobra.NoArgs,
	RunE: runSettle,
}

//nolint:gochecknoglobals // Cobra boilerplate
var settleListOnly bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(settleCmd)
	settleCmd.Flags().BoolVar(&settleListOnly, "list", false, "Show pending settlements without claiming")
}

func runSettle(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	pending, err := store.GetPendingSettlements(ctx)
	if err != nil {
		return fmt.Errorf("load pending settlements: %w", err)
	}

	if len(pending) == 0 {
		fmt.Println("Settlement queue is empty.")
		return nil
	}

	now := time.Now().UTC()
	fmt.Printf("%-5s %-6s %10s %10s %8s %s\n",
		"Asset", "Side", "Shares", "Cost", "Tries", "Resolved")
	for _, e := range pending {
		fmt.Printf("%-5s %-6s %10s %10s %8d %s ago\n",
			e.Asset,
			sideLabel(e.Outcome),
			e.Shares.StringFixed(2),
			"$"+e.EntryCost.StringFixed(2),
			e.ClaimAttempts,
			now.Sub(e.MarketEndTime).Round(time.Minute))
	}
	fmt.Printf("\n%d pending rows\n", len(pending))

	if settleListOnly {
		return nil
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if err := creds.ValidateForTrading(); err != nil {
		return fmt.Errorf("trading credentials: %w", err)
	}

	clob, err := exchange.NewClobClient(&exchange.ClobConfig{
		BaseURL:     cfg.ClobAPIURL,
		Credentials: creds,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create clob client: %w", err)
	}

	manager := settlement.New(&settlement.Config{
		Store:          store,
		Exchange:       clob,
		ResolutionWait: cfg.ResolutionWait,
		FillWait:       cfg.ClaimFillTimeout,
		SellPrice:      cfg.ClaimSellPrice,
		BaseRetry:      cfg.SettlementBaseRetry,
		MaxRetry:       cfg.SettlementMaxRetry,
		MaxAttempts:    cfg.MaxClaimAttempts,
		AlertAfter:     cfg.SettlementAlertAfter,
		Logger:         logger,
	})

	fmt.Println("\nSweeping claimable rows...")
	manager.RunOnce(ctx)

	remaining, err := store.GetPendingSettlements(ctx)
	if err != nil {
		return fmt.Errorf("reload pending settlements: %w", err)
	}
	fmt.Printf("Done: %d claimed, %d still pending\n", len(pending)-len(remaining), len(remaining))

	return nil
}
