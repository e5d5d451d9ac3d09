package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/internal/exchange"
	"github.com/parlaytech/updown-arb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var cancelOrdersCmd = &cobra.Command{
	Use:   "cancel-orders <order-id> [order-id...]",
	Short: "Cancel resting orders by ID",
	Long: `Cancels the given order IDs on the CLOB. The engine only places
fill-or-kill orders, so a resting order normally means a claim sell is
stuck; cancel it and let the settlement retry re-place it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCancelOrders,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(cancelOrdersCmd)
}

func runCancelOrders(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, orderID := range args {
		if err := clob.CancelOrder(ctx, orderID); err != nil {
			fmt.Printf("✗ %s: %v\n", orderID, err)
			failed++
			continue
		}
		fmt.Printf("✓ %s canceled\n", orderID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d cancellations failed", failed, len(args))
	}
	return nil
}
