package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/internal/discovery"
	"github.com/parlaytech/updown-arb/pkg/config"
	"github.com/parlaytech/updown-arb/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Show the live up/down windows for the configured assets",
	Long: `Looks up the current 15-minute window for each configured asset on the
Gamma API and prints its slug, condition ID, outcome tokens, and time
remaining. Use --next to also show the window that opens after this one.`,
	Args: cobra.NoArgs,
	RunE: runMarkets,
}

//nolint:gochecknoglobals // Cobra boilerplate
var showNextSlot bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(marketsCmd)
	marketsCmd.Flags().BoolVarP(&showNextSlot, "next", "n", false, "Also show the upcoming window")
}

func runMarkets(cmd *cobra.Command, args []string) error {
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

	client := discovery.NewClient(&discovery.ClientConfig{
		BaseURL:      cfg.GammaAPIURL,
		RequestsPerS: cfg.GammaRateLimit,
		Logger:       logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	slot := discovery.CurrentSlot(now)

	slots := []int64{slot}
	if showNextSlot {
		slots = append(slots, slot+int64(types.SlotDuration/time.Second))
	}

	for _, ts := range slots {
		for _, asset := range cfg.Assets {
			slug := discovery.SlotSlug(asset, ts)

			gm, err := client.MarketBySlug(ctx, slug)
			if err != nil {
				fmt.Printf("%-4s %s — not listed (%v)\n", asset, slug, err)
				continue
			}

			market, err := gm.Resolve(asset, ts)
			if err != nil {
				fmt.Printf("%-4s %s — unusable: %v\n", asset, slug, err)
				continue
			}

			printMarket(market, now)
		}
	}

	return nil
}

func printMarket(m *types.Market, now time.Time) {
	fmt.Printf("%-4s %s\n", m.Asset, m.Slug)
	fmt.Printf("     condition: %s\n", m.ConditionID)
	fmt.Printf("     up token:   %s\n", m.YesTokenID)
	fmt.Printf("     down token: %s\n", m.NoTokenID)

	switch {
	case now.Before(m.StartTime):
		fmt.Printf("     opens in %s\n\n", m.StartTime.Sub(now).Round(time.Second))
	case m.Ended(now):
		fmt.Printf("     ended %s ago\n\n", now.Sub(m.EndTime).Round(time.Second))
	default:
		fmt.Printf("     %s remaining\n\n", m.TimeToEnd(now).Round(time.Second))
	}
}
