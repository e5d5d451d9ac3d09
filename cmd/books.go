package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/parlaytech/updown-arb/internal/discovery"
	"github.com/parlaytech/updown-arb/internal/orderbook"
	"github.com/parlaytech/updown-arb/pkg/config"
	"github.com/parlaytech/updown-arb/pkg/types"
	"github.com/parlaytech/updown-arb/pkg/websocket"
)

//nolint:gochecknoglobals // Cobra boilerplate
var booksCmd = &cobra.Command{
	Use:   "books <asset>",
	Short: "Watch the live orderbooks of the current window",
	Long: `Streams the current 15-minute window's YES and NO orderbooks for one
asset and prints the best asks and the implied two-sided spread once per
second. No credentials required. Stop with Ctrl-C.

Example:
  updown-arb books BTC`,
	Args: cobra.ExactArgs(1),
	RunE: runBooks,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(booksCmd)
}

func runBooks(cmd *cobra.Command, args []string) error {
	asset, err := types.ParseAsset(args[0])
	if err != nil {
		return err
	}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Resolve the live window.
	client := discovery.NewClient(&discovery.ClientConfig{
		BaseURL:      cfg.GammaAPIURL,
		RequestsPerS: cfg.GammaRateLimit,
		Logger:       logger,
	})

	now := time.Now().UTC()
	slot := discovery.CurrentSlot(now)
	slug := discovery.SlotSlug(asset, slot)

	gm, err := client.MarketBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", slug, err)
	}
	market, err := gm.Resolve(asset, slot)
	if err != nil {
		return err
	}

	feed := websocket.New(websocket.Config{
		URL:                   cfg.WSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectMultiplier:   cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})

	tracker := orderbook.New(&orderbook.Config{
		MessageChannel: feed.MessageChan(),
		StaleThreshold: cfg.StaleThreshold,
		Logger:         logger,
	})

	if err := feed.Start(); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}
	defer func() {
		_ = feed.Close()
	}()

	if err := tracker.Start(ctx); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}
	defer func() {
		_ = tracker.Close()
	}()

	tracker.Track(market)
	if err := feed.Subscribe(ctx, []string{market.YesTokenID, market.NoTokenID}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Printf("Watching %s (ends %s)\n\n", market.Slug, market.EndTime.Format(time.TimeOnly))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ticker.C:
			printBookLine(tracker, market)
		}
	}
}

func printBookLine(tracker *orderbook.Tracker, market *types.Market) {
	state, ok := tracker.State(market.ConditionID)
	if !ok {
		fmt.Printf("%s  waiting for first book...\n", time.Now().UTC().Format(time.TimeOnly))
		return
	}

	yesAsk, yesOK := state.YesAsk()
	noAsk, noOK := state.NoAsk()
	if !yesOK || !noOK {
		fmt.Printf("%s  one-sided book (yes=%v no=%v)\n",
			time.Now().UTC().Format(time.TimeOnly), yesOK, noOK)
		return
	}

	spread := decimal.NewFromInt(1).Sub(yesAsk.Price).Sub(noAsk.Price)
	fmt.Printf("%s  up %s x%s   down %s x%s   spread %s  rev %d\n",
		time.Now().UTC().Format(time.TimeOnly),
		yesAsk.Price.StringFixed(3), yesAsk.Size.StringFixed(1),
		noAsk.Price.StringFixed(3), noAsk.Size.StringFixed(1),
		spread.StringFixed(3), state.Revision)
}
