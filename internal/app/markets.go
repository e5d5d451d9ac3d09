package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// handleMarketLifecycle consumes the finder's discovered and ended
// channels, keeping the tracker, feed subscriptions, and per-market risk
// state in step with the live slot rotation.
func (a *App) handleMarketLifecycle() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case market, ok := <-a.finder.Discovered():
			if !ok {
				return
			}
			a.trackMarket(market)
		case market, ok := <-a.finder.Ended():
			if !ok {
				return
			}
			a.retireMarket(market)
		}
	}
}

func (a *App) trackMarket(market *types.Market) {
	a.tracker.Track(market)

	tokens := []string{market.YesTokenID, market.NoTokenID}
	if err := a.feed.Subscribe(a.ctx, tokens); err != nil {
		a.logger.Error("feed-subscribe-failed",
			zap.String("slug", market.Slug),
			zap.Error(err))
	}

	a.seedBooks(market)
}

// retireMarket tears a finished window down. The position, if still
// open, leaves the manager here; its tokens are already queued for
// settlement.
func (a *App) retireMarket(market *types.Market) {
	tokens := []string{market.YesTokenID, market.NoTokenID}
	if err := a.feed.Unsubscribe(a.ctx, tokens); err != nil {
		a.logger.Warn("feed-unsubscribe-failed",
			zap.String("slug", market.Slug),
			zap.Error(err))
	}

	a.tracker.Untrack(market.ConditionID)
	a.detector.Forget(market.ConditionID)
	a.gate.Forget(market.ConditionID)

	if a.positions.Close(market.ConditionID) {
		a.logger.Info("position-moved-to-settlement",
			zap.String("slug", market.Slug))
	}
}

// seedBooks installs REST snapshots for a market's tokens so detection
// does not have to wait for the stream's first full book message.
func (a *App) seedBooks(market *types.Market) {
	for _, outcome := range []types.OutcomeSide{types.OutcomeYes, types.OutcomeNo} {
		tokenID := market.TokenID(outcome)
		book, err := a.exchange.GetBook(a.ctx, tokenID)
		if err != nil {
			a.logger.Debug("book-seed-unavailable",
				zap.String("slug", market.Slug),
				zap.String("token-id", tokenID),
				zap.Error(err))
			continue
		}
		a.tracker.Seed(market.ConditionID, outcome, book)
	}
}

// onFeedReconnect runs after the stream reconnects and resubscribes.
// Cached prices are suspect until fresh snapshots arrive, so everything
// is invalidated and re-seeded.
func (a *App) onFeedReconnect() {
	a.tracker.InvalidateAll()
	a.bus.Publish(events.Event{
		Type: events.TypeWebsocketReconnected,
		At:   time.Now().UTC(),
	})

	go func() {
		for _, market := range a.tracker.TrackedMarkets() {
			a.seedBooks(market)
		}
	}()
}
