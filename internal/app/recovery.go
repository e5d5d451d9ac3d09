package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// recover rebuilds in-memory state from the store after a restart:
// circuit breaker level, open positions, and per-window spend. Markets
// still inside their window are re-tracked so the rebalancer has prices
// to work with.
func (a *App) recover() error {
	now := time.Now().UTC()

	if err := a.breaker.Restore(a.ctx); err != nil {
		return fmt.Errorf("restore breaker: %w", err)
	}

	trades, err := a.store.GetTradesEndingAfter(a.ctx, now)
	if err != nil {
		return fmt.Errorf("load live trades: %w", err)
	}

	recovered := a.positions.Recover(trades)

	for _, trade := range trades {
		if trade.DryRun || trade.Status == types.ExecFailed {
			continue
		}

		// Re-commit the executed spend so the window cap survives the
		// restart.
		cost := trade.ActualCost()
		if cost.IsPositive() {
			a.pipe.ledger.Reserve(trade.ConditionID, cost)
			a.pipe.ledger.Commit(trade.ConditionID, cost, cost)
		}

		if a.positions.HasOpen(trade.ConditionID) {
			a.resumeMarket(trade, now)
		}
	}

	a.logger.Info("state-recovered",
		zap.Int("live-trades", len(trades)),
		zap.Int("open-positions", recovered))

	return nil
}

// resumeMarket re-tracks a market reconstructed from a trade record and
// resubscribes its feed.
func (a *App) resumeMarket(trade *types.TradeRecord, now time.Time) {
	market := &types.Market{
		Asset:       trade.Asset,
		Slug:        trade.Slug,
		ConditionID: trade.ConditionID,
		YesTokenID:  trade.YesTokenID,
		NoTokenID:   trade.NoTokenID,
		StartTime:   trade.MarketEndTime.Add(-types.SlotDuration),
		EndTime:     trade.MarketEndTime,
	}
	if market.Ended(now) {
		return
	}

	a.trackMarket(market)
}
