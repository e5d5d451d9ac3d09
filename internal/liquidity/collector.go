// Package liquidity periodically records top-of-book snapshots of
// tracked markets for offline spread analysis.
package liquidity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// BookSource exposes the tracked markets and their current state.
type BookSource interface {
	TrackedMarkets() []*types.Market
	State(conditionID string) (*types.MarketState, bool)
}

// SnapshotStore is the storage surface the collector writes through.
type SnapshotStore interface {
	SaveLiquiditySnapshot(ctx context.Context, snap *types.LiquiditySnapshot) error
	PruneLiquiditySnapshots(ctx context.Context, cutoff time.Time) (int64, error)
}

// Collector samples the book on a fixed interval and prunes old
// snapshots on startup.
type Collector struct {
	books     BookSource
	store     SnapshotStore
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// Config holds collector dependencies and tuning.
type Config struct {
	Books     BookSource
	Store     SnapshotStore
	Interval  time.Duration
	Retention time.Duration
	Logger    *zap.Logger
}

// New creates a collector.
func New(cfg *Config) *Collector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	return &Collector{
		books:     cfg.Books,
		store:     cfg.Store,
		interval:  interval,
		retention: retention,
		logger:    cfg.Logger,
	}
}

// Start prunes expired snapshots, then samples until the context ends.
func (c *Collector) Start(ctx context.Context) {
	removed, err := c.store.PruneLiquiditySnapshots(ctx, time.Now().UTC().Add(-c.retention))
	if err != nil {
		c.logger.Error("snapshot-prune-failed", zap.Error(err))
	} else if removed > 0 {
		c.logger.Info("snapshots-pruned", zap.Int64("removed", removed))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("liquidity-collector-started",
		zap.Duration("interval", c.interval),
		zap.Duration("retention", c.retention))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("liquidity-collector-stopped")
			return
		case now := <-ticker.C:
			c.sampleOnce(ctx, now.UTC())
		}
	}
}

func (c *Collector) sampleOnce(ctx context.Context, now time.Time) {
	for _, market := range c.books.TrackedMarkets() {
		state, ok := c.books.State(market.ConditionID)
		if !ok {
			continue
		}

		snap := buildSnapshot(market, state, now)
		if err := c.store.SaveLiquiditySnapshot(ctx, snap); err != nil {
			c.logger.Error("snapshot-save-failed",
				zap.String("condition-id", market.ConditionID),
				zap.Error(err))
			continue
		}
		SnapshotsTotal.Inc()
	}
}

func buildSnapshot(market *types.Market, state *types.MarketState, now time.Time) *types.LiquiditySnapshot {
	snap := &types.LiquiditySnapshot{
		ConditionID: market.ConditionID,
		Asset:       market.Asset,
		TakenAt:     now,
	}

	if lvl, ok := state.Yes.Bids.Best(); ok {
		snap.YesBid, snap.YesBidSize = lvl.Price, lvl.Size
	}
	if lvl, ok := state.Yes.Asks.Best(); ok {
		snap.YesAsk, snap.YesAskSize = lvl.Price, lvl.Size
	}
	if lvl, ok := state.No.Bids.Best(); ok {
		snap.NoBid, snap.NoBidSize = lvl.Price, lvl.Size
	}
	if lvl, ok := state.No.Asks.Best(); ok {
		snap.NoAsk, snap.NoAskSize = lvl.Price, lvl.Size
	}
	if spread, ok := state.Spread(); ok {
		snap.Spread = spread
	}

	return snap
}
