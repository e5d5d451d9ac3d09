package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parlaytech/updown-arb/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(&SQLiteConfig{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func fixtureTrade(endTime time.Time) (*types.TradeRecord, []*types.SettlementEntry) {
	createdAt := endTime.Add(-10 * time.Minute)

	trade := &types.TradeRecord{
		TradeID:        "01JTESTTRADE00000000000000",
		CreatedAt:      createdAt,
		ConditionID:    "0xcond1",
		Asset:          types.AssetBTC,
		Slug:           "btc-updown-15m-1756045800",
		YesTokenID:     "tok-yes",
		NoTokenID:      "tok-no",
		YesPrice:       decimal.RequireFromString("0.48"),
		NoPrice:        decimal.RequireFromString("0.49"),
		IntendedPairs:  decimal.RequireFromString("20.61"),
		IntendedCost:   decimal.RequireFromString("19.9917"),
		YesShares:      decimal.RequireFromString("20.61"),
		NoShares:       decimal.RequireFromString("20.61"),
		YesCost:        decimal.RequireFromString("9.8928"),
		NoCost:         decimal.RequireFromString("10.0989"),
		Status:         types.ExecFullFill,
		YesOrderStatus: "MATCHED",
		NoOrderStatus:  "MATCHED",
		HedgeRatio:     decimal.NewFromInt(1),
		ExpectedProfit: decimal.RequireFromString("0.6183"),
		YesDepth:       types.DepthSnapshot{AtLimit: decimal.NewFromInt(100), Total: decimal.NewFromInt(500)},
		NoDepth:        types.DepthSnapshot{AtLimit: decimal.NewFromInt(80), Total: decimal.NewFromInt(400)},
		MarketEndTime:  endTime,
	}

	entries := []*types.SettlementEntry{
		{
			TradeID:       trade.TradeID,
			TokenID:       trade.YesTokenID,
			ConditionID:   trade.ConditionID,
			Asset:         trade.Asset,
			Outcome:       types.OutcomeYes,
			Shares:        trade.YesShares,
			EntryPrice:    trade.YesPrice,
			EntryCost:     trade.YesCost,
			MarketEndTime: endTime,
			ClaimProceeds: decimal.Zero,
			ClaimProfit:   decimal.Zero,
			CreatedAt:     createdAt,
		},
		{
			TradeID:       trade.TradeID,
			TokenID:       trade.NoTokenID,
			ConditionID:   trade.ConditionID,
			Asset:         trade.Asset,
			Outcome:       types.OutcomeNo,
			Shares:        trade.NoShares,
			EntryPrice:    trade.NoPrice,
			EntryCost:     trade.NoCost,
			MarketEndTime: endTime,
			ClaimProceeds: decimal.Zero,
			ClaimProfit:   decimal.Zero,
			CreatedAt:     createdAt,
		},
	}

	return trade, entries
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	endTime := time.Date(2025, 8, 24, 14, 15, 0, 0, time.UTC)
	trade, entries := fixtureTrade(endTime)

	require.NoError(t, store.SaveTradeWithSettlements(ctx, trade, entries))

	got, err := store.GetTrade(ctx, trade.TradeID)
	require.NoError(t, err)

	assert.Equal(t, trade.TradeID, got.TradeID)
	assert.Equal(t, trade.ConditionID, got.ConditionID)
	assert.Equal(t, trade.Asset, got.Asset)
	assert.Equal(t, trade.Status, got.Status)
	assert.True(t, trade.YesPrice.Equal(got.YesPrice), "yes price: want %s got %s", trade.YesPrice, got.YesPrice)
	assert.True(t, trade.NoPrice.Equal(got.NoPrice))
	assert.True(t, trade.IntendedPairs.Equal(got.IntendedPairs))
	assert.True(t, trade.YesCost.Equal(got.YesCost))
	assert.True(t, trade.NoCost.Equal(got.NoCost))
	assert.True(t, trade.ExpectedProfit.Equal(got.ExpectedProfit))
	assert.True(t, trade.YesDepth.AtLimit.Equal(got.YesDepth.AtLimit))
	assert.True(t, trade.NoDepth.Total.Equal(got.NoDepth.Total))
	assert.True(t, trade.MarketEndTime.Equal(got.MarketEndTime))
	assert.False(t, got.DryRun)

	rows, err := store.GetSettlementsForTrade(ctx, trade.TradeID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.False(t, row.Claimed)
		assert.Nil(t, row.ClaimedAt)
		assert.Zero(t, row.ClaimAttempts)
		assert.True(t, row.NextAttemptAt.IsZero(), "next attempt should round-trip as zero")
	}
}

func TestSQLiteGetTradeNotFound(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)

	_, err := store.GetTrade(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrTradeNotFound)
}

func TestSQLiteDuplicateTradeRejected(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	endTime := time.Date(2025, 8, 24, 14, 15, 0, 0, time.UTC)
	trade, entries := fixtureTrade(endTime)

	require.NoError(t, store.SaveTradeWithSettlements(ctx, trade, entries))
	assert.Error(t, store.SaveTradeWithSettlements(ctx, trade, entries))
}

func TestSQLiteFailedSettlementRowRollsBackTrade(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	endTime := time.Date(2025, 8, 24, 14, 15, 0, 0, time.UTC)
	trade, entries := fixtureTrade(endTime)

	// Duplicate settlement keys violate the primary key mid-transaction.
	entries[1].TokenID = entries[0].TokenID

	require.Error(t, store.SaveTradeWithSettlements(ctx, trade, entries))

	// The trade row must not survive the rollback.
	_, err := store.GetTrade(ctx, trade.TradeID)
	assert.ErrorIs(t, err, types.ErrTradeNotFound)
}

func TestSQLiteClaimLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	endTime := time.Date(2025, 8, 24, 14, 15, 0, 0, time.UTC)
	resolutionWait := 10 * time.Minute
	trade, entries := fixtureTrade(endTime)

	require.NoError(t, store.SaveTradeWithSettlements(ctx, trade, entries))

	t.Run("not_claimable_before_resolution_wait", func(t *testing.T) {
		now := endTime.Add(resolutionWait - time.Second)
		got, err := store.GetClaimableSettlements(ctx, now, resolutionWait, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("claimable_at_boundary", func(t *testing.T) {
		now := endTime.Add(resolutionWait)
		got, err := store.GetClaimableSettlements(ctx, now, resolutionWait, 5)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("failure_schedules_retry", func(t *testing.T) {
		now := endTime.Add(resolutionWait)
		nextAttempt := now.Add(90 * time.Second)

		err := store.RecordSettlementFailure(ctx, trade.TradeID, trade.YesTokenID, 1, "order not filled", nextAttempt)
		require.NoError(t, err)

		got, err := store.GetClaimableSettlements(ctx, now, resolutionWait, 5)
		require.NoError(t, err)
		require.Len(t, got, 1, "the failed row should be held back until its retry time")
		assert.Equal(t, trade.NoTokenID, got[0].TokenID)

		got, err = store.GetClaimableSettlements(ctx, nextAttempt, resolutionWait, 5)
		require.NoError(t, err)
		assert.Len(t, got, 2, "the failed row returns once the backoff elapses")
	})

	t.Run("attempt_cap_excludes_row", func(t *testing.T) {
		now := endTime.Add(resolutionWait)

		err := store.RecordSettlementFailure(ctx, trade.TradeID, trade.YesTokenID, 5, "order not filled", now)
		require.NoError(t, err)

		got, err := store.GetClaimableSettlements(ctx, now.Add(time.Hour), resolutionWait, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, trade.NoTokenID, got[0].TokenID)
	})

	t.Run("claim_marks_row_done", func(t *testing.T) {
		claimedAt := endTime.Add(resolutionWait + time.Minute)
		proceeds := decimal.RequireFromString("20.4039")
		profit := decimal.RequireFromString("10.3050")

		err := store.MarkSettlementClaimed(ctx, trade.TradeID, trade.NoTokenID, claimedAt, proceeds, profit)
		require.NoError(t, err)

		rows, err := store.GetSettlementsForTrade(ctx, trade.TradeID)
		require.NoError(t, err)

		var claimed *types.SettlementEntry
		for _, r := range rows {
			if r.TokenID == trade.NoTokenID {
				claimed = r
			}
		}
		require.NotNil(t, claimed)
		assert.True(t, claimed.Claimed)
		require.NotNil(t, claimed.ClaimedAt)
		assert.True(t, claimedAt.Equal(*claimed.ClaimedAt))
		assert.True(t, proceeds.Equal(claimed.ClaimProceeds))
		assert.True(t, profit.Equal(claimed.ClaimProfit))

		got, err := store.GetClaimableSettlements(ctx, claimedAt.Add(time.Hour), resolutionWait, 10)
		require.NoError(t, err)
		assert.Len(t, got, 1, "claimed row never reappears")
	})

	t.Run("abandoned_row_excluded", func(t *testing.T) {
		err := store.MarkSettlementAbandoned(ctx, trade.TradeID, trade.YesTokenID)
		require.NoError(t, err)

		got, err := store.GetPendingSettlements(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSQLiteAdjustSettlementShares(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	endTime := time.Date(2025, 8, 24, 14, 15, 0, 0, time.UTC)
	trade, entries := fixtureTrade(endTime)
	require.NoError(t, store.SaveTradeWithSettlements(ctx, trade, entries))

	newShares := decimal.RequireFromString("15.5")
	newCost := decimal.RequireFromString("7.44")

	require.NoError(t, store.AdjustSettlementShares(ctx, trade.TradeID, trade.YesTokenID, newShares, newCost))

	rows, err := store.GetSettlementsForTrade(ctx, trade.TradeID)
	require.NoError(t, err)

	for _, r := range rows {
		if r.TokenID == trade.YesTokenID {
			assert.True(t, newShares.Equal(r.Shares))
			assert.True(t, newCost.Equal(r.EntryCost))
		}
	}

	err = store.AdjustSettlementShares(ctx, "missing", trade.YesTokenID, newShares, newCost)
	assert.ErrorIs(t, err, types.ErrSettlementNotFound)
}

func TestSQLiteBreakerStateRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := store.LoadBreakerState(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "fresh store has no breaker state")

	state := &types.CircuitBreakerState{
		Level:               types.LevelWarning,
		ConsecutiveFailures: 3,
		DailyPnL:            decimal.RequireFromString("-51.20"),
		DayBucket:           "2025-08-24",
		UpdatedAt:           time.Date(2025, 8, 24, 14, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveBreakerState(ctx, state))

	got, err = store.LoadBreakerState(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.LevelWarning, got.Level)
	assert.Equal(t, 3, got.ConsecutiveFailures)
	assert.True(t, state.DailyPnL.Equal(got.DailyPnL))
	assert.Equal(t, "2025-08-24", got.DayBucket)

	// Upsert replaces, never duplicates.
	state.Level = types.LevelHalt
	state.ConsecutiveFailures = 5
	require.NoError(t, store.SaveBreakerState(ctx, state))

	got, err = store.LoadBreakerState(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.LevelHalt, got.Level)
	assert.Equal(t, 5, got.ConsecutiveFailures)
}

func TestSQLiteLiquiditySnapshots(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := &types.LiquiditySnapshot{
			ConditionID: "0xcond1",
			Asset:       types.AssetETH,
			TakenAt:     base.Add(time.Duration(i) * time.Hour),
			YesBid:      decimal.RequireFromString("0.47"),
			YesBidSize:  decimal.NewFromInt(120),
			YesAsk:      decimal.RequireFromString("0.48"),
			YesAskSize:  decimal.NewFromInt(90),
			NoBid:       decimal.RequireFromString("0.48"),
			NoBidSize:   decimal.NewFromInt(75),
			NoAsk:       decimal.RequireFromString("0.49"),
			NoAskSize:   decimal.NewFromInt(60),
			Spread:      decimal.RequireFromString("0.03"),
		}
		require.NoError(t, store.SaveLiquiditySnapshot(ctx, snap))
	}

	removed, err := store.PruneLiquiditySnapshots(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = store.PruneLiquiditySnapshots(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed, "prune is idempotent")
}

func TestSQLiteTradesEndingAfter(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	past := time.Date(2025, 8, 24, 10, 0, 0, 0, time.UTC)
	future := time.Date(2025, 8, 24, 16, 0, 0, 0, time.UTC)

	oldTrade, oldEntries := fixtureTrade(past)
	oldTrade.TradeID = "01JOLD0000000000000000000A"
	for _, e := range oldEntries {
		e.TradeID = oldTrade.TradeID
	}
	require.NoError(t, store.SaveTradeWithSettlements(ctx, oldTrade, oldEntries))

	liveTrade, liveEntries := fixtureTrade(future)
	liveTrade.TradeID = "01JLIVE000000000000000000B"
	for _, e := range liveEntries {
		e.TradeID = liveTrade.TradeID
	}
	require.NoError(t, store.SaveTradeWithSettlements(ctx, liveTrade, liveEntries))

	now := time.Date(2025, 8, 24, 14, 0, 0, 0, time.UTC)
	got, err := store.GetTradesEndingAfter(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, liveTrade.TradeID, got[0].TradeID)

	recent, err := store.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
