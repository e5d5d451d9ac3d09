// Package storage persists trade records, the settlement queue,
// circuit breaker state, and liquidity snapshots.
package storage

import (
	"context"
	"time"

	"github.com/parlaytech/updown-arb/pkg/types"
	"github.com/shopspring/decimal"
)

// Store is the interface for durable engine state.
//
// Implementations must make SaveTradeWithSettlements atomic: the trade
// row and its settlement rows commit together or not at all.
type Store interface {
	// SaveTradeWithSettlements persists a trade record and its settlement
	// rows in one transaction. Called before positions are updated or the
	// result is published, so a crash never leaves filled legs untracked.
	SaveTradeWithSettlements(ctx context.Context, trade *types.TradeRecord, entries []*types.SettlementEntry) error

	// GetTrade returns the trade with the given ID, or
	// types.ErrTradeNotFound.
	GetTrade(ctx context.Context, tradeID string) (*types.TradeRecord, error)

	// GetRecentTrades returns up to limit trades, newest first.
	GetRecentTrades(ctx context.Context, limit int) ([]*types.TradeRecord, error)

	// GetTradesEndingAfter returns trades whose market window ends after
	// cutoff. Used on startup to rebuild window spend and open positions.
	GetTradesEndingAfter(ctx context.Context, cutoff time.Time) ([]*types.TradeRecord, error)

	// GetSettlementsForTrade returns all settlement rows for a trade.
	GetSettlementsForTrade(ctx context.Context, tradeID string) ([]*types.SettlementEntry, error)

	// GetPendingSettlements returns rows not yet claimed and not abandoned.
	GetPendingSettlements(ctx context.Context) ([]*types.SettlementEntry, error)

	// GetClaimableSettlements returns pending rows whose market resolved at
	// least resolutionWait ago, whose retry backoff has elapsed, and whose
	// attempt count is below maxAttempts. Ordered oldest market first.
	GetClaimableSettlements(ctx context.Context, now time.Time, resolutionWait time.Duration, maxAttempts int) ([]*types.SettlementEntry, error)

	// MarkSettlementClaimed records a successful claim.
	MarkSettlementClaimed(ctx context.Context, tradeID, tokenID string, claimedAt time.Time, proceeds, profit decimal.Decimal) error

	// RecordSettlementFailure bumps the attempt counter and schedules the
	// next attempt.
	RecordSettlementFailure(ctx context.Context, tradeID, tokenID string, attempts int, lastError string, nextAttemptAt time.Time) error

	// MarkSettlementAbandoned flags a row as permanently failed.
	MarkSettlementAbandoned(ctx context.Context, tradeID, tokenID string) error

	// AdjustSettlementShares overwrites the share count and entry cost of a
	// settlement row after a rebalance sold part of the position.
	AdjustSettlementShares(ctx context.Context, tradeID, tokenID string, shares, cost decimal.Decimal) error

	// AppendSettlement inserts a single settlement row. Used when a
	// rebalance buy opens a side the original trade never filled.
	AppendSettlement(ctx context.Context, entry *types.SettlementEntry) error

	// SaveBreakerState upserts the single circuit breaker row.
	SaveBreakerState(ctx context.Context, state *types.CircuitBreakerState) error

	// LoadBreakerState returns the persisted breaker state, or (nil, nil)
	// when none has been saved yet.
	LoadBreakerState(ctx context.Context) (*types.CircuitBreakerState, error)

	// SaveLiquiditySnapshot appends a book snapshot.
	SaveLiquiditySnapshot(ctx context.Context, snap *types.LiquiditySnapshot) error

	// PruneLiquiditySnapshots deletes snapshots taken before cutoff and
	// returns the number removed.
	PruneLiquiditySnapshots(ctx context.Context, cutoff time.Time) (int64, error)

	// Close closes the store.
	Close() error
}
