package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parlaytech/updown-arb/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// sqlStore implements Store on top of database/sql. Queries are written
// with ? placeholders; the rebind hook translates them for drivers that
// number their parameters.
type sqlStore struct {
	db     *sql.DB
	logger *zap.Logger
	rebind func(string) string
}

func rebindNone(query string) string { return query }

// rebindDollar rewrites ? placeholders to $1..$n for lib/pq.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const tradeColumns = `trade_id, created_at, condition_id, asset, slug,
	yes_token_id, no_token_id, yes_price, no_price, intended_pairs,
	intended_cost, yes_shares, no_shares, yes_cost, no_cost, status,
	yes_order_status, no_order_status, hedge_ratio, expected_profit,
	yes_depth_at_limit, yes_depth_total, no_depth_at_limit, no_depth_total,
	market_end_time, dry_run`

const settlementColumns = `trade_id, token_id, condition_id, asset, outcome,
	shares, entry_price, entry_cost, market_end_time, claimed, claimed_at,
	claim_proceeds, claim_profit, claim_attempts, last_error, next_attempt_at,
	abandoned, created_at`

// SaveTradeWithSettlements writes the trade and its settlement rows in a
// single transaction.
func (s *sqlStore) SaveTradeWithSettlements(ctx context.Context, trade *types.TradeRecord, entries []*types.SettlementEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("save_trade").Inc()
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	insertTrade := s.rebind(`INSERT INTO trades (` + tradeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = tx.ExecContext(ctx, insertTrade,
		trade.TradeID,
		trade.CreatedAt,
		trade.ConditionID,
		string(trade.Asset),
		trade.Slug,
		trade.YesTokenID,
		trade.NoTokenID,
		trade.YesPrice,
		trade.NoPrice,
		trade.IntendedPairs,
		trade.IntendedCost,
		trade.YesShares,
		trade.NoShares,
		trade.YesCost,
		trade.NoCost,
		string(trade.Status),
		trade.YesOrderStatus,
		trade.NoOrderStatus,
		trade.HedgeRatio,
		trade.ExpectedProfit,
		trade.YesDepth.AtLimit,
		trade.YesDepth.Total,
		trade.NoDepth.AtLimit,
		trade.NoDepth.Total,
		trade.MarketEndTime,
		trade.DryRun,
	)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("save_trade").Inc()
		return fmt.Errorf("insert trade: %w", err)
	}

	insertEntry := s.rebind(`INSERT INTO settlement_queue (` + settlementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, e := range entries {
		var nextAttempt any
		if !e.NextAttemptAt.IsZero() {
			nextAttempt = e.NextAttemptAt
		}

		_, err = tx.ExecContext(ctx, insertEntry,
			e.TradeID,
			e.TokenID,
			e.ConditionID,
			string(e.Asset),
			string(e.Outcome),
			e.Shares,
			e.EntryPrice,
			e.EntryCost,
			e.MarketEndTime,
			e.Claimed,
			e.ClaimedAt,
			e.ClaimProceeds,
			e.ClaimProfit,
			e.ClaimAttempts,
			e.LastError,
			nextAttempt,
			e.Abandoned,
			e.CreatedAt,
		)
		if err != nil {
			StoreErrorsTotal.WithLabelValues("save_trade").Inc()
			return fmt.Errorf("insert settlement row %s: %w", e.Key(), err)
		}
	}

	err = tx.Commit()
	if err != nil {
		StoreErrorsTotal.WithLabelValues("save_trade").Inc()
		return fmt.Errorf("commit: %w", err)
	}

	StoreWritesTotal.WithLabelValues("trades").Inc()
	s.logger.Debug("trade-persisted",
		zap.String("trade-id", trade.TradeID),
		zap.String("slug", trade.Slug),
		zap.Int("settlement-rows", len(entries)))

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*types.TradeRecord, error) {
	var (
		t      types.TradeRecord
		asset  string
		status string
	)

	err := row.Scan(
		&t.TradeID,
		&t.CreatedAt,
		&t.ConditionID,
		&asset,
		&t.Slug,
		&t.YesTokenID,
		&t.NoTokenID,
		&t.YesPrice,
		&t.NoPrice,
		&t.IntendedPairs,
		&t.IntendedCost,
		&t.YesShares,
		&t.NoShares,
		&t.YesCost,
		&t.NoCost,
		&status,
		&t.YesOrderStatus,
		&t.NoOrderStatus,
		&t.HedgeRatio,
		&t.ExpectedProfit,
		&t.YesDepth.AtLimit,
		&t.YesDepth.Total,
		&t.NoDepth.AtLimit,
		&t.NoDepth.Total,
		&t.MarketEndTime,
		&t.DryRun,
	)
	if err != nil {
		return nil, err
	}

	t.Asset = types.Asset(asset)
	t.Status = types.ExecutionStatus(status)

	return &t, nil
}

// GetTrade returns the trade with the given ID.
func (s *sqlStore) GetTrade(ctx context.Context, tradeID string) (*types.TradeRecord, error) {
	query := s.rebind(`SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = ?`)

	t, err := scanTrade(s.db.QueryRowContext(ctx, query, tradeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrTradeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}

	return t, nil
}

// GetRecentTrades returns up to limit trades, newest first.
func (s *sqlStore) GetRecentTrades(ctx context.Context, limit int) ([]*types.TradeRecord, error) {
	query := s.rebind(`SELECT ` + tradeColumns + ` FROM trades ORDER BY created_at DESC LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// GetTradesEndingAfter returns trades whose market window ends after cutoff.
func (s *sqlStore) GetTradesEndingAfter(ctx context.Context, cutoff time.Time) ([]*types.TradeRecord, error) {
	query := s.rebind(`SELECT ` + tradeColumns + ` FROM trades WHERE market_end_time > ? ORDER BY created_at ASC`)

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]*types.TradeRecord, error) {
	var trades []*types.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanSettlement(row rowScanner) (*types.SettlementEntry, error) {
	var (
		e           types.SettlementEntry
		asset       string
		outcome     string
		claimedAt   sql.NullTime
		nextAttempt sql.NullTime
	)

	err := row.Scan(
		&e.TradeID,
		&e.TokenID,
		&e.ConditionID,
		&asset,
		&outcome,
		&e.Shares,
		&e.EntryPrice,
		&e.EntryCost,
		&e.MarketEndTime,
		&e.Claimed,
		&claimedAt,
		&e.ClaimProceeds,
		&e.ClaimProfit,
		&e.ClaimAttempts,
		&e.LastError,
		&nextAttempt,
		&e.Abandoned,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Asset = types.Asset(asset)
	e.Outcome = types.OutcomeSide(outcome)
	if claimedAt.Valid {
		t := claimedAt.Time
		e.ClaimedAt = &t
	}
	if nextAttempt.Valid {
		e.NextAttemptAt = nextAttempt.Time
	}

	return &e, nil
}

func collectSettlements(rows *sql.Rows) ([]*types.SettlementEntry, error) {
	var entries []*types.SettlementEntry
	for rows.Next() {
		e, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSettlementsForTrade returns all settlement rows for a trade.
func (s *sqlStore) GetSettlementsForTrade(ctx context.Context, tradeID string) ([]*types.SettlementEntry, error) {
	query := s.rebind(`SELECT ` + settlementColumns + ` FROM settlement_queue WHERE trade_id = ? ORDER BY token_id`)

	rows, err := s.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	return collectSettlements(rows)
}

// GetPendingSettlements returns unclaimed, unabandoned rows.
func (s *sqlStore) GetPendingSettlements(ctx context.Context) ([]*types.SettlementEntry, error) {
	query := s.rebind(`SELECT ` + settlementColumns + ` FROM settlement_queue
		WHERE claimed = ? AND abandoned = ?
		ORDER BY market_end_time ASC`)

	rows, err := s.db.QueryContext(ctx, query, false, false)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	return collectSettlements(rows)
}

// GetClaimableSettlements returns pending rows ready for a claim attempt.
func (s *sqlStore) GetClaimableSettlements(ctx context.Context, now time.Time, resolutionWait time.Duration, maxAttempts int) ([]*types.SettlementEntry, error) {
	// end_time + resolutionWait <= now, rewritten to avoid date math in SQL.
	resolvedBefore := now.Add(-resolutionWait)

	query := s.rebind(`SELECT ` + settlementColumns + ` FROM settlement_queue
		WHERE claimed = ? AND abandoned = ?
		  AND claim_attempts < ?
		  AND market_end_time <= ?
		  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		ORDER BY market_end_time ASC`)

	rows, err := s.db.QueryContext(ctx, query, false, false, maxAttempts, resolvedBefore, now)
	if err != nil {
		return nil, fmt.Errorf("query claimable settlements: %w", err)
	}
	defer rows.Close()

	return collectSettlements(rows)
}

// MarkSettlementClaimed records a successful claim.
func (s *sqlStore) MarkSettlementClaimed(ctx context.Context, tradeID, tokenID string, claimedAt time.Time, proceeds, profit decimal.Decimal) error {
	query := s.rebind(`UPDATE settlement_queue
		SET claimed = ?, claimed_at = ?, claim_proceeds = ?, claim_profit = ?, last_error = ''
		WHERE trade_id = ? AND token_id = ?`)

	res, err := s.db.ExecContext(ctx, query, true, claimedAt, proceeds, profit, tradeID, tokenID)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("mark_claimed").Inc()
		return fmt.Errorf("mark claimed: %w", err)
	}

	StoreWritesTotal.WithLabelValues("settlement_queue").Inc()

	return requireRow(res)
}

// RecordSettlementFailure bumps the attempt counter and schedules the retry.
func (s *sqlStore) RecordSettlementFailure(ctx context.Context, tradeID, tokenID string, attempts int, lastError string, nextAttemptAt time.Time) error {
	query := s.rebind(`UPDATE settlement_queue
		SET claim_attempts = ?, last_error = ?, next_attempt_at = ?
		WHERE trade_id = ? AND token_id = ?`)

	res, err := s.db.ExecContext(ctx, query, attempts, lastError, nextAttemptAt, tradeID, tokenID)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("record_failure").Inc()
		return fmt.Errorf("record settlement failure: %w", err)
	}

	StoreWritesTotal.WithLabelValues("settlement_queue").Inc()

	return requireRow(res)
}

// MarkSettlementAbandoned flags a row as permanently failed.
func (s *sqlStore) MarkSettlementAbandoned(ctx context.Context, tradeID, tokenID string) error {
	query := s.rebind(`UPDATE settlement_queue SET abandoned = ? WHERE trade_id = ? AND token_id = ?`)

	res, err := s.db.ExecContext(ctx, query, true, tradeID, tokenID)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("mark_abandoned").Inc()
		return fmt.Errorf("mark abandoned: %w", err)
	}

	StoreWritesTotal.WithLabelValues("settlement_queue").Inc()

	return requireRow(res)
}

// AdjustSettlementShares overwrites shares and entry cost after a partial
// sell-back.
func (s *sqlStore) AdjustSettlementShares(ctx context.Context, tradeID, tokenID string, shares, cost decimal.Decimal) error {
	query := s.rebind(`UPDATE settlement_queue SET shares = ?, entry_cost = ? WHERE trade_id = ? AND token_id = ?`)

	res, err := s.db.ExecContext(ctx, query, shares, cost, tradeID, tokenID)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("adjust_shares").Inc()
		return fmt.Errorf("adjust settlement shares: %w", err)
	}

	StoreWritesTotal.WithLabelValues("settlement_queue").Inc()

	return requireRow(res)
}

// AppendSettlement inserts one settlement row outside a trade save.
func (s *sqlStore) AppendSettlement(ctx context.Context, e *types.SettlementEntry) error {
	query := s.rebind(`INSERT INTO settlement_queue (` + settlementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var nextAttempt any
	if !e.NextAttemptAt.IsZero() {
		nextAttempt = e.NextAttemptAt
	}

	_, err := s.db.ExecContext(ctx, query,
		e.TradeID,
		e.TokenID,
		e.ConditionID,
		string(e.Asset),
		string(e.Outcome),
		e.Shares,
		e.EntryPrice,
		e.EntryCost,
		e.MarketEndTime,
		e.Claimed,
		e.ClaimedAt,
		e.ClaimProceeds,
		e.ClaimProfit,
		e.ClaimAttempts,
		e.LastError,
		nextAttempt,
		e.Abandoned,
		e.CreatedAt,
	)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("append_settlement").Inc()
		return fmt.Errorf("append settlement row %s: %w", e.Key(), err)
	}

	StoreWritesTotal.WithLabelValues("settlement_queue").Inc()

	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrSettlementNotFound
	}
	return nil
}

// SaveBreakerState upserts the single breaker row.
func (s *sqlStore) SaveBreakerState(ctx context.Context, state *types.CircuitBreakerState) error {
	query := s.rebind(`INSERT INTO circuit_breaker_state (id, level, consecutive_failures, daily_pnl, day_bucket, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			level = excluded.level,
			consecutive_failures = excluded.consecutive_failures,
			daily_pnl = excluded.daily_pnl,
			day_bucket = excluded.day_bucket,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		state.Level.String(),
		state.ConsecutiveFailures,
		state.DailyPnL,
		state.DayBucket,
		state.UpdatedAt,
	)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("save_breaker").Inc()
		return fmt.Errorf("save breaker state: %w", err)
	}

	StoreWritesTotal.WithLabelValues("circuit_breaker_state").Inc()

	return nil
}

// LoadBreakerState returns the persisted breaker state, or (nil, nil) when
// none exists.
func (s *sqlStore) LoadBreakerState(ctx context.Context) (*types.CircuitBreakerState, error) {
	query := s.rebind(`SELECT level, consecutive_failures, daily_pnl, day_bucket, updated_at
		FROM circuit_breaker_state WHERE id = 1`)

	var (
		state    types.CircuitBreakerState
		levelStr string
	)

	err := s.db.QueryRowContext(ctx, query).Scan(
		&levelStr,
		&state.ConsecutiveFailures,
		&state.DailyPnL,
		&state.DayBucket,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}

	level, err := types.ParseBreakerLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}
	state.Level = level

	return &state, nil
}

// SaveLiquiditySnapshot appends a book snapshot.
func (s *sqlStore) SaveLiquiditySnapshot(ctx context.Context, snap *types.LiquiditySnapshot) error {
	query := s.rebind(`INSERT INTO liquidity_snapshots (condition_id, asset, taken_at,
		yes_bid, yes_bid_size, yes_ask, yes_ask_size,
		no_bid, no_bid_size, no_ask, no_ask_size, spread)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		snap.ConditionID,
		string(snap.Asset),
		snap.TakenAt,
		snap.YesBid, snap.YesBidSize, snap.YesAsk, snap.YesAskSize,
		snap.NoBid, snap.NoBidSize, snap.NoAsk, snap.NoAskSize,
		snap.Spread,
	)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("save_snapshot").Inc()
		return fmt.Errorf("save liquidity snapshot: %w", err)
	}

	StoreWritesTotal.WithLabelValues("liquidity_snapshots").Inc()

	return nil
}

// PruneLiquiditySnapshots deletes snapshots taken before cutoff.
func (s *sqlStore) PruneLiquiditySnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	query := s.rebind(`DELETE FROM liquidity_snapshots WHERE taken_at < ?`)

	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		StoreErrorsTotal.WithLabelValues("prune_snapshots").Inc()
		return 0, fmt.Errorf("prune liquidity snapshots: %w", err)
	}

	return res.RowsAffected()
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	s.logger.Info("closing-store")
	return s.db.Close()
}
