package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// mockStore builds a sqlStore over sqlmock with the postgres rebind, so
// the expectations below assert the $n placeholder rewriting too.
func mockStore(t *testing.T) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &sqlStore{
		db:     db,
		logger: zaptest.NewLogger(t),
		rebind: rebindDollar,
	}, mock
}

func TestRebindDollar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SELECT 1", rebindDollar("SELECT 1"))
	assert.Equal(t,
		"UPDATE x SET a = $1, b = $2 WHERE c = $3",
		rebindDollar("UPDATE x SET a = ?, b = ? WHERE c = ?"))
}

func TestPostgresSaveTradeWithSettlementsTransaction(t *testing.T) {
	store, mock := mockStore(t)

	end := time.Now().UTC().Add(10 * time.Minute)
	trade := &types.TradeRecord{
		TradeID:       "01TRADE",
		CreatedAt:     time.Now().UTC(),
		ConditionID:   "0xcond",
		Asset:         types.AssetBTC,
		Slug:          "btc-updown-15m-test",
		YesTokenID:    "yes-token",
		NoTokenID:     "no-token",
		YesPrice:      decimal.RequireFromString("0.48"),
		NoPrice:       decimal.RequireFromString("0.49"),
		YesShares:     decimal.RequireFromString("10"),
		NoShares:      decimal.RequireFromString("10"),
		YesCost:       decimal.RequireFromString("4.8"),
		NoCost:        decimal.RequireFromString("4.9"),
		Status:        types.ExecFullFill,
		HedgeRatio:    decimal.NewFromInt(1),
		MarketEndTime: end,
	}
	entries := []*types.SettlementEntry{
		{TradeID: "01TRADE", TokenID: "yes-token", Outcome: types.OutcomeYes, MarketEndTime: end},
		{TradeID: "01TRADE", TokenID: "no-token", Outcome: types.OutcomeNo, MarketEndTime: end},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trades`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO settlement_queue`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO settlement_queue`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveTradeWithSettlements(context.Background(), trade, entries))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveTradeRollsBackOnSettlementError(t *testing.T) {
	store, mock := mockStore(t)

	end := time.Now().UTC()
	trade := &types.TradeRecord{TradeID: "01TRADE", MarketEndTime: end}
	entries := []*types.SettlementEntry{
		{TradeID: "01TRADE", TokenID: "yes-token", MarketEndTime: end},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trades`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO settlement_queue`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.SaveTradeWithSettlements(context.Background(), trade, entries)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkSettlementClaimed(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec(`UPDATE settlement_queue`).
		WithArgs(true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "01TRADE", "yes-token").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkSettlementClaimed(context.Background(), "01TRADE", "yes-token",
		time.Now().UTC(), decimal.RequireFromString("9.9"), decimal.RequireFromString("0.2"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkSettlementClaimedUnknownRow(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec(`UPDATE settlement_queue`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkSettlementClaimed(context.Background(), "missing", "tok",
		time.Now().UTC(), decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, types.ErrSettlementNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetClaimableSettlementsQuery(t *testing.T) {
	store, mock := mockStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wait := 10 * time.Minute
	end := now.Add(-time.Hour)

	columns := []string{
		"trade_id", "token_id", "condition_id", "asset", "outcome",
		"shares", "entry_price", "entry_cost", "market_end_time", "claimed",
		"claimed_at", "claim_proceeds", "claim_profit", "claim_attempts",
		"last_error", "next_attempt_at", "abandoned", "created_at",
	}
	rows := sqlmock.NewRows(columns).AddRow(
		"01TRADE", "yes-token", "0xcond", "BTC", "YES",
		"10", "0.48", "4.8", end, false,
		nil, "0", "0", 1,
		"timeout", nil, false, end,
	)

	mock.ExpectQuery(`SELECT .+ FROM settlement_queue`).
		WithArgs(false, false, 5, now.Add(-wait), now).
		WillReturnRows(rows)

	entries, err := store.GetClaimableSettlements(context.Background(), now, wait, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "yes-token", entries[0].TokenID)
	assert.Equal(t, types.AssetBTC, entries[0].Asset)
	assert.Equal(t, 1, entries[0].ClaimAttempts)
	assert.True(t, entries[0].NextAttemptAt.IsZero())
}

func TestPostgresLoadBreakerStateEmpty(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM circuit_breaker_state`).
		WillReturnRows(sqlmock.NewRows([]string{"level", "consecutive_failures", "daily_pnl", "day_bucket", "updated_at"}))

	state, err := store.LoadBreakerState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}
