package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEntry is one filled token side awaiting claim after market
// resolution. Rows are keyed (trade_id, token_id), appended when the
// trade is recorded and never deleted; claimed flips to true exactly once.
type SettlementEntry struct {
	TradeID     string
	TokenID     string
	ConditionID string
	Asset       Asset
	Outcome     OutcomeSide

	Shares     decimal.Decimal
	EntryPrice decimal.Decimal // per share
	EntryCost  decimal.Decimal // USD

	MarketEndTime time.Time

	Claimed       bool
	ClaimedAt     *time.Time
	ClaimProceeds decimal.Decimal
	ClaimProfit   decimal.Decimal

	ClaimAttempts int
	LastError     string
	NextAttemptAt time.Time
	Abandoned     bool

	CreatedAt time.Time
}

// Key uniquely identifies the entry.
func (e *SettlementEntry) Key() string {
	return fmt.Sprintf("%s:%s", e.TradeID, e.TokenID)
}

// ClaimableAt returns the earliest time a claim may be attempted, given
// the configured post-resolution wait.
func (e *SettlementEntry) ClaimableAt(resolutionWait time.Duration) time.Time {
	at := e.MarketEndTime.Add(resolutionWait)
	if e.NextAttemptAt.After(at) {
		return e.NextAttemptAt
	}
	return at
}

// LiquiditySnapshot is a periodic record of top-of-book state for one
// tracked market, kept for offline spread analysis.
type LiquiditySnapshot struct {
	ConditionID string
	Asset       Asset
	TakenAt     time.Time

	YesBid     decimal.Decimal
	YesBidSize decimal.Decimal
	YesAsk     decimal.Decimal
	YesAskSize decimal.Decimal
	NoBid      decimal.Decimal
	NoBidSize  decimal.Decimal
	NoAsk      decimal.Decimal
	NoAskSize  decimal.Decimal

	Spread decimal.Decimal // 1 - yes_ask - no_ask
}
