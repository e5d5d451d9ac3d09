package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus classifies the joint outcome of a dual-leg execution.
type ExecutionStatus string

const (
	ExecFullFill   ExecutionStatus = "full_fill"
	ExecOneLegOnly ExecutionStatus = "one_leg_only"
	ExecFailed     ExecutionStatus = "failed"
	ExecSimulated  ExecutionStatus = "simulated"
)

// DepthSnapshot captures the book depth for one side just before
// placement, for post-trade analysis.
type DepthSnapshot struct {
	AtLimit decimal.Decimal // depth priced at or better than the limit
	Total   decimal.Decimal // whole side
}

// TradeRecord is the durable record of one dual-leg execution attempt.
// Written through the Store before the result is acted upon; partial
// fills are first-class.
type TradeRecord struct {
	TradeID     string // ULID, sortable by creation time
	CreatedAt   time.Time
	ConditionID string
	Asset       Asset
	Slug        string
	YesTokenID  string
	NoTokenID   string

	// Limit prices, exactly as carried on the opportunity.
	YesPrice decimal.Decimal
	NoPrice  decimal.Decimal

	// Intended pair count and spend versus what actually filled.
	IntendedPairs decimal.Decimal
	IntendedCost  decimal.Decimal
	YesShares     decimal.Decimal
	NoShares      decimal.Decimal
	YesCost       decimal.Decimal
	NoCost        decimal.Decimal

	Status         ExecutionStatus
	YesOrderStatus string
	NoOrderStatus  string
	HedgeRatio     decimal.Decimal
	ExpectedProfit decimal.Decimal

	YesDepth DepthSnapshot
	NoDepth  DepthSnapshot

	MarketEndTime time.Time
	DryRun        bool
}

// ActualCost returns the filled USD spend across both legs.
func (t *TradeRecord) ActualCost() decimal.Decimal {
	return t.YesCost.Add(t.NoCost)
}

// HedgeRatio returns min(yes,no)/max(yes,no) share counts; zero when
// either side is empty.
func HedgeRatio(yesShares, noShares decimal.Decimal) decimal.Decimal {
	if yesShares.IsZero() || noShares.IsZero() {
		return decimal.Zero
	}
	lo, hi := yesShares, noShares
	if lo.GreaterThan(hi) {
		lo, hi = hi, lo
	}
	return lo.DivRound(hi, 6)
}

// Position is an open pair of outcome holdings bound to one market.
// Mutated only by the position manager via rebalance fills.
type Position struct {
	TradeID     string
	ConditionID string
	Asset       Asset
	Slug        string
	YesTokenID  string
	NoTokenID   string

	YesShares  decimal.Decimal
	NoShares   decimal.Decimal
	YesAvgCost decimal.Decimal // per share
	NoAvgCost  decimal.Decimal // per share

	CreatedAt         time.Time
	MarketEndTime     time.Time
	RebalanceAttempts int
}

// HedgeRatio of the position's current holdings.
func (p *Position) HedgeRatio() decimal.Decimal {
	return HedgeRatio(p.YesShares, p.NoShares)
}

// Shares returns the holding for the given side.
func (p *Position) Shares(side OutcomeSide) decimal.Decimal {
	if side == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// AvgCost returns the per-share cost basis for the given side.
func (p *Position) AvgCost(side OutcomeSide) decimal.Decimal {
	if side == OutcomeYes {
		return p.YesAvgCost
	}
	return p.NoAvgCost
}

// ExcessSide returns the side holding more shares and the share surplus
// over the other side. Returns false when the position is balanced.
func (p *Position) ExcessSide() (OutcomeSide, decimal.Decimal, bool) {
	switch p.YesShares.Cmp(p.NoShares) {
	case 1:
		return OutcomeYes, p.YesShares.Sub(p.NoShares), true
	case -1:
		return OutcomeNo, p.NoShares.Sub(p.YesShares), true
	default:
		return "", decimal.Zero, false
	}
}

// TotalCost returns the full USD cost basis of the position.
func (p *Position) TotalCost() decimal.Decimal {
	return p.YesShares.Mul(p.YesAvgCost).Add(p.NoShares.Mul(p.NoAvgCost))
}
