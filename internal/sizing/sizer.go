// Package sizing converts an admitted opportunity and budget into a
// concrete equal-share order pair, bounded by visible book depth.
package sizing

import (
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// ErrInsufficientLiquidity means the sized pair would be too small to
// place after depth capping.
var ErrInsufficientLiquidity = errors.New("insufficient liquidity")

// OrderPair is the two FOK BUY legs of one arbitrage entry. Both legs
// carry the same share count, so the $1.00 settlement payout is
// guaranteed regardless of outcome.
type OrderPair struct {
	Yes      types.Order
	No       types.Order
	NumPairs decimal.Decimal
}

// TotalCost is the USD spend across both legs.
func (p *OrderPair) TotalCost() decimal.Decimal {
	return p.Yes.Notional().Add(p.No.Notional())
}

// Sizer computes order pairs from budgets and book depth.
type Sizer struct {
	maxLiquidityPct decimal.Decimal
	minTradeUSD     decimal.Decimal
	decimalPlaces   int32
	logger          *zap.Logger
}

// Config holds sizer parameters.
type Config struct {
	MaxLiquidityPct     decimal.Decimal
	MinTradeSizeUSD     decimal.Decimal
	SizingDecimalPlaces int32
	Logger              *zap.Logger
}

// New creates a sizer.
func New(cfg *Config) *Sizer {
	return &Sizer{
		maxLiquidityPct: cfg.MaxLiquidityPct,
		minTradeUSD:     cfg.MinTradeSizeUSD,
		decimalPlaces:   cfg.SizingDecimalPlaces,
		logger:          cfg.Logger,
	}
}

// Size produces the order pair for an opportunity under the given
// budget. Share counts are truncated (never rounded up) so the pair can
// never exceed the budget, and capped so neither leg consumes more than
// the configured fraction of depth at or better than its limit price.
func (s *Sizer) Size(opp *types.Opportunity, budget decimal.Decimal, state *types.MarketState) (*OrderPair, error) {
	costPerPair := opp.PairCost()
	if !costPerPair.IsPositive() {
		return nil, ErrInsufficientLiquidity
	}

	numPairs := budget.Div(costPerPair).Truncate(s.decimalPlaces)

	yesDepth, noDepth := s.depths(opp, state)
	yesCap := yesDepth.Mul(s.maxLiquidityPct).Truncate(s.decimalPlaces)
	noCap := noDepth.Mul(s.maxLiquidityPct).Truncate(s.decimalPlaces)

	capped := decimal.Min(numPairs, yesCap, noCap)
	if capped.LessThan(numPairs) {
		LiquidityCappedTotal.Inc()
		s.logger.Debug("pair-count-capped-by-depth",
			zap.String("slug", opp.Market.Slug),
			zap.String("budget-pairs", numPairs.String()),
			zap.String("capped-pairs", capped.String()))
		numPairs = capped
	}

	if !numPairs.IsPositive() {
		SizingsTotal.WithLabelValues("insufficient_liquidity").Inc()
		return nil, ErrInsufficientLiquidity
	}

	pair := &OrderPair{
		Yes: types.Order{
			TokenID: opp.Market.YesTokenID,
			Side:    types.SideBuy,
			Price:   opp.YesAsk,
			Size:    numPairs,
			Type:    types.OrderFOK,
		},
		No: types.Order{
			TokenID: opp.Market.NoTokenID,
			Side:    types.SideBuy,
			Price:   opp.NoAsk,
			Size:    numPairs,
			Type:    types.OrderFOK,
		},
		NumPairs: numPairs,
	}

	if pair.Yes.Notional().LessThan(s.minTradeUSD) || pair.No.Notional().LessThan(s.minTradeUSD) {
		SizingsTotal.WithLabelValues("below_min_leg").Inc()
		return nil, ErrInsufficientLiquidity
	}

	SizingsTotal.WithLabelValues("sized").Inc()
	PairCount.Observe(numPairs.InexactFloat64())

	return pair, nil
}

// depths returns spendable ask depth at or better than each limit
// price. With live state the full book is consulted; otherwise the
// opportunity's top-of-book sizes bound the pair.
func (s *Sizer) depths(opp *types.Opportunity, state *types.MarketState) (yes, no decimal.Decimal) {
	if state == nil {
		return opp.YesAskSize, opp.NoAskSize
	}
	return state.Yes.Asks.DepthAtOrBetter(opp.YesAsk, true),
		state.No.Asks.DepthAtOrBetter(opp.NoAsk, true)
}

// SplitTranches divides a pair count into n tranches for gradual entry.
// Every tranche is truncated to the sizing precision; the remainder
// lands in the final tranche so the total is preserved exactly.
func (s *Sizer) SplitTranches(numPairs decimal.Decimal, n int) []decimal.Decimal {
	if n <= 1 || !numPairs.IsPositive() {
		return []decimal.Decimal{numPairs}
	}

	per := numPairs.Div(decimal.NewFromInt(int64(n))).Truncate(s.decimalPlaces)
	if !per.IsPositive() {
		return []decimal.Decimal{numPairs}
	}

	tranches := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		tranches[i] = per
		allocated = allocated.Add(per)
	}
	tranches[n-1] = numPairs.Sub(allocated)

	return tranches
}
