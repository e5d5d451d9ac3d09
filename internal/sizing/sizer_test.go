package sizing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestSizer(t *testing.T) *Sizer {
	t.Helper()

	return New(&Config{
		MaxLiquidityPct:     d("0.50"),
		MinTradeSizeUSD:     d("3"),
		SizingDecimalPlaces: 2,
		Logger:              zaptest.NewLogger(t),
	})
}

func sizerOpportunity(yesAsk, yesSize, noAsk, noSize string) *types.Opportunity {
	start := time.Now().UTC().Truncate(types.SlotDuration)
	market := &types.Market{
		Asset:       types.AssetSOL,
		SlotTS:      start.Unix(),
		Slug:        "sol-updown-15m-1700000100",
		ConditionID: "0xcond1",
		YesTokenID:  "yes-token",
		NoTokenID:   "no-token",
		StartTime:   start,
		EndTime:     start.Add(types.SlotDuration),
	}
	return types.NewOpportunity(market,
		types.Level{Price: d(yesAsk), Size: d(yesSize)},
		types.Level{Price: d(noAsk), Size: d(noSize)},
		1, time.Now().UTC())
}

func TestSizer_EqualShares(t *testing.T) {
	t.Parallel()

	s := newTestSizer(t)
	opp := sizerOpportunity("0.48", "1000", "0.49", "1000")

	pair, err := s.Size(opp, d("25"), nil)
	require.NoError(t, err)

	// 25 / 0.97 = 25.773..., truncated to 25.77.
	assert.Equal(t, "25.77", pair.NumPairs.String())
	assert.Equal(t, pair.Yes.Size, pair.No.Size)
	assert.Equal(t, "0.48", pair.Yes.Price.String())
	assert.Equal(t, "0.49", pair.No.Price.String())
	assert.Equal(t, types.OrderFOK, pair.Yes.Type)
	assert.Equal(t, types.SideBuy, pair.No.Side)
	assert.Equal(t, "yes-token", pair.Yes.TokenID)
	assert.Equal(t, "no-token", pair.No.TokenID)

	// Truncation keeps the spend inside the budget.
	assert.True(t, pair.TotalCost().LessThanOrEqual(d("25")))
}

func TestSizer_TruncatesNeverRounds(t *testing.T) {
	t.Parallel()

	s := newTestSizer(t)
	opp := sizerOpportunity("0.50", "1000", "0.49", "1000")

	// 10 / 0.99 = 10.1010..., must become 10.10 not 10.11.
	pair, err := s.Size(opp, d("10"), nil)
	require.NoError(t, err)
	assert.Equal(t, "10.1", pair.NumPairs.String())
}

func TestSizer_LiquidityCap(t *testing.T) {
	t.Parallel()

	s := newTestSizer(t)
	// Only 20 shares on the YES ask: cap is 50% of that.
	opp := sizerOpportunity("0.48", "20", "0.49", "1000")

	pair, err := s.Size(opp, d("25"), nil)
	require.NoError(t, err)
	assert.Equal(t, "10", pair.NumPairs.String())
}

func TestSizer_DepthFromBookState(t *testing.T) {
	t.Parallel()

	s := newTestSizer(t)
	opp := sizerOpportunity("0.48", "10", "0.49", "1000")

	// The full book has more depth at or better than the limit than the
	// top level alone: 10 @ 0.48 plus 30 @ 0.47.
	state := &types.MarketState{
		Yes: types.TokenBook{Asks: types.BookSide{
			{Price: d("0.47"), Size: d("30")},
			{Price: d("0.48"), Size: d("10")},
		}},
		No: types.TokenBook{Asks: types.BookSide{
			{Price: d("0.49"), Size: d("1000")},
		}},
		LastUpdate: time.Now(),
	}

	pair, err := s.Size(opp, d("25"), state)
	require.NoError(t, err)
	// 50% of 40 shares = 20 pairs.
	assert.Equal(t, "20", pair.NumPairs.String())
}

func TestSizer_RejectsBelowMinLeg(t *testing.T) {
	t.Parallel()

	s := newTestSizer(t)
	// 50% of 10 = 5 pairs; YES leg notional 5 * 0.48 = $2.40 < $3.
	opp := sizerOpportunity("0.48", "10", "0.49", "10")

	_, err := s.Size(opp, d("25"), nil)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSizer_RejectsEmptyDepth(t *testing.T) {
	t.Parallel()

	s := newTestSizer(t)
	opp := sizerOpportunity("0.48", "0", "0.49", "100")

	_, err := s.Size(opp, d("25"), nil)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestSizer_SplitTranches(t *testing.T) {
	t.Parallel()

	s := newTestSizer(t)

	tranches := s.SplitTranches(d("25.77"), 3)
	require.Len(t, tranches, 3)
	assert.Equal(t, "8.59", tranches[0].String())
	assert.Equal(t, "8.59", tranches[1].String())
	assert.Equal(t, "8.59", tranches[2].String())

	// Uneven split: the remainder lands in the last tranche.
	tranches = s.SplitTranches(d("10"), 3)
	require.Len(t, tranches, 3)
	assert.Equal(t, "3.33", tranches[0].String())
	assert.Equal(t, "3.34", tranches[2].String())

	total := decimal.Zero
	for _, tr := range tranches {
		total = total.Add(tr)
	}
	assert.Equal(t, "10", total.String())

	// Degenerate cases collapse to a single tranche.
	assert.Len(t, s.SplitTranches(d("5"), 1), 1)
	assert.Len(t, s.SplitTranches(d("0.01"), 3), 1)
}
