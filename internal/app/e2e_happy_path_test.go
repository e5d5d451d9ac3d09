package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/internal/arbitrage"
	"github.com/parlaytech/updown-arb/internal/circuitbreaker"
	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/internal/execution"
	"github.com/parlaytech/updown-arb/internal/orderbook"
	"github.com/parlaytech/updown-arb/internal/position"
	"github.com/parlaytech/updown-arb/internal/risk"
	"github.com/parlaytech/updown-arb/internal/sizing"
	"github.com/parlaytech/updown-arb/internal/storage"
	"github.com/parlaytech/updown-arb/internal/testutil"
	"github.com/parlaytech/updown-arb/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// harness is the full detection-to-execution chain on fakes: a manual
// feed channel in, a mock exchange and in-memory store out.
type harness struct {
	feed      chan *types.BookMessage
	tracker   *orderbook.Tracker
	detector  *arbitrage.Detector
	positions *position.Manager
	ledger    *risk.WindowLedger
	store     *storage.MemoryStore
	exchange  *testutil.MockExchange
	pipe      *pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	h := &harness{
		feed:      make(chan *types.BookMessage, 16),
		store:     storage.NewMemoryStore(logger),
		exchange:  testutil.NewMockExchange(),
		positions: position.NewManager(logger),
		ledger:    risk.NewWindowLedger(d("50")),
	}
	bus := events.NewBus(logger)

	h.tracker = orderbook.New(&orderbook.Config{
		MessageChannel: h.feed,
		Bus:            bus,
		StaleThreshold: 10 * time.Second,
		Logger:         logger,
	})
	h.detector = arbitrage.New(&arbitrage.Config{
		Books:          h.tracker,
		UpdateChannel:  h.tracker.UpdateChan(),
		MinSpreadUSD:   d("0.02"),
		StaleThreshold: 10 * time.Second,
		QueueCap:       8,
		Bus:            bus,
		Logger:         logger,
	})
	breaker := circuitbreaker.New(&circuitbreaker.Config{
		Store:           h.store,
		Bus:             bus,
		WarnFailures:    3,
		CautionFailures: 4,
		HaltFailures:    5,
		WarnLossUSD:     d("50"),
		CautionLossUSD:  d("75"),
		HaltLossUSD:     d("100"),
		Logger:          logger,
	})
	gate := risk.NewGate(&risk.GateConfig{
		Breaker:          breaker,
		Positions:        h.positions,
		Balance:          staticBalance{amount: d("1000")},
		Ledger:           h.ledger,
		Bus:              bus,
		BalanceSizingPct: d("0.25"),
		MaxTradeSizeUSD:  d("25"),
		MinTradeSizeUSD:  d("3"),
		Logger:           logger,
	})
	sizer := sizing.New(&sizing.Config{
		MaxLiquidityPct:     d("0.5"),
		MinTradeSizeUSD:     d("3"),
		SizingDecimalPlaces: 2,
		Logger:              logger,
	})
	executor := execution.New(&execution.Config{
		Exchange:    h.exchange,
		Store:       h.store,
		Books:       h.tracker,
		Breaker:     breaker,
		Bus:         bus,
		FillTimeout: time.Second,
		Logger:      logger,
	})

	h.pipe = &pipeline{
		opportunities: h.detector.Opportunities(),
		gate:          gate,
		sizer:         sizer,
		executor:      executor,
		books:         h.tracker,
		positions:     h.positions,
		ledger:        h.ledger,
		logger:        logger,
	}
	return h
}

func (h *harness) start(t *testing.T, ctx context.Context) {
	t.Helper()
	require.NoError(t, h.tracker.Start(ctx))
	require.NoError(t, h.detector.Start(ctx))
	go h.pipe.run(ctx)
}

func snapshot(tokenID, askPrice, askSize string) *types.BookMessage {
	return &types.BookMessage{
		EventType: "book",
		AssetID:   tokenID,
		Asks:      []types.PriceLevel{{Price: askPrice, Size: askSize}},
		Bids:      []types.PriceLevel{{Price: "0.40", Size: "100"}},
	}
}

// A book crossing the spread threshold flows all the way through:
// detection, admission, sizing, dual-leg execution, a durable trade
// with settlement rows, and a registered hedged position.
func TestEndToEndHappyPath(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	market := testutil.Market(types.AssetBTC, "0xcond1")
	h.tracker.Track(market)

	h.feed <- snapshot(market.YesTokenID, "0.48", "200")
	h.feed <- snapshot(market.NoTokenID, "0.49", "200")

	var trades []*types.TradeRecord
	require.Eventually(t, func() bool {
		var err error
		trades, err = h.store.GetRecentTrades(ctx, 10)
		return err == nil && len(trades) == 1
	}, 2*time.Second, 10*time.Millisecond)

	trade := trades[0]
	assert.Equal(t, types.ExecFullFill, trade.Status)
	assert.Equal(t, "0xcond1", trade.ConditionID)
	assert.Equal(t, "1", trade.HedgeRatio.String())
	assert.True(t, trade.YesShares.Equal(trade.NoShares))
	// Budget 25 at pair cost 0.97 buys 25.77 pairs.
	assert.Equal(t, "25.77", trade.YesShares.String())

	rows, err := h.store.GetSettlementsForTrade(ctx, trade.TradeID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	pos, ok := h.positions.Get("0xcond1")
	require.True(t, ok)
	assert.Equal(t, "1", pos.HedgeRatio().String())

	// The window ledger carries exactly the executed cost.
	assert.True(t, h.ledger.Used("0xcond1").Equal(trade.ActualCost()),
		"ledger %s != trade cost %s", h.ledger.Used("0xcond1"), trade.ActualCost())
}

// A second opportunity on the same market is not re-entered while the
// position is open.
func TestEndToEndDuplicateEntryBlocked(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	market := testutil.Market(types.AssetETH, "0xcond2")
	h.tracker.Track(market)

	h.feed <- snapshot(market.YesTokenID, "0.48", "200")
	h.feed <- snapshot(market.NoTokenID, "0.49", "200")

	require.Eventually(t, func() bool {
		trades, err := h.store.GetRecentTrades(ctx, 10)
		return err == nil && len(trades) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Fresh snapshots bump the revision and re-trigger detection.
	h.feed <- snapshot(market.YesTokenID, "0.47", "200")
	h.feed <- snapshot(market.NoTokenID, "0.49", "200")

	time.Sleep(200 * time.Millisecond)
	trades, err := h.store.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	assert.Len(t, h.exchange.Placed(), 2)
}

// An unfillable book yields a one-legged trade; the ledger keeps only
// the filled leg's cost and the lopsided position is registered for the
// rebalancer.
func TestEndToEndOneLeggedEntry(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(t, ctx)

	market := testutil.Market(types.AssetSOL, "0xcond3")
	h.tracker.Track(market)
	h.exchange.Script(market.NoTokenID, types.Failed(types.ClobErrFOKNotFilled))

	h.feed <- snapshot(market.YesTokenID, "0.48", "200")
	h.feed <- snapshot(market.NoTokenID, "0.49", "200")

	var trades []*types.TradeRecord
	require.Eventually(t, func() bool {
		var err error
		trades, err = h.store.GetRecentTrades(ctx, 10)
		return err == nil && len(trades) == 1
	}, 2*time.Second, 10*time.Millisecond)

	trade := trades[0]
	assert.Equal(t, types.ExecOneLegOnly, trade.Status)
	assert.True(t, trade.NoShares.IsZero())

	pos, ok := h.positions.Get("0xcond3")
	require.True(t, ok)
	side, _, hasExcess := pos.ExcessSide()
	require.True(t, hasExcess)
	assert.Equal(t, types.OutcomeYes, side)

	assert.True(t, h.ledger.Used("0xcond3").Equal(trade.YesCost))

	rows, err := h.store.GetSettlementsForTrade(ctx, trade.TradeID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.OutcomeYes, rows[0].Outcome)
}
