package orderbook

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/types"
)

func testMarket() *types.Market {
	start := time.Now().UTC().Truncate(types.SlotDuration)
	return &types.Market{
		Asset:       types.AssetBTC,
		SlotTS:      start.Unix(),
		Slug:        "btc-updown-15m-1700000100",
		ConditionID: "0xcond1",
		YesTokenID:  "yes-token",
		NoTokenID:   "no-token",
		StartTime:   start,
		EndTime:     start.Add(types.SlotDuration),
	}
}

func newTestTracker(t *testing.T) (*Tracker, chan *types.BookMessage) {
	t.Helper()

	msgChan := make(chan *types.BookMessage, 16)
	tr := New(&Config{
		MessageChannel: msgChan,
		StaleThreshold: 10 * time.Second,
		SweepInterval:  time.Hour, // sweeps driven manually in tests
		Logger:         zaptest.NewLogger(t),
	})
	return tr, msgChan
}

func bookMsg(assetID string, bids, asks [][2]string) *types.BookMessage {
	msg := &types.BookMessage{EventType: "book", AssetID: assetID}
	for _, b := range bids {
		msg.Bids = append(msg.Bids, types.PriceLevel{Price: b[0], Size: b[1]})
	}
	for _, a := range asks {
		msg.Asks = append(msg.Asks, types.PriceLevel{Price: a[0], Size: a[1]})
	}
	return msg
}

func TestTracker_SnapshotAndState(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Track(testMarket())

	err := tr.handleMessage(bookMsg("yes-token",
		[][2]string{{"0.45", "100"}, {"0.47", "50"}},
		[][2]string{{"0.52", "30"}, {"0.49", "80"}}))
	require.NoError(t, err)

	state, ok := tr.State("0xcond1")
	require.True(t, ok)
	assert.Equal(t, uint64(1), state.Revision)

	best, ok := state.Yes.Bids.Best()
	require.True(t, ok)
	assert.Equal(t, "0.47", best.Price.String())

	best, ok = state.Yes.Asks.Best()
	require.True(t, ok)
	assert.Equal(t, "0.49", best.Price.String())
	assert.Equal(t, "80", best.Size.String())

	// NO side untouched.
	_, ok = state.No.Asks.Best()
	assert.False(t, ok)
}

func TestTracker_PriceChangeDeltas(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Track(testMarket())

	require.NoError(t, tr.handleMessage(bookMsg("no-token",
		[][2]string{{"0.44", "200"}},
		[][2]string{{"0.50", "60"}, {"0.51", "40"}})))

	// Improve the best ask, remove the old one, touch a bid.
	msg := &types.BookMessage{
		EventType: "price_change",
		AssetID:   "no-token",
		Changes: []types.BookChange{
			{Price: "0.49", Size: "25", Side: "SELL"},
			{Price: "0.50", Size: "0", Side: "SELL"},
			{Price: "0.44", Size: "150", Side: "BUY"},
		},
	}
	require.NoError(t, tr.handleMessage(msg))

	state, ok := tr.State("0xcond1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), state.Revision)

	best, ok := state.No.Asks.Best()
	require.True(t, ok)
	assert.Equal(t, "0.49", best.Price.String())
	assert.Equal(t, "25", best.Size.String())

	// 0.50 removed, 0.51 remains behind 0.49.
	assert.Len(t, state.No.Asks, 2)
	assert.Equal(t, "0.51", state.No.Asks[1].Price.String())

	best, ok = state.No.Bids.Best()
	require.True(t, ok)
	assert.Equal(t, "150", best.Size.String())
}

func TestTracker_UnknownTokenIgnored(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Track(testMarket())

	require.NoError(t, tr.handleMessage(bookMsg("other-token",
		[][2]string{{"0.45", "100"}}, nil)))

	state, ok := tr.State("0xcond1")
	require.True(t, ok)
	assert.Equal(t, uint64(0), state.Revision)
}

func TestTracker_SpreadAcrossTokens(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Track(testMarket())

	require.NoError(t, tr.handleMessage(bookMsg("yes-token", nil, [][2]string{{"0.48", "100"}})))
	require.NoError(t, tr.handleMessage(bookMsg("no-token", nil, [][2]string{{"0.49", "100"}})))

	state, ok := tr.State("0xcond1")
	require.True(t, ok)

	spread, valid := state.Spread()
	require.True(t, valid)
	assert.Equal(t, "0.03", spread.String())
}

func TestTracker_SeedOnlyBeforeLiveData(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Track(testMarket())

	seed := &types.TokenBook{
		Asks: types.BookSide{{Price: decimal.RequireFromString("0.50"), Size: decimal.RequireFromString("10")}},
	}
	tr.Seed("0xcond1", types.OutcomeYes, seed)

	state, _ := tr.State("0xcond1")
	best, ok := state.Yes.Asks.Best()
	require.True(t, ok)
	assert.Equal(t, "0.5", best.Price.String())

	// Live data arrives; a later seed must not clobber it.
	require.NoError(t, tr.handleMessage(bookMsg("yes-token", nil, [][2]string{{"0.48", "100"}})))
	tr.Seed("0xcond1", types.OutcomeYes, seed)

	state, _ = tr.State("0xcond1")
	best, _ = state.Yes.Asks.Best()
	assert.Equal(t, "0.48", best.Price.String())
}

func TestTracker_StaleSweepAnnouncesOnce(t *testing.T) {
	msgChan := make(chan *types.BookMessage, 16)
	bus := events.NewBus(zaptest.NewLogger(t))
	sub := bus.Subscribe("test", 8)

	tr := New(&Config{
		MessageChannel: msgChan,
		Bus:            bus,
		StaleThreshold: 10 * time.Second,
		SweepInterval:  time.Hour,
		Logger:         zaptest.NewLogger(t),
	})
	tr.Track(testMarket())

	// Never-updated state: no announcement.
	tr.sweepOnce(time.Now())
	assert.Empty(t, sub)

	require.NoError(t, tr.handleMessage(bookMsg("yes-token", nil, [][2]string{{"0.48", "100"}})))

	// Fresh state: no announcement.
	tr.sweepOnce(time.Now())
	assert.Empty(t, sub)

	// Past the threshold: exactly one announcement per episode.
	later := time.Now().Add(11 * time.Second)
	tr.sweepOnce(later)
	tr.sweepOnce(later.Add(time.Second))

	evt := <-sub
	assert.Equal(t, events.TypeMarketStale, evt.Type)
	assert.Equal(t, "0xcond1", evt.ConditionID)
	assert.Empty(t, sub)

	// A fresh update re-arms the announcement.
	require.NoError(t, tr.handleMessage(bookMsg("yes-token", nil, [][2]string{{"0.47", "100"}})))
	tr.sweepOnce(time.Now().Add(20 * time.Second))
	assert.Len(t, sub, 1)
}

func TestTracker_InvalidateAll(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Track(testMarket())

	require.NoError(t, tr.handleMessage(bookMsg("yes-token", nil, [][2]string{{"0.48", "100"}})))

	tr.InvalidateAll()

	state, ok := tr.State("0xcond1")
	require.True(t, ok)
	assert.True(t, state.LastUpdate.IsZero())
	// Revision is preserved; only freshness is reset.
	assert.Equal(t, uint64(1), state.Revision)
}

func TestTracker_Untrack(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Track(testMarket())
	tr.Untrack("0xcond1")

	_, ok := tr.State("0xcond1")
	assert.False(t, ok)

	// Messages for the removed tokens are ignored.
	require.NoError(t, tr.handleMessage(bookMsg("yes-token", nil, [][2]string{{"0.48", "100"}})))
	assert.Empty(t, tr.TrackedMarkets())
}

func TestTracker_UpdateNotifications(t *testing.T) {
	tr, msgChan := newTestTracker(t)
	tr.Track(testMarket())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.Start(ctx))

	msgChan <- bookMsg("yes-token", nil, [][2]string{{"0.48", "100"}})

	select {
	case conditionID := <-tr.UpdateChan():
		assert.Equal(t, "0xcond1", conditionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no update notification received")
	}

	cancel()
	require.NoError(t, tr.Close())
}

func TestApplyLevel_Ordering(t *testing.T) {
	t.Parallel()

	lvl := func(p, s string) types.Level {
		return types.Level{Price: decimal.RequireFromString(p), Size: decimal.RequireFromString(s)}
	}

	var asks types.BookSide
	asks = applyLevel(asks, lvl("0.52", "10"), true)
	asks = applyLevel(asks, lvl("0.49", "20"), true)
	asks = applyLevel(asks, lvl("0.50", "30"), true)

	require.Len(t, asks, 3)
	assert.Equal(t, "0.49", asks[0].Price.String())
	assert.Equal(t, "0.5", asks[1].Price.String())
	assert.Equal(t, "0.52", asks[2].Price.String())

	var bids types.BookSide
	bids = applyLevel(bids, lvl("0.44", "10"), false)
	bids = applyLevel(bids, lvl("0.47", "20"), false)
	bids = applyLevel(bids, lvl("0.45", "30"), false)

	require.Len(t, bids, 3)
	assert.Equal(t, "0.47", bids[0].Price.String())
	assert.Equal(t, "0.45", bids[1].Price.String())
	assert.Equal(t, "0.44", bids[2].Price.String())

	// Removing an absent level is a no-op.
	bids = applyLevel(bids, lvl("0.46", "0"), false)
	assert.Len(t, bids, 3)
}
