package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/pkg/healthprobe"
	"github.com/parlaytech/updown-arb/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakePositions struct{ positions []*types.Position }

func (f *fakePositions) All() []*types.Position { return f.positions }

type fakeBreaker struct{ state types.CircuitBreakerState }

func (f *fakeBreaker) State() types.CircuitBreakerState { return f.state }

type fakeBooks struct {
	markets []*types.Market
	states  map[string]*types.MarketState
}

func (f *fakeBooks) TrackedMarkets() []*types.Market { return f.markets }

func (f *fakeBooks) State(conditionID string) (*types.MarketState, bool) {
	st, ok := f.states[conditionID]
	return st, ok
}

func (f *fakeBooks) Market(conditionID string) (*types.Market, bool) {
	for _, m := range f.markets {
		if m.ConditionID == conditionID {
			return m, true
		}
	}
	return nil, false
}

type fakeTrades struct{ trades []*types.TradeRecord }

func (f *fakeTrades) GetRecentTrades(_ context.Context, limit int) ([]*types.TradeRecord, error) {
	if limit < len(f.trades) {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

func newTestServer(t *testing.T) (*Server, *fakeBooks) {
	t.Helper()

	market := &types.Market{
		Asset:       types.AssetBTC,
		Slug:        "bitcoin-updown-15m-1700000100",
		ConditionID: "0xcond1",
		YesTokenID:  "111",
		NoTokenID:   "222",
		StartTime:   time.Now().UTC(),
		EndTime:     time.Now().UTC().Add(15 * time.Minute),
	}
	books := &fakeBooks{
		markets: []*types.Market{market},
		states: map[string]*types.MarketState{
			"0xcond1": {
				ConditionID: "0xcond1",
				Yes: types.TokenBook{
					Asks: types.BookSide{{Price: d("0.48"), Size: d("100")}},
					Bids: types.BookSide{{Price: d("0.46"), Size: d("50")}},
				},
				No: types.TokenBook{
					Asks: types.BookSide{{Price: d("0.49"), Size: d("80")}},
				},
				LastUpdate: time.Now().UTC(),
				Revision:   7,
			},
		},
	}

	server := New(&Config{
		Port:          "0",
		Logger:        zaptest.NewLogger(t),
		HealthChecker: healthprobe.New(),
		Positions: &fakePositions{positions: []*types.Position{{
			TradeID:     "01TRADE",
			ConditionID: "0xcond1",
			Asset:       types.AssetBTC,
			YesShares:   d("10"),
			NoShares:    d("8"),
			YesAvgCost:  d("0.48"),
			NoAvgCost:   d("0.49"),
		}}},
		Breaker: &fakeBreaker{state: types.CircuitBreakerState{
			Level:               types.LevelWarning,
			ConsecutiveFailures: 3,
			DailyPnL:            d("-12.5"),
			DayBucket:           "2026-08-26",
		}},
		Books: books,
		Trades: &fakeTrades{trades: []*types.TradeRecord{{
			TradeID:     "01TRADE",
			ConditionID: "0xcond1",
			Asset:       types.AssetBTC,
			Status:      types.ExecFullFill,
			YesShares:   d("10"),
			NoShares:    d("10"),
			YesCost:     d("4.8"),
			NoCost:      d("4.9"),
		}}},
	})
	return server, books
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerHealthAndReady(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	assert.Equal(t, http.StatusOK, get(t, server, "/health").Code)
	// Not ready until the app flips the flag.
	assert.Equal(t, http.StatusServiceUnavailable, get(t, server, "/ready").Code)
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	rec := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerPositions(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	rec := get(t, server, "/api/positions")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []positionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "01TRADE", out[0].TradeID)
	assert.Equal(t, "0.8", out[0].HedgeRatio)
}

func TestServerBreaker(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	rec := get(t, server, "/api/breaker")
	require.Equal(t, http.StatusOK, rec.Code)

	var out breakerJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "WARNING", out.Level)
	assert.Equal(t, 3, out.ConsecutiveFailures)
	assert.Equal(t, "-12.5", out.DailyPnL)
}

func TestServerBook(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	rec := get(t, server, "/api/books/0xcond1")
	require.Equal(t, http.StatusOK, rec.Code)

	var out bookJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "bitcoin-updown-15m-1700000100", out.Slug)
	assert.Equal(t, uint64(7), out.Revision)
	assert.Equal(t, "0.03", out.Spread)
	require.Len(t, out.Yes.Asks, 1)
	assert.Equal(t, "0.48", out.Yes.Asks[0].Price)
}

func TestServerBookNotFound(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	rec := get(t, server, "/api/books/0xmissing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerTrades(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	rec := get(t, server, "/api/trades")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []tradeJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "full_fill", out[0].Status)
	assert.Equal(t, "9.7", out[0].ActualCost)

	rec = get(t, server, "/api/trades?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
