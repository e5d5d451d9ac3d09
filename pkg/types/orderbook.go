package types

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price level from the streaming feed.
// Prices and sizes arrive as decimal strings.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookMessage is a message from the market data WebSocket.
// event_type is "book" for full snapshots and "price_change" for deltas.
type BookMessage struct {
	EventType string       `json:"event_type"`
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"` // condition id
	Timestamp int64        `json:"-"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Changes   []BookChange `json:"changes"`
}

// BookChange is a single level delta inside a price_change message.
type BookChange struct {
	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"` // BUY (bid) or SELL (ask)
}

// UnmarshalJSON handles the timestamp field, which the feed sends as a
// string of epoch milliseconds.
func (m *BookMessage) UnmarshalJSON(data []byte) error {
	type alias BookMessage
	raw := struct {
		*alias
		Timestamp string `json:"timestamp"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Timestamp != "" {
		ts, err := strconv.ParseInt(raw.Timestamp, 10, 64)
		if err == nil {
			m.Timestamp = ts
		}
	}

	return nil
}

// Level is a parsed price level with exact decimal arithmetic.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ParseLevel converts a wire level. Both fields must be valid decimals.
func ParseLevel(pl PriceLevel) (Level, error) {
	price, err := decimal.NewFromString(pl.Price)
	if err != nil {
		return Level{}, err
	}
	size, err := decimal.NewFromString(pl.Size)
	if err != nil {
		return Level{}, err
	}
	return Level{Price: price, Size: size}, nil
}

// BookSide is an ordered sequence of levels: bids descending by price,
// asks ascending.
type BookSide []Level

// Best returns the top level, if any.
func (s BookSide) Best() (Level, bool) {
	if len(s) == 0 {
		return Level{}, false
	}
	return s[0], true
}

// DepthAtOrBetter sums sizes across all levels priced at or better than
// limit: at-or-below for asks, at-or-above for bids.
func (s BookSide) DepthAtOrBetter(limit decimal.Decimal, isAsk bool) decimal.Decimal {
	depth := decimal.Zero
	for _, lvl := range s {
		if isAsk && lvl.Price.GreaterThan(limit) {
			break
		}
		if !isAsk && lvl.Price.LessThan(limit) {
			break
		}
		depth = depth.Add(lvl.Size)
	}
	return depth
}

// TotalDepth sums sizes across all levels.
func (s BookSide) TotalDepth() decimal.Decimal {
	depth := decimal.Zero
	for _, lvl := range s {
		depth = depth.Add(lvl.Size)
	}
	return depth
}

// Clone returns an independent copy of the side.
func (s BookSide) Clone() BookSide {
	if s == nil {
		return nil
	}
	out := make(BookSide, len(s))
	copy(out, s)
	return out
}

// TokenBook holds both sides of one outcome token's book.
type TokenBook struct {
	Bids BookSide
	Asks BookSide
}

// MarketState is the latest order-book state for one market: both sides
// of both outcome tokens, plus freshness tracking. Revision increments
// on every applied update so downstream consumers can deduplicate.
type MarketState struct {
	ConditionID string
	Yes         TokenBook
	No          TokenBook
	LastUpdate  time.Time
	Revision    uint64
}

// YesAsk returns the best ask of the YES token.
func (st *MarketState) YesAsk() (Level, bool) {
	return st.Yes.Asks.Best()
}

// NoAsk returns the best ask of the NO token.
func (st *MarketState) NoAsk() (Level, bool) {
	return st.No.Asks.Best()
}

// YesBid returns the best bid of the YES token.
func (st *MarketState) YesBid() (Level, bool) {
	return st.Yes.Bids.Best()
}

// NoBid returns the best bid of the NO token.
func (st *MarketState) NoBid() (Level, bool) {
	return st.No.Bids.Best()
}

// Spread returns 1 - yes_ask - no_ask. The second return is false when
// either ask is missing.
func (st *MarketState) Spread() (decimal.Decimal, bool) {
	yes, okYes := st.YesAsk()
	no, okNo := st.NoAsk()
	if !okYes || !okNo {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(1).Sub(yes.Price).Sub(no.Price), true
}

// IsStale reports whether the state has not been updated within threshold.
func (st *MarketState) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(st.LastUpdate) > threshold
}

// Clone returns a deep copy safe for concurrent readers.
func (st *MarketState) Clone() *MarketState {
	return &MarketState{
		ConditionID: st.ConditionID,
		Yes:         TokenBook{Bids: st.Yes.Bids.Clone(), Asks: st.Yes.Asks.Clone()},
		No:          TokenBook{Bids: st.No.Bids.Clone(), Asks: st.No.Asks.Clone()},
		LastUpdate:  st.LastUpdate,
		Revision:    st.Revision,
	}
}
