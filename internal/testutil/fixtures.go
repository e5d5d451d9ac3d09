package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// Market builds a live 15-minute market for tests, ending one slot
// after its aligned start.
func Market(asset types.Asset, conditionID string) *types.Market {
	start := time.Now().UTC().Truncate(types.SlotDuration)
	return &types.Market{
		Asset:       asset,
		SlotTS:      start.Unix(),
		Slug:        asset.SlugPrefix() + "-updown-15m-test",
		ConditionID: conditionID,
		YesTokenID:  conditionID + "-yes",
		NoTokenID:   conditionID + "-no",
		StartTime:   start,
		EndTime:     start.Add(types.SlotDuration),
	}
}

// Level builds a book level from strings.
func Level(price, size string) types.Level {
	return types.Level{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

// MarketState builds a fresh two-sided state with single ask levels.
func MarketState(m *types.Market, yesAsk, noAsk types.Level, revision uint64) *types.MarketState {
	return &types.MarketState{
		ConditionID: m.ConditionID,
		Yes:         types.TokenBook{Asks: types.BookSide{yesAsk}},
		No:          types.TokenBook{Asks: types.BookSide{noAsk}},
		LastUpdate:  time.Now().UTC(),
		Revision:    revision,
	}
}

// Opportunity builds an opportunity from the state's best asks.
func Opportunity(m *types.Market, state *types.MarketState) *types.Opportunity {
	yes, _ := state.YesAsk()
	no, _ := state.NoAsk()
	return types.NewOpportunity(m, yes, no, state.Revision, time.Now().UTC())
}
