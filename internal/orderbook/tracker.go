// Package orderbook maintains live order-book state for tracked markets
// from the streaming feed: full depth on both sides of both outcome
// tokens, with revision counters and staleness detection.
package orderbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// tokenRef maps an outcome token back to its market.
type tokenRef struct {
	conditionID string
	outcome     types.OutcomeSide
}

// Tracker consumes book and price_change messages and keeps one
// MarketState per tracked market. Consumers receive condition IDs on
// UpdateChan when state changes and read snapshots via State.
type Tracker struct {
	mu      sync.RWMutex
	states  map[string]*types.MarketState // by condition id
	markets map[string]*types.Market      // by condition id
	tokens  map[string]tokenRef           // by token id
	stale   map[string]bool               // condition ids already announced stale

	msgChan        <-chan *types.BookMessage
	updateChan     chan string
	bus            *events.Bus
	staleThreshold time.Duration
	sweepInterval  time.Duration
	logger         *zap.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

// Config holds tracker configuration.
type Config struct {
	MessageChannel <-chan *types.BookMessage
	Bus            *events.Bus
	StaleThreshold time.Duration
	SweepInterval  time.Duration
	UpdateBuffer   int
	Logger         *zap.Logger
}

// New creates a tracker. Call Start to begin consuming messages.
func New(cfg *Config) *Tracker {
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = time.Second
	}
	buffer := cfg.UpdateBuffer
	if buffer <= 0 {
		buffer = 1024
	}

	return &Tracker{
		states:         make(map[string]*types.MarketState),
		markets:        make(map[string]*types.Market),
		tokens:         make(map[string]tokenRef),
		stale:          make(map[string]bool),
		msgChan:        cfg.MessageChannel,
		updateChan:     make(chan string, buffer),
		bus:            cfg.Bus,
		staleThreshold: cfg.StaleThreshold,
		sweepInterval:  sweep,
		logger:         cfg.Logger,
	}
}

// Start launches the message and staleness loops.
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx = ctx
	t.logger.Info("book-tracker-starting",
		zap.Duration("stale-threshold", t.staleThreshold))

	t.wg.Add(2)
	go t.processMessages()
	go t.staleSweep()

	return nil
}

// Track registers a market. State begins empty and stays stale until the
// first snapshot arrives.
func (t *Tracker) Track(market *types.Market) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.states[market.ConditionID]; exists {
		return
	}

	t.states[market.ConditionID] = &types.MarketState{ConditionID: market.ConditionID}
	t.markets[market.ConditionID] = market
	t.tokens[market.YesTokenID] = tokenRef{conditionID: market.ConditionID, outcome: types.OutcomeYes}
	t.tokens[market.NoTokenID] = tokenRef{conditionID: market.ConditionID, outcome: types.OutcomeNo}

	MarketsTracked.Set(float64(len(t.states)))

	t.logger.Info("market-tracked",
		zap.String("slug", market.Slug),
		zap.String("condition-id", market.ConditionID))
}

// Untrack drops a market's state, typically after its window ends.
func (t *Tracker) Untrack(conditionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	market, ok := t.markets[conditionID]
	if !ok {
		return
	}

	delete(t.states, conditionID)
	delete(t.markets, conditionID)
	delete(t.stale, conditionID)
	delete(t.tokens, market.YesTokenID)
	delete(t.tokens, market.NoTokenID)

	MarketsTracked.Set(float64(len(t.states)))
	CurrentSpread.DeleteLabelValues(string(market.Asset))

	t.logger.Info("market-untracked", zap.String("slug", market.Slug))
}

// State returns a deep copy of a market's current book state.
func (t *Tracker) State(conditionID string) (*types.MarketState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[conditionID]
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// Market returns the tracked market definition for a condition id.
func (t *Tracker) Market(conditionID string) (*types.Market, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	market, ok := t.markets[conditionID]
	return market, ok
}

// TrackedMarkets returns all currently tracked markets.
func (t *Tracker) TrackedMarkets() []*types.Market {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*types.Market, 0, len(t.markets))
	for _, m := range t.markets {
		out = append(out, m)
	}
	return out
}

// Seed installs a REST snapshot for one token, used at startup before
// the stream delivers its first book message. Streamed data always wins:
// seeding is skipped once the state has a live update.
func (t *Tracker) Seed(conditionID string, outcome types.OutcomeSide, book *types.TokenBook) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[conditionID]
	if !ok || !state.LastUpdate.IsZero() {
		return
	}

	if outcome == types.OutcomeYes {
		state.Yes = types.TokenBook{Bids: book.Bids.Clone(), Asks: book.Asks.Clone()}
	} else {
		state.No = types.TokenBook{Bids: book.Bids.Clone(), Asks: book.Asks.Clone()}
	}
	state.Revision++

	t.logger.Debug("book-seeded",
		zap.String("condition-id", conditionID),
		zap.String("outcome", string(outcome)))
}

// InvalidateAll marks every tracked state stale. Called after a feed
// reconnect: prices are suspect until fresh snapshots arrive.
func (t *Tracker) InvalidateAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, state := range t.states {
		state.LastUpdate = time.Time{}
	}

	t.logger.Warn("book-state-invalidated", zap.Int("markets", len(t.states)))
}

// UpdateChan returns the channel of condition ids with fresh state.
func (t *Tracker) UpdateChan() <-chan string {
	return t.updateChan
}

func (t *Tracker) processMessages() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			t.logger.Info("book-tracker-stopping")
			return
		case msg, ok := <-t.msgChan:
			if !ok {
				t.logger.Info("book-message-channel-closed")
				return
			}

			err := t.handleMessage(msg)
			if err != nil {
				t.logger.Warn("book-message-error",
					zap.Error(err),
					zap.String("event-type", msg.EventType),
					zap.String("asset-id", msg.AssetID))
			}
		}
	}
}

func (t *Tracker) handleMessage(msg *types.BookMessage) error {
	timer := prometheus.NewTimer(UpdateProcessingDuration)
	defer timer.ObserveDuration()

	switch msg.EventType {
	case "book":
		return t.applySnapshot(msg)
	case "price_change":
		return t.applyChanges(msg)
	default:
		// last_trade_price, tick_size_change and friends.
		UpdatesDroppedTotal.WithLabelValues("ignored_type").Inc()
		return nil
	}
}

// applySnapshot replaces both sides of one token's book.
func (t *Tracker) applySnapshot(msg *types.BookMessage) error {
	bids, err := parseLevels(msg.Bids, false)
	if err != nil {
		return fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(msg.Asks, true)
	if err != nil {
		return fmt.Errorf("parse asks: %w", err)
	}

	t.mu.Lock()
	ref, ok := t.tokens[msg.AssetID]
	if !ok {
		t.mu.Unlock()
		UpdatesDroppedTotal.WithLabelValues("unknown_token").Inc()
		return nil
	}

	state := t.states[ref.conditionID]
	book := types.TokenBook{Bids: bids, Asks: asks}
	if ref.outcome == types.OutcomeYes {
		state.Yes = book
	} else {
		state.No = book
	}
	t.bumpLocked(state)
	t.mu.Unlock()

	UpdatesTotal.WithLabelValues("book").Inc()
	t.notify(ref.conditionID)
	return nil
}

// applyChanges applies level deltas. A level with size zero is removed.
func (t *Tracker) applyChanges(msg *types.BookMessage) error {
	t.mu.Lock()
	ref, ok := t.tokens[msg.AssetID]
	if !ok {
		t.mu.Unlock()
		UpdatesDroppedTotal.WithLabelValues("unknown_token").Inc()
		return nil
	}

	state := t.states[ref.conditionID]
	book := &state.Yes
	if ref.outcome == types.OutcomeNo {
		book = &state.No
	}

	applied := 0
	for _, change := range msg.Changes {
		lvl, err := types.ParseLevel(types.PriceLevel{Price: change.Price, Size: change.Size})
		if err != nil {
			t.mu.Unlock()
			return fmt.Errorf("parse change level: %w", err)
		}

		if change.Side == string(types.SideBuy) {
			book.Bids = applyLevel(book.Bids, lvl, false)
		} else {
			book.Asks = applyLevel(book.Asks, lvl, true)
		}
		applied++
	}

	if applied == 0 {
		t.mu.Unlock()
		return nil
	}

	t.bumpLocked(state)
	t.mu.Unlock()

	UpdatesTotal.WithLabelValues("price_change").Inc()
	t.notify(ref.conditionID)
	return nil
}

// bumpLocked advances the revision and freshness of a state and updates
// the spread gauge. Caller holds t.mu.
func (t *Tracker) bumpLocked(state *types.MarketState) {
	state.Revision++
	state.LastUpdate = time.Now()
	delete(t.stale, state.ConditionID)

	if market, ok := t.markets[state.ConditionID]; ok {
		if spread, valid := state.Spread(); valid {
			CurrentSpread.WithLabelValues(string(market.Asset)).Set(spread.InexactFloat64())
		}
	}
}

// notify sends a condition id to consumers without blocking.
func (t *Tracker) notify(conditionID string) {
	select {
	case t.updateChan <- conditionID:
	default:
		UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
		t.logger.Warn("book-update-channel-full",
			zap.String("condition-id", conditionID))
	}
}

// staleSweep periodically announces markets whose state has gone stale.
// One event per stale episode; a fresh update re-arms the announcement.
func (t *Tracker) staleSweep() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.sweepOnce(time.Now())
		}
	}
}

func (t *Tracker) sweepOnce(now time.Time) {
	type staleMarket struct {
		asset       types.Asset
		conditionID string
		age         time.Duration
	}
	var found []staleMarket

	t.mu.Lock()
	for conditionID, state := range t.states {
		if state.LastUpdate.IsZero() {
			// Never updated; nothing to announce yet.
			continue
		}
		if !state.IsStale(now, t.staleThreshold) || t.stale[conditionID] {
			continue
		}
		t.stale[conditionID] = true
		market := t.markets[conditionID]
		found = append(found, staleMarket{
			asset:       market.Asset,
			conditionID: conditionID,
			age:         now.Sub(state.LastUpdate),
		})
	}
	t.mu.Unlock()

	for _, sm := range found {
		StaleMarketsTotal.Inc()
		t.logger.Warn("market-book-stale",
			zap.String("asset", string(sm.asset)),
			zap.String("condition-id", sm.conditionID),
			zap.Duration("age", sm.age))

		if t.bus != nil {
			t.bus.Publish(events.Event{
				Type:        events.TypeMarketStale,
				Asset:       string(sm.asset),
				ConditionID: sm.conditionID,
				Detail:      fmt.Sprintf("no update for %s", sm.age.Round(time.Second)),
			})
		}
	}
}

// parseLevels converts wire levels, ordering bids descending and asks
// ascending regardless of wire order.
func parseLevels(wire []types.PriceLevel, isAsk bool) (types.BookSide, error) {
	if len(wire) == 0 {
		return nil, nil
	}

	side := make(types.BookSide, 0, len(wire))
	for _, pl := range wire {
		lvl, err := types.ParseLevel(pl)
		if err != nil {
			return nil, err
		}
		if lvl.Size.IsZero() {
			continue
		}
		side = applyLevel(side, lvl, isAsk)
	}
	return side, nil
}

// applyLevel inserts, replaces or removes one level, keeping the side
// sorted best-first.
func applyLevel(side types.BookSide, lvl types.Level, isAsk bool) types.BookSide {
	for i := range side {
		if side[i].Price.Equal(lvl.Price) {
			if lvl.Size.IsZero() {
				return append(side[:i], side[i+1:]...)
			}
			side[i].Size = lvl.Size
			return side
		}

		better := side[i].Price.GreaterThan(lvl.Price)
		if isAsk {
			better = side[i].Price.LessThan(lvl.Price)
		}
		if !better {
			if lvl.Size.IsZero() {
				return side
			}
			side = append(side, types.Level{})
			copy(side[i+1:], side[i:])
			side[i] = lvl
			return side
		}
	}

	if lvl.Size.IsZero() {
		return side
	}
	return append(side, lvl)
}

// Close waits for the loops to finish and closes the update channel.
func (t *Tracker) Close() error {
	t.logger.Info("closing-book-tracker")
	t.wg.Wait()
	close(t.updateChan)
	t.logger.Info("book-tracker-closed")
	return nil
}
