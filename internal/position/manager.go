// Package position tracks open outcome pairs per market and runs the
// rebalancing loop that works lopsided positions back toward hedged.
package position

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// Manager owns all open positions, keyed by condition id. It is the
// only mutator: the executor registers fills, the rebalancer applies
// rebalance fills, and everything else reads clones.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
	logger    *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		positions: make(map[string]*types.Position),
		logger:    logger,
	}
}

// Register creates a position from a trade record. Returns nil when the
// trade filled nothing. Dry-run trades still register so the admission
// dedup behaves the same in both modes.
func (m *Manager) Register(trade *types.TradeRecord) *types.Position {
	if !trade.YesShares.IsPositive() && !trade.NoShares.IsPositive() {
		return nil
	}

	pos := &types.Position{
		TradeID:       trade.TradeID,
		ConditionID:   trade.ConditionID,
		Asset:         trade.Asset,
		Slug:          trade.Slug,
		YesTokenID:    trade.YesTokenID,
		NoTokenID:     trade.NoTokenID,
		YesShares:     trade.YesShares,
		NoShares:      trade.NoShares,
		YesAvgCost:    avgCost(trade.YesCost, trade.YesShares),
		NoAvgCost:     avgCost(trade.NoCost, trade.NoShares),
		CreatedAt:     trade.CreatedAt,
		MarketEndTime: trade.MarketEndTime,
	}

	m.mu.Lock()
	m.positions[pos.ConditionID] = pos
	OpenPositions.Set(float64(len(m.positions)))
	m.mu.Unlock()

	m.logger.Info("position-registered",
		zap.String("trade-id", pos.TradeID),
		zap.String("condition-id", pos.ConditionID),
		zap.String("yes-shares", pos.YesShares.String()),
		zap.String("no-shares", pos.NoShares.String()),
		zap.String("hedge-ratio", pos.HedgeRatio().String()))

	return m.clone(pos)
}

func avgCost(cost, shares decimal.Decimal) decimal.Decimal {
	if !shares.IsPositive() {
		return decimal.Zero
	}
	return cost.DivRound(shares, 6)
}

// Recover rebuilds positions from trade records whose markets have not
// ended. Returns the number restored.
func (m *Manager) Recover(trades []*types.TradeRecord) int {
	restored := 0
	for _, trade := range trades {
		if trade.Status == types.ExecFailed || trade.DryRun {
			continue
		}
		if m.Register(trade) != nil {
			restored++
		}
	}
	return restored
}

// HasOpen reports whether the market has an open position.
func (m *Manager) HasOpen(conditionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[conditionID]
	return ok
}

// Get returns a clone of the position for the market.
func (m *Manager) Get(conditionID string) (*types.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[conditionID]
	if !ok {
		return nil, false
	}
	return m.clone(pos), true
}

// All returns clones of every open position, oldest first.
func (m *Manager) All() []*types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, m.clone(pos))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Imbalanced returns clones of positions with a hedge ratio strictly
// below threshold. Exactly at threshold counts as balanced.
func (m *Manager) Imbalanced(threshold decimal.Decimal) []*types.Position {
	var out []*types.Position
	for _, pos := range m.All() {
		if pos.HedgeRatio().LessThan(threshold) {
			out = append(out, pos)
		}
	}
	return out
}

// Close drops the position for the market. Returns false when none was
// open.
func (m *Manager) Close(conditionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.positions[conditionID]; !ok {
		return false
	}
	delete(m.positions, conditionID)
	OpenPositions.Set(float64(len(m.positions)))
	return true
}

// ApplySell reduces one side after a rebalance sell. The cost basis per
// share is unchanged. Returns the updated clone.
func (m *Manager) ApplySell(conditionID string, side types.OutcomeSide, shares decimal.Decimal) (*types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[conditionID]
	if !ok {
		return nil, false
	}

	remaining := pos.Shares(side).Sub(shares)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if side == types.OutcomeYes {
		pos.YesShares = remaining
	} else {
		pos.NoShares = remaining
	}

	return m.clone(pos), true
}

// ApplyBuy grows one side after a rebalance buy, blending the cost
// basis by weighted average. Returns the updated clone.
func (m *Manager) ApplyBuy(conditionID string, side types.OutcomeSide, shares, cost decimal.Decimal) (*types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[conditionID]
	if !ok {
		return nil, false
	}

	oldShares := pos.Shares(side)
	newShares := oldShares.Add(shares)
	newAvg := oldShares.Mul(pos.AvgCost(side)).Add(cost).DivRound(newShares, 6)

	if side == types.OutcomeYes {
		pos.YesShares = newShares
		pos.YesAvgCost = newAvg
	} else {
		pos.NoShares = newShares
		pos.NoAvgCost = newAvg
	}

	return m.clone(pos), true
}

// BumpAttempts increments the rebalance attempt counter and returns the
// new count.
func (m *Manager) BumpAttempts(conditionID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[conditionID]
	if !ok {
		return 0, false
	}
	pos.RebalanceAttempts++
	return pos.RebalanceAttempts, true
}

func (m *Manager) clone(pos *types.Position) *types.Position {
	c := *pos
	return &c
}
