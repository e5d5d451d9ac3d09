package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parlaytech/updown-arb/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MemoryStore implements Store with in-process maps. State is lost on
// restart; intended for dry runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	trades      map[string]*types.TradeRecord
	settlements map[string]*types.SettlementEntry
	breaker     *types.CircuitBreakerState
	snapshots   []*types.LiquiditySnapshot
	saveErr     error
	closed      bool
	logger      *zap.Logger
}

// FailNextSave makes the next SaveTradeWithSettlements return err. Test helper.
func (m *MemoryStore) FailNextSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	logger.Info("memory-store-initialized")
	return &MemoryStore{
		trades:      make(map[string]*types.TradeRecord),
		settlements: make(map[string]*types.SettlementEntry),
		logger:      logger,
	}
}

func cloneSettlement(e *types.SettlementEntry) *types.SettlementEntry {
	c := *e
	if e.ClaimedAt != nil {
		t := *e.ClaimedAt
		c.ClaimedAt = &t
	}
	return &c
}

// SaveTradeWithSettlements stores the trade and its settlement rows.
func (m *MemoryStore) SaveTradeWithSettlements(_ context.Context, trade *types.TradeRecord, entries []*types.SettlementEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return types.ErrStoreClosed
	}
	if m.saveErr != nil {
		err := m.saveErr
		m.saveErr = nil
		return err
	}
	if _, exists := m.trades[trade.TradeID]; exists {
		return fmt.Errorf("trade %s already exists", trade.TradeID)
	}

	t := *trade
	m.trades[trade.TradeID] = &t
	for _, e := range entries {
		m.settlements[e.Key()] = cloneSettlement(e)
	}

	StoreWritesTotal.WithLabelValues("trades").Inc()

	return nil
}

// GetTrade returns the trade with the given ID.
func (m *MemoryStore) GetTrade(_ context.Context, tradeID string) (*types.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrStoreClosed
	}

	t, ok := m.trades[tradeID]
	if !ok {
		return nil, types.ErrTradeNotFound
	}

	c := *t
	return &c, nil
}

// GetRecentTrades returns up to limit trades, newest first.
func (m *MemoryStore) GetRecentTrades(_ context.Context, limit int) ([]*types.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrStoreClosed
	}

	trades := make([]*types.TradeRecord, 0, len(m.trades))
	for _, t := range m.trades {
		c := *t
		trades = append(trades, &c)
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.After(trades[j].CreatedAt)
	})

	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}

	return trades, nil
}

// GetTradesEndingAfter returns trades whose market window ends after cutoff.
func (m *MemoryStore) GetTradesEndingAfter(_ context.Context, cutoff time.Time) ([]*types.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrStoreClosed
	}

	var trades []*types.TradeRecord
	for _, t := range m.trades {
		if t.MarketEndTime.After(cutoff) {
			c := *t
			trades = append(trades, &c)
		}
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].CreatedAt.Before(trades[j].CreatedAt)
	})

	return trades, nil
}

// GetSettlementsForTrade returns all settlement rows for a trade.
func (m *MemoryStore) GetSettlementsForTrade(_ context.Context, tradeID string) ([]*types.SettlementEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrStoreClosed
	}

	var entries []*types.SettlementEntry
	for _, e := range m.settlements {
		if e.TradeID == tradeID {
			entries = append(entries, cloneSettlement(e))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TokenID < entries[j].TokenID
	})

	return entries, nil
}

// GetPendingSettlements returns unclaimed, unabandoned rows.
func (m *MemoryStore) GetPendingSettlements(_ context.Context) ([]*types.SettlementEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrStoreClosed
	}

	var entries []*types.SettlementEntry
	for _, e := range m.settlements {
		if !e.Claimed && !e.Abandoned {
			entries = append(entries, cloneSettlement(e))
		}
	}

	sortByEndTime(entries)

	return entries, nil
}

// GetClaimableSettlements returns pending rows ready for a claim attempt.
func (m *MemoryStore) GetClaimableSettlements(_ context.Context, now time.Time, resolutionWait time.Duration, maxAttempts int) ([]*types.SettlementEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrStoreClosed
	}

	var entries []*types.SettlementEntry
	for _, e := range m.settlements {
		if e.Claimed || e.Abandoned || e.ClaimAttempts >= maxAttempts {
			continue
		}
		if now.Before(e.MarketEndTime.Add(resolutionWait)) {
			continue
		}
		if !e.NextAttemptAt.IsZero() && now.Before(e.NextAttemptAt) {
			continue
		}
		entries = append(entries, cloneSettlement(e))
	}

	sortByEndTime(entries)

	return entries, nil
}

func sortByEndTime(entries []*types.SettlementEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MarketEndTime.Equal(entries[j].MarketEndTime) {
			return entries[i].Key() < entries[j].Key()
		}
		return entries[i].MarketEndTime.Before(entries[j].MarketEndTime)
	})
}

func (m *MemoryStore) settlement(tradeID, tokenID string) (*types.SettlementEntry, error) {
	if m.closed {
		return nil, types.ErrStoreClosed
	}

	e, ok := m.settlements[tradeID+":"+tokenID]
	if !ok {
		return nil, types.ErrSettlementNotFound
	}
	return e, nil
}

// MarkSettlementClaimed records a successful claim.
func (m *MemoryStore) MarkSettlementClaimed(_ context.Context, tradeID, tokenID string, claimedAt time.Time, proceeds, profit decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.settlement(tradeID, tokenID)
	if err != nil {
		return err
	}

	e.Claimed = true
	e.ClaimedAt = &claimedAt
	e.ClaimProceeds = proceeds
	e.ClaimProfit = profit
	e.LastError = ""

	return nil
}

// RecordSettlementFailure bumps the attempt counter and schedules the retry.
func (m *MemoryStore) RecordSettlementFailure(_ context.Context, tradeID, tokenID string, attempts int, lastError string, nextAttemptAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.settlement(tradeID, tokenID)
	if err != nil {
		return err
	}

	e.ClaimAttempts = attempts
	e.LastError = lastError
	e.NextAttemptAt = nextAttemptAt

	return nil
}

// MarkSettlementAbandoned flags a row as permanently failed.
func (m *MemoryStore) MarkSettlementAbandoned(_ context.Context, tradeID, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.settlement(tradeID, tokenID)
	if err != nil {
		return err
	}

	e.Abandoned = true

	return nil
}

// AdjustSettlementShares overwrites shares and entry cost.
func (m *MemoryStore) AdjustSettlementShares(_ context.Context, tradeID, tokenID string, shares, cost decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.settlement(tradeID, tokenID)
	if err != nil {
		return err
	}

	e.Shares = shares
	e.EntryCost = cost

	return nil
}

// AppendSettlement inserts one settlement row.
func (m *MemoryStore) AppendSettlement(_ context.Context, e *types.SettlementEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return types.ErrStoreClosed
	}
	if _, exists := m.settlements[e.Key()]; exists {
		return fmt.Errorf("settlement %s already exists", e.Key())
	}

	m.settlements[e.Key()] = cloneSettlement(e)

	return nil
}

// SaveBreakerState stores the breaker state.
func (m *MemoryStore) SaveBreakerState(_ context.Context, state *types.CircuitBreakerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return types.ErrStoreClosed
	}

	c := *state
	m.breaker = &c

	return nil
}

// LoadBreakerState returns the stored breaker state, or (nil, nil).
func (m *MemoryStore) LoadBreakerState(_ context.Context) (*types.CircuitBreakerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, types.ErrStoreClosed
	}
	if m.breaker == nil {
		return nil, nil
	}

	c := *m.breaker
	return &c, nil
}

// SaveLiquiditySnapshot appends a book snapshot.
func (m *MemoryStore) SaveLiquiditySnapshot(_ context.Context, snap *types.LiquiditySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return types.ErrStoreClosed
	}

	c := *snap
	m.snapshots = append(m.snapshots, &c)

	return nil
}

// PruneLiquiditySnapshots deletes snapshots taken before cutoff.
func (m *MemoryStore) PruneLiquiditySnapshots(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, types.ErrStoreClosed
	}

	kept := m.snapshots[:0]
	var removed int64
	for _, s := range m.snapshots {
		if s.TakenAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.snapshots = kept

	return removed, nil
}

// SnapshotCount reports stored snapshots. Test helper.
func (m *MemoryStore) SnapshotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.logger.Info("memory-store-closed")

	return nil
}
