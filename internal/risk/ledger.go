package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// windowUsage tracks spend inside one market window.
type windowUsage struct {
	committed decimal.Decimal
	reserved  decimal.Decimal
}

// WindowLedger tracks per-market-window USD exposure. Admission
// reserves a proposed cost; the executor later commits the actual cost
// or releases the reservation, so concurrent admissions can never
// over-commit a window.
type WindowLedger struct {
	maxPerWindow decimal.Decimal

	mu      sync.Mutex
	windows map[string]*windowUsage // keyed by condition id
}

// NewWindowLedger creates a ledger with the given per-window cap.
func NewWindowLedger(maxPerWindow decimal.Decimal) *WindowLedger {
	return &WindowLedger{
		maxPerWindow: maxPerWindow,
		windows:      make(map[string]*windowUsage),
	}
}

// Used returns committed + reserved spend for a window.
func (l *WindowLedger) Used(conditionID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usedLocked(conditionID)
}

func (l *WindowLedger) usedLocked(conditionID string) decimal.Decimal {
	u, ok := l.windows[conditionID]
	if !ok {
		return decimal.Zero
	}
	return u.committed.Add(u.reserved)
}

// Remaining returns the budget still available in a window.
func (l *WindowLedger) Remaining(conditionID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxPerWindow.Sub(l.usedLocked(conditionID))
}

// Reserve holds amount against the window. Returns false when the cap
// would be exceeded.
func (l *WindowLedger) Reserve(conditionID string, amount decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.usedLocked(conditionID).Add(amount).GreaterThan(l.maxPerWindow) {
		return false
	}

	u, ok := l.windows[conditionID]
	if !ok {
		u = &windowUsage{committed: decimal.Zero, reserved: decimal.Zero}
		l.windows[conditionID] = u
	}
	u.reserved = u.reserved.Add(amount)
	return true
}

// Commit converts a reservation into actual spend. The actual cost may
// be below the reservation (partial fills, liquidity caps); the excess
// reservation is freed.
func (l *WindowLedger) Commit(conditionID string, reserved, actual decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.windows[conditionID]
	if !ok {
		return
	}
	u.reserved = u.reserved.Sub(reserved)
	if u.reserved.IsNegative() {
		u.reserved = decimal.Zero
	}
	u.committed = u.committed.Add(actual)
}

// Release frees a reservation without committing anything.
func (l *WindowLedger) Release(conditionID string, reserved decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.windows[conditionID]
	if !ok {
		return
	}
	u.reserved = u.reserved.Sub(reserved)
	if u.reserved.IsNegative() {
		u.reserved = decimal.Zero
	}
}

// Forget drops a window's usage once the market has ended.
func (l *WindowLedger) Forget(conditionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, conditionID)
}
