package types

import (
	"errors"
	"fmt"
)

// Domain sentinels.
var (
	// ErrMarketNotFound is returned by market lookup when no market
	// exists for the requested asset and slot.
	ErrMarketNotFound = errors.New("market not found")

	// ErrBookUnavailable is returned when a market has no tracked
	// order-book state yet.
	ErrBookUnavailable = errors.New("order book unavailable")

	// ErrStaleBook is returned when the tracked state is older than
	// the staleness threshold.
	ErrStaleBook = errors.New("order book stale")

	// ErrStoreClosed is returned by store operations after Close.
	ErrStoreClosed = errors.New("store closed")

	// ErrTradeNotFound is returned by trade lookup when no trade
	// exists with the given ID.
	ErrTradeNotFound = errors.New("trade not found")

	// ErrSettlementNotFound is returned when no settlement row exists
	// for the given (trade, token) key.
	ErrSettlementNotFound = errors.New("settlement entry not found")
)

// RejectReason enumerates admission and sizing rejections. Rejections
// are decisions, not failures: they are logged and emitted but change
// no state.
type RejectReason string

const (
	RejectBlackout        RejectReason = "BLACKOUT"
	RejectHalted          RejectReason = "HALTED"
	RejectCaution         RejectReason = "CAUTION"
	RejectDuplicate       RejectReason = "DUPLICATE"
	RejectWindowFull      RejectReason = "WINDOW_FULL"
	RejectInvalidSpread   RejectReason = "INVALID_SPREAD"
	RejectBudgetTooSmall  RejectReason = "BUDGET_TOO_SMALL"
	RejectInsufficientLiq RejectReason = "INSUFFICIENT_LIQUIDITY"
)

// CLOB API error codes, as returned in order submission responses.
const (
	ClobErrFOKNotFilled      = "FOK_ORDER_NOT_FILLED_ERROR"
	ClobErrNotEnoughBalance  = "NOT_ENOUGH_BALANCE_ERROR"
	ClobErrInvalidMinTick    = "INVALID_ORDER_MIN_TICK_SIZE"
	ClobErrMarketNotReady    = "MARKET_NOT_READY"
	ClobErrOrderUnmatched    = "EXECUTION_ERROR_ORDER_UNMATCHED"
	ClobErrDelayedOrderError = "DELAYED_ORDER_ERROR"
)

// OrderError is a structured error from order placement, carrying the
// venue's error code when one was returned.
type OrderError struct {
	Code    string
	Message string
	OrderID string
	Token   string
}

func (e *OrderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("order error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("order error: %s", e.Message)
}

// IsFOKKill reports whether the error is a normal FOK non-fill, which
// classifies as Failed rather than Exception.
func (e *OrderError) IsFOKKill() bool {
	return e.Code == ClobErrFOKNotFilled || e.Code == ClobErrOrderUnmatched
}
