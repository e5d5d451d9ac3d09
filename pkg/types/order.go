package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes immediate-or-nothing entries from resting orders.
type OrderType string

const (
	// OrderFOK fills completely and immediately or cancels entirely.
	// All arbitrage entries use FOK.
	OrderFOK OrderType = "FOK"
	// OrderGTC rests on the book until filled or cancelled. Used for
	// settlement sell-backs.
	OrderGTC OrderType = "GTC"
)

// Order is a single-leg order request. Price is the exact limit price;
// implementations must never substitute or pad it.
type Order struct {
	TokenID string
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal // shares
	Type    OrderType
}

// Notional returns price × size in USD.
func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(o.Size)
}

// OutcomeKind tags the result of an order placement.
type OutcomeKind string

const (
	// OutcomeMatched means the order filled completely.
	OutcomeMatched OutcomeKind = "matched"
	// OutcomeLive means the order is resting on the book. Under FOK
	// this is an anomaly and the order must be cancelled immediately.
	OutcomeLive OutcomeKind = "live"
	// OutcomeFailed means the venue rejected or killed the order.
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeException means the placement itself errored (timeout,
	// transport failure); fill state is unknown-but-assumed-none.
	OutcomeException OutcomeKind = "exception"
	// OutcomeSimulated means the order was not sent (dry run).
	OutcomeSimulated OutcomeKind = "simulated"
)

// OrderOutcome is the tagged result of placing one order. Exactly the
// fields for its Kind are meaningful.
type OrderOutcome struct {
	Kind       OutcomeKind
	OrderID    string          // matched, live
	FilledSize decimal.Decimal // matched, simulated
	FilledCost decimal.Decimal // matched, simulated: USD notional
	Reason     string          // failed
	Err        error           // exception
}

// Matched builds a complete-fill outcome.
func Matched(orderID string, size, cost decimal.Decimal) OrderOutcome {
	return OrderOutcome{Kind: OutcomeMatched, OrderID: orderID, FilledSize: size, FilledCost: cost}
}

// Live builds a resting-order outcome.
func Live(orderID string) OrderOutcome {
	return OrderOutcome{Kind: OutcomeLive, OrderID: orderID}
}

// Failed builds a rejected/killed outcome.
func Failed(reason string) OrderOutcome {
	return OrderOutcome{Kind: OutcomeFailed, Reason: reason}
}

// Exception builds a placement-error outcome.
func Exception(err error) OrderOutcome {
	return OrderOutcome{Kind: OutcomeException, Err: err}
}

// Simulated builds a dry-run outcome filled at the limit price.
func Simulated(size, cost decimal.Decimal) OrderOutcome {
	return OrderOutcome{Kind: OutcomeSimulated, FilledSize: size, FilledCost: cost}
}

// IsMatched reports whether the outcome represents a real or simulated fill.
func (o OrderOutcome) IsMatched() bool {
	return o.Kind == OutcomeMatched || o.Kind == OutcomeSimulated
}

// StatusLabel is the string persisted in trade records.
func (o OrderOutcome) StatusLabel() string {
	switch o.Kind {
	case OutcomeMatched:
		return "MATCHED"
	case OutcomeLive:
		return "LIVE"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeException:
		return "EXCEPTION"
	case OutcomeSimulated:
		return "SIMULATED"
	default:
		return "UNKNOWN"
	}
}

func (o OrderOutcome) String() string {
	switch o.Kind {
	case OutcomeMatched:
		return fmt.Sprintf("matched %s shares for $%s", o.FilledSize, o.FilledCost)
	case OutcomeLive:
		return fmt.Sprintf("live order %s", o.OrderID)
	case OutcomeFailed:
		return fmt.Sprintf("failed: %s", o.Reason)
	case OutcomeException:
		return fmt.Sprintf("exception: %v", o.Err)
	case OutcomeSimulated:
		return fmt.Sprintf("simulated %s shares for $%s", o.FilledSize, o.FilledCost)
	default:
		return string(o.Kind)
	}
}
