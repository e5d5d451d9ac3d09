// Package exchange wraps the CLOB REST API: signed order submission,
// cancellation, order status queries and book snapshots.
package exchange

import (
	"context"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// Exchange is the order-entry surface the executor, rebalancer and
// settlement manager trade through.
//
// PlaceOrder returns a non-nil error only when the request itself could
// not complete (transport failure, timeout, signing failure); callers
// classify that as an exception with unknown-but-assumed-none fill
// state. Venue rejections, including normal FOK kills, come back as a
// Failed outcome with a nil error.
type Exchange interface {
	PlaceOrder(ctx context.Context, order types.Order) (types.OrderOutcome, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*types.OrderQueryResponse, error)
	GetBook(ctx context.Context, tokenID string) (*types.TokenBook, error)
}
