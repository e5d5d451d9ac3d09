package exchange

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// DryRun is an Exchange that never sends orders. Placements return a
// simulated complete fill at the exact limit price (zero slippage, the
// same assumption FOK entries make); reads pass through to the real
// client when one is available.
type DryRun struct {
	reader  Exchange // nil when running without credentials
	logger  *zap.Logger
	counter atomic.Uint64
}

// NewDryRun creates a dry-run exchange. reader may be nil; book and
// order queries then fail with ErrBookUnavailable.
func NewDryRun(reader Exchange, logger *zap.Logger) *DryRun {
	return &DryRun{reader: reader, logger: logger}
}

// PlaceOrder records a simulated fill without touching the venue.
func (d *DryRun) PlaceOrder(_ context.Context, order types.Order) (types.OrderOutcome, error) {
	n := d.counter.Add(1)

	d.logger.Info("dry-run-order",
		zap.String("token", order.TokenID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("size", order.Size.String()),
		zap.String("type", string(order.Type)))

	OrdersSubmittedTotal.WithLabelValues(string(order.Side), string(order.Type)).Inc()
	OrderOutcomesTotal.WithLabelValues(string(types.OutcomeSimulated)).Inc()

	outcome := types.Simulated(order.Size, order.Notional())
	outcome.OrderID = fmt.Sprintf("dry-run-%d", n)
	return outcome, nil
}

// CancelOrder is a no-op: simulated orders never rest.
func (d *DryRun) CancelOrder(_ context.Context, orderID string) error {
	d.logger.Debug("dry-run-cancel", zap.String("order-id", orderID))
	return nil
}

// GetOrder reports simulated orders as matched.
func (d *DryRun) GetOrder(ctx context.Context, orderID string) (*types.OrderQueryResponse, error) {
	return &types.OrderQueryResponse{ID: orderID, Status: "matched"}, nil
}

// GetBook delegates to the real client when available.
func (d *DryRun) GetBook(ctx context.Context, tokenID string) (*types.TokenBook, error) {
	if d.reader == nil {
		return nil, types.ErrBookUnavailable
	}
	return d.reader.GetBook(ctx, tokenID)
}
