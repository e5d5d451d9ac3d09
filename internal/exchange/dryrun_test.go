package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/pkg/types"
)

func TestDryRun_PlaceOrderSimulatesFullFill(t *testing.T) {
	t.Parallel()

	d := NewDryRun(nil, zaptest.NewLogger(t))

	order := types.Order{
		TokenID: "tok1",
		Side:    types.SideBuy,
		Price:   decimal.RequireFromString("0.48"),
		Size:    decimal.RequireFromString("10.41"),
		Type:    types.OrderFOK,
	}

	outcome, err := d.PlaceOrder(context.Background(), order)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSimulated, outcome.Kind)
	assert.True(t, outcome.IsMatched())
	assert.Equal(t, "10.41", outcome.FilledSize.String())
	assert.Equal(t, "4.9968", outcome.FilledCost.String())
	assert.NotEmpty(t, outcome.OrderID)

	// Order IDs are unique per placement.
	second, err := d.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.NotEqual(t, outcome.OrderID, second.OrderID)
}

func TestDryRun_CancelIsNoOp(t *testing.T) {
	t.Parallel()

	d := NewDryRun(nil, zaptest.NewLogger(t))
	assert.NoError(t, d.CancelOrder(context.Background(), "any"))
}

func TestDryRun_GetBookWithoutReader(t *testing.T) {
	t.Parallel()

	d := NewDryRun(nil, zaptest.NewLogger(t))
	_, err := d.GetBook(context.Background(), "tok1")
	assert.ErrorIs(t, err, types.ErrBookUnavailable)
}
