package wallet

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	_, err := NewClient("", logger)
	assert.Error(t, err)

	_, err = NewClient("https://polygon-rpc.com", nil)
	assert.Error(t, err)

	c, err := NewClient("https://polygon-rpc.com", logger)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestFromRawUSDC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  int64
		want string
	}{
		{"zero", 0, "0"},
		{"one dollar", 1_000_000, "1"},
		{"fractional", 1_234_567, "1.234567"},
		{"large", 250_000_000_000, "250000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := fromRawUSDC(big.NewInt(tt.raw))
			assert.Equal(t, tt.want, got.String())
		})
	}
}
