package wallet

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil config", nil, true},
		{"missing logger", &Config{RPCEndpoint: "https://polygon-rpc.com", Address: addr, PollInterval: time.Minute}, true},
		{"missing endpoint", &Config{Logger: logger, Address: addr, PollInterval: time.Minute}, true},
		{"zero interval", &Config{Logger: logger, RPCEndpoint: "https://polygon-rpc.com", Address: addr}, true},
		{"valid", &Config{Logger: logger, RPCEndpoint: "https://polygon-rpc.com", Address: addr, PollInterval: time.Minute}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tr)
		})
	}
}

func TestTracker_BalanceBeforeFirstPoll(t *testing.T) {
	t.Parallel()

	tr, err := New(&Config{
		Logger:       zaptest.NewLogger(t),
		RPCEndpoint:  "https://polygon-rpc.com",
		Address:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		PollInterval: time.Minute,
	})
	require.NoError(t, err)

	balance, updatedAt := tr.Balance()
	assert.True(t, balance.IsZero())
	assert.True(t, updatedAt.IsZero())
}

func TestTracker_BalanceAfterSnapshot(t *testing.T) {
	t.Parallel()

	tr, err := New(&Config{
		Logger:       zaptest.NewLogger(t),
		RPCEndpoint:  "https://polygon-rpc.com",
		Address:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		PollInterval: time.Minute,
	})
	require.NoError(t, err)

	tr.mu.Lock()
	tr.balance = decimal.RequireFromString("412.50")
	tr.allowance = decimal.RequireFromString("1000")
	tr.updatedAt = time.Now()
	tr.mu.Unlock()

	balance, updatedAt := tr.Balance()
	assert.Equal(t, "412.5", balance.String())
	assert.False(t, updatedAt.IsZero())
	assert.Equal(t, "1000", tr.Allowance().String())
}
