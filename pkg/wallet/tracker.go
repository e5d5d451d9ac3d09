package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tracker polls wallet balances on an interval and caches the latest
// successful snapshot. The risk gate reads the cached USDC balance when
// computing per-trade budgets, so reads never block on the RPC.
type Tracker struct {
	client       *Client
	address      common.Address
	pollInterval time.Duration
	logger       *zap.Logger

	mu        sync.RWMutex
	balance   decimal.Decimal
	allowance decimal.Decimal
	updatedAt time.Time
}

// Config holds tracker configuration.
type Config struct {
	RPCEndpoint  string
	Address      common.Address
	PollInterval time.Duration
	Logger       *zap.Logger
}

// New creates a wallet tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.RPCEndpoint == "" {
		return nil, errors.New("RPC endpoint cannot be empty")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	client, err := NewClient(cfg.RPCEndpoint, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Tracker{
		client:       client,
		address:      cfg.Address,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}, nil
}

// Run polls until the context is cancelled. The first poll happens
// immediately so a balance is available as soon as possible.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	err := t.poll(ctx)
	if err != nil {
		t.logger.Error("initial-poll-failed", zap.Error(err))
		UpdateErrorsTotal.Inc()
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			t.client.Close()
			return ctx.Err()
		case <-ticker.C:
			err = t.poll(ctx)
			if err != nil {
				t.logger.Error("poll-failed", zap.Error(err))
				UpdateErrorsTotal.Inc()
			}
		}
	}
}

// Balance returns the last observed USDC balance and when it was taken.
// Zero with a zero time means no successful poll yet.
func (t *Tracker) Balance() (decimal.Decimal, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balance, t.updatedAt
}

// Allowance returns the last observed USDC allowance to the exchange.
func (t *Tracker) Allowance() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowance
}

// poll performs a single polling cycle.
func (t *Tracker) poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	balCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	balances, err := t.client.GetBalances(balCtx, t.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	t.mu.Lock()
	t.balance = balances.USDC
	t.allowance = balances.USDCAllowance
	t.updatedAt = time.Now()
	t.mu.Unlock()

	t.updateMetrics(balances)
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	t.logger.Debug("wallet-poll-complete",
		zap.String("usdc", balances.USDC.StringFixed(2)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

func (t *Tracker) updateMetrics(balances *Balances) {
	gasFloat := new(big.Float).Quo(
		new(big.Float).SetInt(balances.Gas),
		big.NewFloat(1e18))
	gasVal, _ := gasFloat.Float64()
	GasBalance.Set(gasVal)

	USDCBalance.Set(balances.USDC.InexactFloat64())
	USDCAllowance.Set(balances.USDCAllowance.InexactFloat64())
}
