// Package settlement claims resolved winning positions by selling held
// shares back to the venue, with durable retry state in the store.
package settlement

import (
	"context"
	"math/rand"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/internal/exchange"
	"github.com/parlaytech/updown-arb/internal/storage"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// PnLRecorder receives realized claim profit for daily loss accounting.
type PnLRecorder interface {
	RecordPnL(ctx context.Context, delta decimal.Decimal)
}

// LevelSource reports the current circuit breaker level.
type LevelSource interface {
	Level() types.BreakerLevel
}

// ComponentReporter surfaces degraded claim health to the readiness
// endpoint.
type ComponentReporter interface {
	SetComponent(name, status string)
}

// Manager runs the periodic claim loop over the settlement queue. Every
// attempt and its outcome is written through the store, so a restart
// resumes exactly where the previous process stopped.
type Manager struct {
	store    storage.Store
	exchange exchange.Exchange
	breaker  PnLRecorder
	level    LevelSource
	bus      *events.Bus
	health   ComponentReporter

	interval       time.Duration
	resolutionWait time.Duration
	fillWait       time.Duration
	sellPrice      decimal.Decimal
	maxAttempts    int
	alertAfter     int
	retry          *backoff.Backoff

	logger *zap.Logger
}

// Config holds settlement manager dependencies and tuning.
type Config struct {
	Store    storage.Store
	Exchange exchange.Exchange
	Breaker  PnLRecorder
	Level    LevelSource
	Bus      *events.Bus
	Health   ComponentReporter

	Interval       time.Duration
	ResolutionWait time.Duration
	FillWait       time.Duration
	SellPrice      decimal.Decimal
	BaseRetry      time.Duration
	MaxRetry       time.Duration
	MaxAttempts    int
	AlertAfter     int

	Logger *zap.Logger
}

// New creates a settlement manager.
func New(cfg *Config) *Manager {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	resolutionWait := cfg.ResolutionWait
	if resolutionWait <= 0 {
		resolutionWait = 10 * time.Minute
	}
	fillWait := cfg.FillWait
	if fillWait <= 0 {
		fillWait = 30 * time.Second
	}
	sellPrice := cfg.SellPrice
	if sellPrice.IsZero() {
		sellPrice = decimal.RequireFromString("0.99")
	}
	baseRetry := cfg.BaseRetry
	if baseRetry <= 0 {
		baseRetry = time.Minute
	}
	maxRetry := cfg.MaxRetry
	if maxRetry < baseRetry {
		maxRetry = time.Hour
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	alertAfter := cfg.AlertAfter
	if alertAfter <= 0 {
		alertAfter = 3
	}

	return &Manager{
		store:          cfg.Store,
		exchange:       cfg.Exchange,
		breaker:        cfg.Breaker,
		level:          cfg.Level,
		bus:            cfg.Bus,
		health:         cfg.Health,
		interval:       interval,
		resolutionWait: resolutionWait,
		fillWait:       fillWait,
		sellPrice:      sellPrice,
		maxAttempts:    maxAttempts,
		alertAfter:     alertAfter,
		retry: &backoff.Backoff{
			Min:    baseRetry,
			Max:    maxRetry,
			Factor: 2,
		},
		logger: cfg.Logger,
	}
}

// Start runs the claim loop until the context ends.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("settlement-manager-started",
		zap.Duration("interval", m.interval),
		zap.Duration("resolution-wait", m.resolutionWait),
		zap.String("sell-price", m.sellPrice.String()))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("settlement-manager-stopped")
			return
		case now := <-ticker.C:
			m.sweepOnce(ctx, now.UTC())
		}
	}
}

// RunOnce performs a single claim sweep. Used by the settle command to
// drain the backlog without running the full engine.
func (m *Manager) RunOnce(ctx context.Context) {
	m.sweepOnce(ctx, time.Now().UTC())
}

func (m *Manager) sweepOnce(ctx context.Context, now time.Time) {
	if m.level != nil && m.level.Level() == types.LevelHalt {
		return
	}

	entries, err := m.store.GetClaimableSettlements(ctx, now, m.resolutionWait, m.maxAttempts)
	if err != nil {
		m.logger.Error("claimable-query-failed", zap.Error(err))
		return
	}

	for _, e := range entries {
		m.claim(ctx, e, now)
	}
}

func (m *Manager) claim(ctx context.Context, e *types.SettlementEntry, now time.Time) {
	order := types.Order{
		TokenID: e.TokenID,
		Side:    types.SideSell,
		Price:   m.sellPrice,
		Size:    e.Shares,
		Type:    types.OrderGTC,
	}

	orderCtx, cancel := context.WithTimeout(ctx, m.fillWait)
	outcome, err := m.exchange.PlaceOrder(orderCtx, order)
	cancel()
	if err != nil {
		m.fail(ctx, e, now, err.Error())
		return
	}

	switch outcome.Kind {
	case types.OutcomeMatched, types.OutcomeSimulated:
		m.settle(ctx, e, now, outcome.FilledCost)
	case types.OutcomeLive:
		m.awaitLiveClaim(ctx, e, now, outcome.OrderID)
	case types.OutcomeFailed:
		m.fail(ctx, e, now, outcome.Reason)
	case types.OutcomeException:
		m.fail(ctx, e, now, outcome.Err.Error())
	}
}

// awaitLiveClaim waits out the fill window for a resting claim order,
// then checks it once and cancels if still unfilled.
func (m *Manager) awaitLiveClaim(ctx context.Context, e *types.SettlementEntry, now time.Time, orderID string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(m.fillWait):
	}

	resp, err := m.exchange.GetOrder(ctx, orderID)
	if err == nil && resp.IsFilled() {
		m.settle(ctx, e, now, m.sellPrice.Mul(e.Shares))
		return
	}

	if cancelErr := m.exchange.CancelOrder(ctx, orderID); cancelErr != nil {
		m.logger.Error("claim-cancel-failed",
			zap.String("order-id", orderID),
			zap.Error(cancelErr))
	}
	m.fail(ctx, e, now, "claim order did not fill")
}

func (m *Manager) settle(ctx context.Context, e *types.SettlementEntry, now time.Time, proceeds decimal.Decimal) {
	profit := proceeds.Sub(e.EntryCost)

	if err := m.store.MarkSettlementClaimed(ctx, e.TradeID, e.TokenID, now, proceeds, profit); err != nil {
		m.logger.Error("mark-claimed-failed",
			zap.String("key", e.Key()),
			zap.Error(err))
		return
	}

	if m.breaker != nil {
		m.breaker.RecordPnL(ctx, profit)
	}
	if m.health != nil {
		m.health.SetComponent("settlement", "ok")
	}

	ClaimsTotal.WithLabelValues("claimed").Inc()
	ClaimProfitUSD.Add(mustFloat(profit))
	m.publish(events.TypeSettlementClaimed, e, "profit "+profit.StringFixed(4))
	m.logger.Info("settlement-claimed",
		zap.String("trade-id", e.TradeID),
		zap.String("token-id", e.TokenID),
		zap.String("proceeds", proceeds.String()),
		zap.String("profit", profit.String()))
}

func (m *Manager) fail(ctx context.Context, e *types.SettlementEntry, now time.Time, reason string) {
	attempts := e.ClaimAttempts + 1

	if attempts >= m.maxAttempts {
		if err := m.store.MarkSettlementAbandoned(ctx, e.TradeID, e.TokenID); err != nil {
			m.logger.Error("mark-abandoned-failed",
				zap.String("key", e.Key()),
				zap.Error(err))
			return
		}
		ClaimsTotal.WithLabelValues("abandoned").Inc()
		m.publish(events.TypeSettlementAbandoned, e, reason)
		m.logger.Error("settlement-abandoned",
			zap.String("trade-id", e.TradeID),
			zap.String("token-id", e.TokenID),
			zap.Int("attempts", attempts),
			zap.String("last-error", reason))
		return
	}

	delay := m.nextDelay(attempts)
	if err := m.store.RecordSettlementFailure(ctx, e.TradeID, e.TokenID, attempts, reason, now.Add(delay)); err != nil {
		m.logger.Error("record-failure-failed",
			zap.String("key", e.Key()),
			zap.Error(err))
		return
	}

	ClaimsTotal.WithLabelValues("failed").Inc()
	m.logger.Warn("settlement-claim-failed",
		zap.String("trade-id", e.TradeID),
		zap.String("token-id", e.TokenID),
		zap.Int("attempts", attempts),
		zap.Duration("retry-in", delay),
		zap.String("error", reason))

	if attempts >= m.alertAfter {
		if m.health != nil {
			m.health.SetComponent("settlement", "degraded")
		}
		m.publish(events.TypeSettlementDegraded, e, reason)
	}
}

// nextDelay doubles from the base per attempt, capped, with a ±25%
// jitter so retries across rows do not line up.
func (m *Manager) nextDelay(attempts int) time.Duration {
	base := m.retry.ForAttempt(float64(attempts - 1))
	jitter := 0.75 + rand.Float64()*0.5 //nolint:gosec // not security sensitive
	return time.Duration(float64(base) * jitter)
}

func (m *Manager) publish(eventType events.Type, e *types.SettlementEntry, detail string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{
		Type:        eventType,
		At:          time.Now().UTC(),
		Asset:       e.Asset.String(),
		ConditionID: e.ConditionID,
		Detail:      detail,
	})
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
