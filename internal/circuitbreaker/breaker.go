// Package circuitbreaker tracks execution failures and realized losses
// and maps them onto graduated safety levels. Within a UTC day the
// level only worsens; midnight resets it to NORMAL.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// Store persists breaker state across restarts.
type Store interface {
	SaveBreakerState(ctx context.Context, state *types.CircuitBreakerState) error
	LoadBreakerState(ctx context.Context) (*types.CircuitBreakerState, error)
}

// Breaker is the multi-level circuit breaker. Level transitions are
// driven by consecutive execution failures and cumulative daily P&L,
// whichever trips first.
type Breaker struct {
	store  Store
	bus    *events.Bus
	logger *zap.Logger

	warnFailures    int
	cautionFailures int
	haltFailures    int
	warnLoss        decimal.Decimal // positive thresholds
	cautionLoss     decimal.Decimal
	haltLoss        decimal.Decimal

	mu    sync.RWMutex
	state types.CircuitBreakerState

	wg sync.WaitGroup
}

// Config holds breaker thresholds. Loss thresholds are positive USD
// amounts; the breaker trips when daily P&L reaches their negation.
type Config struct {
	Store           Store
	Bus             *events.Bus
	WarnFailures    int
	CautionFailures int
	HaltFailures    int
	WarnLossUSD     decimal.Decimal
	CautionLossUSD  decimal.Decimal
	HaltLossUSD     decimal.Decimal
	Logger          *zap.Logger
}

// New creates a breaker starting at NORMAL for today's bucket.
func New(cfg *Config) *Breaker {
	b := &Breaker{
		store:           cfg.Store,
		bus:             cfg.Bus,
		logger:          cfg.Logger,
		warnFailures:    cfg.WarnFailures,
		cautionFailures: cfg.CautionFailures,
		haltFailures:    cfg.HaltFailures,
		warnLoss:        cfg.WarnLossUSD,
		cautionLoss:     cfg.CautionLossUSD,
		haltLoss:        cfg.HaltLossUSD,
		state: types.CircuitBreakerState{
			Level:     types.LevelNormal,
			DailyPnL:  decimal.Zero,
			DayBucket: types.DayBucketFor(time.Now()),
			UpdatedAt: time.Now().UTC(),
		},
	}
	b.updateMetrics()
	return b
}

// Restore loads persisted state. State from an earlier day bucket is
// discarded so a restart never resurrects yesterday's halt.
func (b *Breaker) Restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}

	saved, err := b.store.LoadBreakerState(ctx)
	if err != nil {
		return fmt.Errorf("load breaker state: %w", err)
	}
	if saved == nil {
		return nil
	}

	if saved.DayBucket != types.DayBucketFor(time.Now()) {
		b.logger.Info("breaker-state-expired",
			zap.String("saved-bucket", saved.DayBucket))
		return nil
	}

	b.mu.Lock()
	b.state = *saved
	b.mu.Unlock()
	b.updateMetrics()

	b.logger.Info("breaker-state-restored",
		zap.String("level", saved.Level.String()),
		zap.Int("consecutive-failures", saved.ConsecutiveFailures),
		zap.String("daily-pnl", saved.DailyPnL.StringFixed(2)))

	return nil
}

// Level returns the current safety level.
func (b *Breaker) Level() types.BreakerLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Level
}

// State returns a copy of the full breaker state.
func (b *Breaker) State() types.CircuitBreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// RecordFailure counts one failed execution.
func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mutate(ctx, func(s *types.CircuitBreakerState) {
		s.ConsecutiveFailures++
	})
}

// RecordFill resets the consecutive failure count. The level is not
// de-escalated; only the daily reset does that.
func (b *Breaker) RecordFill(ctx context.Context) {
	b.mutate(ctx, func(s *types.CircuitBreakerState) {
		s.ConsecutiveFailures = 0
	})
}

// RecordPnL adds realized profit or loss to the daily total.
func (b *Breaker) RecordPnL(ctx context.Context, delta decimal.Decimal) {
	b.mutate(ctx, func(s *types.CircuitBreakerState) {
		s.DailyPnL = s.DailyPnL.Add(delta)
	})
}

// Start launches the daily reset loop.
func (b *Breaker) Start(ctx context.Context) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				b.rollDay(ctx, now)
			}
		}
	}()
	return nil
}

// Close waits for the reset loop to stop.
func (b *Breaker) Close() error {
	b.wg.Wait()
	return nil
}

// mutate applies fn under the lock, re-evaluates the level, escalates
// if needed, and persists.
func (b *Breaker) mutate(ctx context.Context, fn func(*types.CircuitBreakerState)) {
	now := time.Now()

	b.mu.Lock()
	b.resetIfNewDayLocked(now)

	fn(&b.state)
	b.state.UpdatedAt = now.UTC()

	old := b.state.Level
	target := b.levelFor(b.state.ConsecutiveFailures, b.state.DailyPnL)
	if target > b.state.Level {
		b.state.Level = target
	}
	newLevel := b.state.Level
	snapshot := b.state
	b.mu.Unlock()

	b.updateMetrics()

	if newLevel != old {
		TransitionsTotal.WithLabelValues(newLevel.String()).Inc()
		b.logger.Warn("breaker-level-escalated",
			zap.String("from", old.String()),
			zap.String("to", newLevel.String()),
			zap.Int("consecutive-failures", snapshot.ConsecutiveFailures),
			zap.String("daily-pnl", snapshot.DailyPnL.StringFixed(2)))

		if b.bus != nil {
			b.bus.Publish(events.Event{
				Type:   events.TypeCircuitBreakerChanged,
				At:     now.UTC(),
				Detail: fmt.Sprintf("%s -> %s", old, newLevel),
			})
		}
	}

	b.persist(ctx, &snapshot)
}

// levelFor maps counters onto the worst level either trigger reaches.
func (b *Breaker) levelFor(failures int, dailyPnL decimal.Decimal) types.BreakerLevel {
	level := types.LevelNormal

	switch {
	case failures >= b.haltFailures:
		level = types.LevelHalt
	case failures >= b.cautionFailures:
		level = types.LevelCaution
	case failures >= b.warnFailures:
		level = types.LevelWarning
	}

	switch {
	case dailyPnL.LessThanOrEqual(b.haltLoss.Neg()):
		level = max(level, types.LevelHalt)
	case dailyPnL.LessThanOrEqual(b.cautionLoss.Neg()):
		level = max(level, types.LevelCaution)
	case dailyPnL.LessThanOrEqual(b.warnLoss.Neg()):
		level = max(level, types.LevelWarning)
	}

	return level
}

// rollDay resets the breaker when the UTC day bucket changes.
func (b *Breaker) rollDay(ctx context.Context, now time.Time) {
	b.mu.Lock()
	reset := b.resetIfNewDayLocked(now)
	snapshot := b.state
	b.mu.Unlock()

	if !reset {
		return
	}

	b.updateMetrics()
	b.logger.Info("breaker-daily-reset", zap.String("day", snapshot.DayBucket))

	if b.bus != nil {
		b.bus.Publish(events.Event{
			Type:   events.TypeCircuitBreakerChanged,
			At:     now.UTC(),
			Detail: "daily reset to NORMAL",
		})
	}

	b.persist(ctx, &snapshot)
}

func (b *Breaker) resetIfNewDayLocked(now time.Time) bool {
	bucket := types.DayBucketFor(now)
	if bucket == b.state.DayBucket {
		return false
	}

	b.state = types.CircuitBreakerState{
		Level:     types.LevelNormal,
		DailyPnL:  decimal.Zero,
		DayBucket: bucket,
		UpdatedAt: now.UTC(),
	}
	return true
}

// persist writes the state best-effort. A storage failure must never
// block the trading path.
func (b *Breaker) persist(ctx context.Context, snapshot *types.CircuitBreakerState) {
	if b.store == nil {
		return
	}
	if err := b.store.SaveBreakerState(ctx, snapshot); err != nil {
		PersistErrorsTotal.Inc()
		b.logger.Error("breaker-persist-failed", zap.Error(err))
	}
}

func (b *Breaker) updateMetrics() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	CurrentLevel.Set(float64(b.state.Level))
	ConsecutiveFailures.Set(float64(b.state.ConsecutiveFailures))
	DailyPnL.Set(b.state.DailyPnL.InexactFloat64())
}
