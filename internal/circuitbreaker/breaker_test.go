package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/internal/storage"
	"github.com/parlaytech/updown-arb/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestBreaker(t *testing.T, store Store) *Breaker {
	t.Helper()

	return New(&Config{
		Store:           store,
		WarnFailures:    3,
		CautionFailures: 4,
		HaltFailures:    5,
		WarnLossUSD:     d("50"),
		CautionLossUSD:  d("75"),
		HaltLossUSD:     d("100"),
		Logger:          zaptest.NewLogger(t),
	})
}

func TestBreaker_FailureEscalation(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, nil)
	ctx := context.Background()

	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	assert.Equal(t, types.LevelNormal, b.Level())

	b.RecordFailure(ctx)
	assert.Equal(t, types.LevelWarning, b.Level())

	b.RecordFailure(ctx)
	assert.Equal(t, types.LevelCaution, b.Level())

	b.RecordFailure(ctx)
	assert.Equal(t, types.LevelHalt, b.Level())
}

func TestBreaker_LossEscalation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pnl  string
		want types.BreakerLevel
	}{
		{"small loss", "-49.99", types.LevelNormal},
		{"warning threshold", "-50", types.LevelWarning},
		{"caution threshold", "-75", types.LevelCaution},
		{"halt threshold", "-100", types.LevelHalt},
		{"profit", "25", types.LevelNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := newTestBreaker(t, nil)
			b.RecordPnL(context.Background(), d(tt.pnl))
			assert.Equal(t, tt.want, b.Level())
		})
	}
}

func TestBreaker_FillResetsFailuresNotLevel(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, nil)
	ctx := context.Background()

	for range 4 {
		b.RecordFailure(ctx)
	}
	require.Equal(t, types.LevelCaution, b.Level())

	b.RecordFill(ctx)
	assert.Equal(t, 0, b.State().ConsecutiveFailures)
	// Monotonic within the day: the level stays.
	assert.Equal(t, types.LevelCaution, b.Level())

	// A fresh streak counts from zero.
	for range 3 {
		b.RecordFailure(ctx)
	}
	assert.Equal(t, types.LevelCaution, b.Level())
}

func TestBreaker_MonotonicAgainstPnLRecovery(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, nil)
	ctx := context.Background()

	b.RecordPnL(ctx, d("-80"))
	require.Equal(t, types.LevelCaution, b.Level())

	// Winning back the loss does not de-escalate.
	b.RecordPnL(ctx, d("100"))
	assert.Equal(t, types.LevelCaution, b.Level())
	assert.Equal(t, "20", b.State().DailyPnL.String())
}

func TestBreaker_DailyReset(t *testing.T) {
	t.Parallel()

	b := newTestBreaker(t, nil)
	ctx := context.Background()

	for range 5 {
		b.RecordFailure(ctx)
	}
	require.Equal(t, types.LevelHalt, b.Level())

	// Force yesterday's bucket, then roll.
	b.mu.Lock()
	b.state.DayBucket = types.DayBucketFor(time.Now().AddDate(0, 0, -1))
	b.mu.Unlock()

	b.rollDay(ctx, time.Now())

	assert.Equal(t, types.LevelNormal, b.Level())
	assert.Equal(t, 0, b.State().ConsecutiveFailures)
	assert.True(t, b.State().DailyPnL.IsZero())
}

func TestBreaker_PersistAndRestore(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()

	b := newTestBreaker(t, store)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	b.RecordPnL(ctx, d("-10.50"))
	require.Equal(t, types.LevelWarning, b.Level())

	restored := newTestBreaker(t, store)
	require.NoError(t, restored.Restore(ctx))

	assert.Equal(t, types.LevelWarning, restored.Level())
	assert.Equal(t, 3, restored.State().ConsecutiveFailures)
	assert.Equal(t, "-10.5", restored.State().DailyPnL.String())
}

func TestBreaker_RestoreDiscardsStaleBucket(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore(zaptest.NewLogger(t))
	ctx := context.Background()

	stale := &types.CircuitBreakerState{
		Level:               types.LevelHalt,
		ConsecutiveFailures: 5,
		DailyPnL:            d("-120"),
		DayBucket:           types.DayBucketFor(time.Now().AddDate(0, 0, -1)),
		UpdatedAt:           time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, store.SaveBreakerState(ctx, stale))

	b := newTestBreaker(t, store)
	require.NoError(t, b.Restore(ctx))

	assert.Equal(t, types.LevelNormal, b.Level())
	assert.Equal(t, 0, b.State().ConsecutiveFailures)
}
