package websocket

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// ReconnectConfig bounds the exponential backoff between dial attempts.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Reconnector retries a connect function with jittered exponential backoff
// until it succeeds or the context is cancelled.
type Reconnector struct {
	backoff *backoff.Backoff
	logger  *zap.Logger
}

// NewReconnector creates a reconnector with the given backoff bounds.
func NewReconnector(cfg ReconnectConfig, logger *zap.Logger) *Reconnector {
	return &Reconnector{
		backoff: &backoff.Backoff{
			Min:    cfg.InitialDelay,
			Max:    cfg.MaxDelay,
			Factor: cfg.Multiplier,
			Jitter: true,
		},
		logger: logger,
	}
}

// Run attempts connectFunc until it succeeds. Each failure waits out the
// next backoff step; success resets the backoff for the next outage.
func (r *Reconnector) Run(ctx context.Context, connectFunc func(context.Context) error) error {
	for {
		delay := r.backoff.Duration()

		r.logger.Info("attempting-reconnection",
			zap.Duration("backoff", delay),
			zap.Float64("attempt", r.backoff.Attempt()))

		ReconnectAttemptsTotal.Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		err := connectFunc(ctx)
		if err == nil {
			r.backoff.Reset()
			r.logger.Info("reconnection-successful")
			return nil
		}

		r.logger.Warn("reconnection-failed", zap.Error(err))
		ReconnectFailuresTotal.Inc()
	}
}

// Reset restores the backoff to its initial delay.
func (r *Reconnector) Reset() {
	r.backoff.Reset()
}
