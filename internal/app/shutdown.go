package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops components in dependency order: stop admitting work,
// drain the loops, then close the feed, bus, and store.
func (a *App) Shutdown() error {
	a.logger.Info("engine-shutting-down")

	a.health.SetReady(false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if err := a.detector.Close(); err != nil {
		a.logger.Error("detector-close-error", zap.Error(err))
	}
	if err := a.tracker.Close(); err != nil {
		a.logger.Error("book-tracker-close-error", zap.Error(err))
	}
	if err := a.breaker.Close(); err != nil {
		a.logger.Error("breaker-close-error", zap.Error(err))
	}
	if err := a.blackout.Close(); err != nil {
		a.logger.Error("blackout-close-error", zap.Error(err))
	}
	if err := a.feed.Close(); err != nil {
		a.logger.Error("feed-close-error", zap.Error(err))
	}

	a.wg.Wait()

	a.bus.Close()

	if err := a.store.Close(); err != nil {
		a.logger.Error("store-close-error", zap.Error(err))
	}

	a.logger.Info("engine-shutdown-complete")
	return nil
}
