package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run recovers persisted state, starts every component, and blocks
// until a shutdown signal arrives.
func (a *App) Run() error {
	a.logger.Info("engine-starting",
		zap.Bool("dry-run", a.cfg.DryRun),
		zap.String("min-spread", a.cfg.MinSpreadUSD.String()),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Int("assets", len(a.cfg.Assets)))

	if err := a.startComponents(); err != nil {
		return err
	}

	if err := a.recover(); err != nil {
		return fmt.Errorf("recover state: %w", err)
	}

	a.health.SetReady(true)
	a.logger.Info("engine-ready", zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	if err := a.feed.Start(); err != nil {
		return fmt.Errorf("start book feed: %w", err)
	}
	if err := a.tracker.Start(a.ctx); err != nil {
		return fmt.Errorf("start book tracker: %w", err)
	}
	if err := a.detector.Start(a.ctx); err != nil {
		return fmt.Errorf("start detector: %w", err)
	}
	if err := a.blackout.Start(a.ctx); err != nil {
		return fmt.Errorf("start blackout monitor: %w", err)
	}
	if err := a.breaker.Start(a.ctx); err != nil {
		return fmt.Errorf("start circuit breaker: %w", err)
	}

	if a.wallet != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			err := a.wallet.Run(a.ctx)
			if err != nil && !errors.Is(err, a.ctx.Err()) {
				a.logger.Error("wallet-tracker-error", zap.Error(err))
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.finder.Run(a.ctx)
		if err != nil && !errors.Is(err, a.ctx.Err()) {
			a.logger.Error("market-finder-error", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go a.handleMarketLifecycle()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pipe.run(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.rebalancer.Start(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.settler.Start(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.collector.Start(a.ctx)
	}()

	if a.alerter != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.alerter.Start(a.ctx)
		}()
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	// A second signal forces exit without waiting for drains.
	go func() {
		sig := <-sigChan
		a.logger.Warn("second-signal-forcing-exit", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	return a.Shutdown()
}
