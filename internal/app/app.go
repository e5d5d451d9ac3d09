// Package app assembles the engine: configuration, storage, the market
// data feed, detection, risk, execution, and the background loops that
// keep positions hedged and winnings claimed.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/alerting"
	"github.com/parlaytech/updown-arb/internal/arbitrage"
	"github.com/parlaytech/updown-arb/internal/circuitbreaker"
	"github.com/parlaytech/updown-arb/internal/discovery"
	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/internal/exchange"
	"github.com/parlaytech/updown-arb/internal/execution"
	"github.com/parlaytech/updown-arb/internal/liquidity"
	"github.com/parlaytech/updown-arb/internal/orderbook"
	"github.com/parlaytech/updown-arb/internal/position"
	"github.com/parlaytech/updown-arb/internal/risk"
	"github.com/parlaytech/updown-arb/internal/settlement"
	"github.com/parlaytech/updown-arb/internal/sizing"
	"github.com/parlaytech/updown-arb/internal/storage"
	"github.com/parlaytech/updown-arb/pkg/cache"
	"github.com/parlaytech/updown-arb/pkg/config"
	"github.com/parlaytech/updown-arb/pkg/healthprobe"
	"github.com/parlaytech/updown-arb/pkg/httpserver"
	"github.com/parlaytech/updown-arb/pkg/wallet"
	"github.com/parlaytech/updown-arb/pkg/websocket"
)

// App is the engine orchestrator. New wires every component; Run starts
// them and blocks until shutdown.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	health     *healthprobe.HealthChecker
	store      storage.Store
	bus        *events.Bus
	exchange   exchange.Exchange
	wallet     *wallet.Tracker // nil in dry-run
	finder     *discovery.Finder
	feed       *websocket.Manager
	tracker    *orderbook.Tracker
	detector   *arbitrage.Detector
	breaker    *circuitbreaker.Breaker
	blackout   *risk.BlackoutMonitor
	gate       *risk.Gate
	positions  *position.Manager
	pipe       *pipeline
	rebalancer *position.Rebalancer
	settler    *settlement.Manager
	collector  *liquidity.Collector
	alerter    *alerting.Alerter // nil when Telegram is unconfigured
	httpServer *httpserver.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// staticBalance is the dry-run stand-in for the wallet tracker: a fixed
// paper balance the risk gate sizes against.
type staticBalance struct {
	amount decimal.Decimal
}

func (s staticBalance) Balance() (decimal.Decimal, time.Time) {
	return s.amount, time.Now().UTC()
}

// New wires the application. Nothing is started; call Run.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:    cfg,
		logger: logger,
		health: healthprobe.New(),
		bus:    events.NewBus(logger),
		ctx:    ctx,
		cancel: cancel,
	}

	store, err := setupStore(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup store: %w", err)
	}
	a.store = store

	marketCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	a.finder = discovery.New(&discovery.Config{
		Client: discovery.NewClient(&discovery.ClientConfig{
			BaseURL:      cfg.GammaAPIURL,
			RequestsPerS: cfg.GammaRateLimit,
			Logger:       logger,
		}),
		Cache:    marketCache,
		Assets:   cfg.Assets,
		Interval: cfg.DiscoveryInterval,
		Bus:      a.bus,
		Logger:   logger,
	})

	a.feed = websocket.New(websocket.Config{
		URL:                   cfg.WSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectMultiplier:   cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		OnReconnect:           a.onFeedReconnect,
		Logger:                logger,
	})

	a.tracker = orderbook.New(&orderbook.Config{
		MessageChannel: a.feed.MessageChan(),
		Bus:            a.bus,
		StaleThreshold: cfg.StaleThreshold,
		Logger:         logger,
	})

	a.detector = arbitrage.New(&arbitrage.Config{
		Books:          a.tracker,
		UpdateChannel:  a.tracker.UpdateChan(),
		MinSpreadUSD:   cfg.MinSpreadUSD,
		StaleThreshold: cfg.StaleThreshold,
		QueueCap:       cfg.OpportunityQueueCap,
		Bus:            a.bus,
		Logger:         logger,
	})

	a.breaker = circuitbreaker.New(&circuitbreaker.Config{
		Store:           store,
		Bus:             a.bus,
		WarnFailures:    cfg.CBWarnFailures,
		CautionFailures: cfg.CBCautionFailures,
		HaltFailures:    cfg.CBHaltFailures,
		WarnLossUSD:     cfg.CBWarnLossUSD,
		CautionLossUSD:  cfg.CBCautionLossUSD,
		HaltLossUSD:     cfg.CBHaltLossUSD,
		Logger:          logger,
	})

	balance, err := a.setupExchange(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	window, err := risk.ParseBlackoutWindow(cfg.BlackoutWindow, cfg.BlackoutTimezone)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse blackout window: %w", err)
	}
	a.blackout = risk.NewBlackoutMonitor(window, a.bus, logger)

	a.positions = position.NewManager(logger)
	ledger := risk.NewWindowLedger(cfg.MaxPerWindowUSD)

	a.gate = risk.NewGate(&risk.GateConfig{
		Blackout:         a.blackout,
		Breaker:          a.breaker,
		Positions:        a.positions,
		Balance:          balance,
		Ledger:           ledger,
		Bus:              a.bus,
		BalanceSizingPct: cfg.BalanceSizingPct,
		MaxTradeSizeUSD:  cfg.MaxTradeSizeUSD,
		MinTradeSizeUSD:  cfg.MinTradeSizeUSD,
		Logger:           logger,
	})

	sizer := sizing.New(&sizing.Config{
		MaxLiquidityPct:     cfg.MaxLiquidityPct,
		MinTradeSizeUSD:     cfg.MinTradeSizeUSD,
		SizingDecimalPlaces: cfg.SizingDecimalPlaces,
		Logger:              logger,
	})

	executor := execution.New(&execution.Config{
		Exchange:    a.exchange,
		Store:       store,
		Books:       a.tracker,
		Breaker:     a.breaker,
		Bus:         a.bus,
		FillTimeout: cfg.ParallelFillTimeout,
		DryRun:      cfg.DryRun,
		Logger:      logger,
	})

	a.pipe = &pipeline{
		opportunities: a.detector.Opportunities(),
		gate:          a.gate,
		sizer:         sizer,
		executor:      executor,
		books:         a.tracker,
		positions:     a.positions,
		ledger:        ledger,
		gradual: gradualEntry{
			enabled:   cfg.GradualEntryEnabled,
			tranches:  cfg.GradualEntryTranches,
			delay:     cfg.GradualEntryDelay,
			minSpread: cfg.GradualEntryMinSpreadCents.Div(decimal.NewFromInt(100)),
		},
		logger: logger,
	}

	a.rebalancer = position.NewRebalancer(&position.Config{
		Manager:           a.positions,
		Exchange:          a.exchange,
		Books:             a.tracker,
		Breaker:           a.breaker,
		Store:             store,
		Bus:               a.bus,
		Threshold:         cfg.RebalanceThreshold,
		MinProfitPerShare: cfg.MinRebalanceProfitPerShare,
		MaxAttempts:       cfg.MaxRebalanceAttempts,
		NoGoBeforeEnd:     cfg.RebalanceNoGoBeforeEnd,
		Interval:          cfg.RebalanceInterval,
		Logger:            logger,
	})

	a.settler = settlement.New(&settlement.Config{
		Store:          store,
		Exchange:       a.exchange,
		Breaker:        a.breaker,
		Level:          a.breaker,
		Bus:            a.bus,
		Health:         a.health,
		Interval:       cfg.SettlementInterval,
		ResolutionWait: cfg.ResolutionWait,
		FillWait:       cfg.ClaimFillTimeout,
		SellPrice:      cfg.ClaimSellPrice,
		BaseRetry:      cfg.SettlementBaseRetry,
		MaxRetry:       cfg.SettlementMaxRetry,
		MaxAttempts:    cfg.MaxClaimAttempts,
		AlertAfter:     cfg.SettlementAlertAfter,
		Logger:         logger,
	})

	a.collector = liquidity.New(&liquidity.Config{
		Books:     a.tracker,
		Store:     store,
		Interval:  cfg.LiquiditySnapshotInterval,
		Retention: cfg.LiquidityRetention,
		Logger:    logger,
	})

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		a.alerter, err = alerting.New(&alerting.Config{
			Token:  cfg.TelegramToken,
			ChatID: cfg.TelegramChatID,
			Bus:    a.bus,
			Logger: logger,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup alerting: %w", err)
		}
	}

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.health,
		Positions:     a.positions,
		Breaker:       a.breaker,
		Books:         a.tracker,
		Trades:        store,
	})

	return a, nil
}

func setupStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.StorageMode {
	case "postgres":
		return storage.NewPostgresStore(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
	case "memory":
		logger.Warn("memory-store-selected",
			zap.String("note", "trades and settlement state are lost on restart"))
		return storage.NewMemoryStore(logger), nil
	default:
		return storage.NewSQLiteStore(&storage.SQLiteConfig{
			Path:   cfg.SQLitePath,
			Logger: logger,
		})
	}
}

// setupExchange builds the order-entry client and the balance source the
// risk gate sizes against. Live mode requires full trading credentials;
// dry-run simulates fills and, when a key is present, still reads books
// and balances through the real clients.
func (a *App) setupExchange(cfg *config.Config, logger *zap.Logger) (risk.BalanceSource, error) {
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var clob *exchange.ClobClient
	if creds.PrivateKey != "" {
		clob, err = exchange.NewClobClient(&exchange.ClobConfig{
			BaseURL:     cfg.ClobAPIURL,
			Credentials: creds,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create clob client: %w", err)
		}
	}

	if cfg.DryRun {
		var reader exchange.Exchange
		if clob != nil {
			reader = clob
		}
		a.exchange = exchange.NewDryRun(reader, logger)

		logger.Info("dry-run-mode",
			zap.String("paper-balance", cfg.DryRunBalanceUSD.StringFixed(2)),
			zap.Bool("live-book-reads", clob != nil))

		return staticBalance{amount: cfg.DryRunBalanceUSD}, nil
	}

	if err := creds.ValidateForTrading(); err != nil {
		return nil, fmt.Errorf("trading credentials: %w", err)
	}
	a.exchange = clob

	a.wallet, err = wallet.New(&wallet.Config{
		RPCEndpoint:  cfg.PolygonRPCURL,
		Address:      common.HexToAddress(clob.Address()),
		PollInterval: cfg.WalletPollInterval,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create wallet tracker: %w", err)
	}

	return a.wallet, nil
}
