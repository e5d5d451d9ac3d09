// Package httpserver exposes metrics, health probes, and read-only
// debug endpoints over the engine's state.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/pkg/healthprobe"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// PositionSource lists open positions.
type PositionSource interface {
	All() []*types.Position
}

// BreakerSource reports circuit breaker state.
type BreakerSource interface {
	State() types.CircuitBreakerState
}

// BookSource exposes tracked markets and their book state.
type BookSource interface {
	TrackedMarkets() []*types.Market
	State(conditionID string) (*types.MarketState, bool)
	Market(conditionID string) (*types.Market, bool)
}

// TradeSource reads recent trade records.
type TradeSource interface {
	GetRecentTrades(ctx context.Context, limit int) ([]*types.TradeRecord, error)
}

// Server provides HTTP endpoints for metrics, health checks, and the
// debug API.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker

	Positions PositionSource
	Breaker   BreakerSource
	Books     BookSource
	Trades    TradeSource
}

// New creates the HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	api := newAPIHandler(cfg)
	r.Route("/api", func(r chi.Router) {
		if cfg.Positions != nil {
			r.Get("/positions", api.handlePositions)
		}
		if cfg.Breaker != nil {
			r.Get("/breaker", api.handleBreaker)
		}
		if cfg.Books != nil {
			r.Get("/markets", api.handleMarkets)
			r.Get("/books/{conditionID}", api.handleBook)
		}
		if cfg.Trades != nil {
			r.Get("/trades", api.handleTrades)
		}
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server: server,
		logger: cfg.Logger,
	}
}

// Handler returns the configured router. Test hook.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the server. Blocks until the server stops or errors.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
