package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/internal/exchange"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// BookSource provides current book state for rebalance pricing.
type BookSource interface {
	State(conditionID string) (*types.MarketState, bool)
}

// LevelSource reports the current circuit breaker level.
type LevelSource interface {
	Level() types.BreakerLevel
}

// SettlementWriter keeps the settlement queue in step with rebalance
// fills.
type SettlementWriter interface {
	AdjustSettlementShares(ctx context.Context, tradeID, tokenID string, shares, cost decimal.Decimal) error
	AppendSettlement(ctx context.Context, entry *types.SettlementEntry) error
}

// Rebalancer periodically works lopsided positions toward hedged. Sell
// excess when the bid pays a profit over cost; otherwise buy the
// deficit side when the completed pair still clears the minimum edge.
// Sell-excess wins when both are viable.
type Rebalancer struct {
	manager  *Manager
	exchange exchange.Exchange
	books    BookSource
	breaker  LevelSource
	store    SettlementWriter
	bus      *events.Bus

	threshold     decimal.Decimal
	minProfit     decimal.Decimal
	maxAttempts   int
	noGoBeforeEnd time.Duration
	interval      time.Duration
	orderTimeout  time.Duration

	logger *zap.Logger
}

// Config holds rebalancer dependencies and tuning.
type Config struct {
	Manager  *Manager
	Exchange exchange.Exchange
	Books    BookSource
	Breaker  LevelSource
	Store    SettlementWriter
	Bus      *events.Bus

	Threshold         decimal.Decimal
	MinProfitPerShare decimal.Decimal
	MaxAttempts       int
	NoGoBeforeEnd     time.Duration
	Interval          time.Duration
	OrderTimeout      time.Duration

	Logger *zap.Logger
}

// NewRebalancer creates a rebalancer.
func NewRebalancer(cfg *Config) *Rebalancer {
	threshold := cfg.Threshold
	if threshold.IsZero() {
		threshold = decimal.RequireFromString("0.80")
	}
	minProfit := cfg.MinProfitPerShare
	if minProfit.IsZero() {
		minProfit = decimal.RequireFromString("0.02")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	noGo := cfg.NoGoBeforeEnd
	if noGo <= 0 {
		noGo = time.Minute
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	orderTimeout := cfg.OrderTimeout
	if orderTimeout <= 0 {
		orderTimeout = 5 * time.Second
	}

	return &Rebalancer{
		manager:       cfg.Manager,
		exchange:      cfg.Exchange,
		books:         cfg.Books,
		breaker:       cfg.Breaker,
		store:         cfg.Store,
		bus:           cfg.Bus,
		threshold:     threshold,
		minProfit:     minProfit,
		maxAttempts:   maxAttempts,
		noGoBeforeEnd: noGo,
		interval:      interval,
		orderTimeout:  orderTimeout,
		logger:        cfg.Logger,
	}
}

// Start runs the rebalance loop until the context ends.
func (r *Rebalancer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("rebalancer-started",
		zap.String("threshold", r.threshold.String()),
		zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("rebalancer-stopped")
			return
		case now := <-ticker.C:
			r.sweepOnce(ctx, now.UTC())
		}
	}
}

func (r *Rebalancer) sweepOnce(ctx context.Context, now time.Time) {
	if r.breaker != nil && r.breaker.Level() == types.LevelHalt {
		return
	}

	for _, pos := range r.manager.Imbalanced(r.threshold) {
		r.evaluate(ctx, pos, now)
	}
}

func (r *Rebalancer) evaluate(ctx context.Context, pos *types.Position, now time.Time) {
	if pos.RebalanceAttempts >= r.maxAttempts {
		RebalanceSkipsTotal.WithLabelValues("attempts_exhausted").Inc()
		return
	}
	if !now.Before(pos.MarketEndTime.Add(-r.noGoBeforeEnd)) {
		RebalanceSkipsTotal.WithLabelValues("too_close_to_end").Inc()
		return
	}

	state, ok := r.books.State(pos.ConditionID)
	if !ok {
		RebalanceSkipsTotal.WithLabelValues("no_book").Inc()
		return
	}

	side, excess, ok := pos.ExcessSide()
	if !ok {
		return
	}

	bid, haveBid := bestBid(state, side)
	sellViable := haveBid &&
		bid.Price.GreaterThan(pos.AvgCost(side).Add(r.minProfit))

	caution := r.breaker != nil && r.breaker.Level() == types.LevelCaution
	deficit := side.Opposite()
	ask, haveAsk := bestAsk(state, deficit)
	buyViable := haveAsk && !caution && r.buyClearsMinimum(pos, side, ask.Price, excess)

	switch {
	case sellViable:
		r.sellExcess(ctx, pos, side, bid.Price, excess)
	case buyViable:
		r.buyDeficit(ctx, pos, deficit, ask.Price, excess)
	default:
		RebalanceSkipsTotal.WithLabelValues("no_viable_action").Inc()
	}
}

// buyClearsMinimum checks that completing the pair at askPrice still
// leaves at least the minimum per-share profit after blending costs.
func (r *Rebalancer) buyClearsMinimum(pos *types.Position, excessSide types.OutcomeSide, askPrice, shares decimal.Decimal) bool {
	deficit := excessSide.Opposite()
	newShares := pos.Shares(excessSide)
	newAvg := pos.Shares(deficit).Mul(pos.AvgCost(deficit)).
		Add(askPrice.Mul(shares)).
		DivRound(newShares, 6)

	pairCost := pos.AvgCost(excessSide).Add(newAvg)
	return decimal.NewFromInt(1).Sub(pairCost).GreaterThanOrEqual(r.minProfit)
}

func (r *Rebalancer) sellExcess(ctx context.Context, pos *types.Position, side types.OutcomeSide, price, shares decimal.Decimal) {
	order := types.Order{
		TokenID: tokenFor(pos, side),
		Side:    types.SideSell,
		Price:   price,
		Size:    shares,
		Type:    types.OrderGTC,
	}

	outcome, ok := r.placeOrder(ctx, pos, order, "sell")
	if !ok || !outcome.IsMatched() {
		return
	}

	updated, ok := r.manager.ApplySell(pos.ConditionID, side, outcome.FilledSize)
	if !ok {
		return
	}

	remaining := updated.Shares(side)
	cost := remaining.Mul(updated.AvgCost(side))
	if err := r.store.AdjustSettlementShares(ctx, pos.TradeID, order.TokenID, remaining, cost); err != nil {
		r.logger.Error("settlement-adjust-failed",
			zap.String("trade-id", pos.TradeID),
			zap.String("token-id", order.TokenID),
			zap.Error(err))
	}

	RebalanceFillsTotal.WithLabelValues("sell").Inc()
	r.publish(pos, fmt.Sprintf("sold %s %s @ %s", outcome.FilledSize, side, price))
	r.logger.Info("rebalance-sold-excess",
		zap.String("condition-id", pos.ConditionID),
		zap.String("side", string(side)),
		zap.String("shares", outcome.FilledSize.String()),
		zap.String("price", price.String()),
		zap.String("hedge-ratio", updated.HedgeRatio().String()))
}

func (r *Rebalancer) buyDeficit(ctx context.Context, pos *types.Position, side types.OutcomeSide, price, shares decimal.Decimal) {
	order := types.Order{
		TokenID: tokenFor(pos, side),
		Side:    types.SideBuy,
		Price:   price,
		Size:    shares,
		Type:    types.OrderGTC,
	}

	outcome, ok := r.placeOrder(ctx, pos, order, "buy")
	if !ok || !outcome.IsMatched() {
		return
	}

	updated, ok := r.manager.ApplyBuy(pos.ConditionID, side, outcome.FilledSize, outcome.FilledCost)
	if !ok {
		return
	}

	r.syncSettlement(ctx, pos, updated, side, order.TokenID)

	RebalanceFillsTotal.WithLabelValues("buy").Inc()
	r.publish(pos, fmt.Sprintf("bought %s %s @ %s", outcome.FilledSize, side, price))
	r.logger.Info("rebalance-bought-deficit",
		zap.String("condition-id", pos.ConditionID),
		zap.String("side", string(side)),
		zap.String("shares", outcome.FilledSize.String()),
		zap.String("price", price.String()),
		zap.String("hedge-ratio", updated.HedgeRatio().String()))
}

// placeOrder bumps the attempt counter, submits the order, and cancels
// any resting remainder. Returns false when nothing actionable came back.
func (r *Rebalancer) placeOrder(ctx context.Context, pos *types.Position, order types.Order, action string) (types.OrderOutcome, bool) {
	if _, ok := r.manager.BumpAttempts(pos.ConditionID); !ok {
		return types.OrderOutcome{}, false
	}
	RebalanceAttemptsTotal.WithLabelValues(action).Inc()

	orderCtx, cancel := context.WithTimeout(ctx, r.orderTimeout)
	defer cancel()

	outcome, err := r.exchange.PlaceOrder(orderCtx, order)
	if err != nil {
		r.logger.Warn("rebalance-order-error",
			zap.String("condition-id", pos.ConditionID),
			zap.String("action", action),
			zap.Error(err))
		return types.OrderOutcome{}, false
	}

	if outcome.Kind == types.OutcomeLive {
		// A marketable order that did not cross; pull it rather than
		// leave exposure resting into the window close.
		cancelCtx, cancelFn := context.WithTimeout(context.Background(), r.orderTimeout)
		defer cancelFn()
		if err := r.exchange.CancelOrder(cancelCtx, outcome.OrderID); err != nil {
			r.logger.Error("rebalance-cancel-failed",
				zap.String("order-id", outcome.OrderID),
				zap.Error(err))
		}
		return outcome, true
	}

	return outcome, true
}

// syncSettlement mirrors the bought side into the settlement queue:
// adjust the existing row, or append one when the original trade never
// filled this side.
func (r *Rebalancer) syncSettlement(ctx context.Context, pos, updated *types.Position, side types.OutcomeSide, tokenID string) {
	shares := updated.Shares(side)
	cost := shares.Mul(updated.AvgCost(side))

	err := r.store.AdjustSettlementShares(ctx, pos.TradeID, tokenID, shares, cost)
	if errors.Is(err, types.ErrSettlementNotFound) {
		err = r.store.AppendSettlement(ctx, &types.SettlementEntry{
			TradeID:       pos.TradeID,
			TokenID:       tokenID,
			ConditionID:   pos.ConditionID,
			Asset:         pos.Asset,
			Outcome:       side,
			Shares:        shares,
			EntryPrice:    updated.AvgCost(side),
			EntryCost:     cost,
			MarketEndTime: pos.MarketEndTime,
			CreatedAt:     time.Now().UTC(),
		})
	}
	if err != nil {
		r.logger.Error("settlement-sync-failed",
			zap.String("trade-id", pos.TradeID),
			zap.String("token-id", tokenID),
			zap.Error(err))
	}
}

func (r *Rebalancer) publish(pos *types.Position, detail string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		Type:        events.TypeRebalanced,
		At:          time.Now().UTC(),
		Asset:       pos.Asset.String(),
		ConditionID: pos.ConditionID,
		Detail:      detail,
	})
}

func tokenFor(pos *types.Position, side types.OutcomeSide) string {
	if side == types.OutcomeYes {
		return pos.YesTokenID
	}
	return pos.NoTokenID
}

func bestBid(state *types.MarketState, side types.OutcomeSide) (types.Level, bool) {
	if side == types.OutcomeYes {
		return state.Yes.Bids.Best()
	}
	return state.No.Bids.Best()
}

func bestAsk(state *types.MarketState, side types.OutcomeSide) (types.Level, bool) {
	if side == types.OutcomeYes {
		return state.Yes.Asks.Best()
	}
	return state.No.Asks.Best()
}
