// Package execution places the two legs of an admitted, sized
// opportunity and turns the joint result into a durable trade record.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/internal/exchange"
	"github.com/parlaytech/updown-arb/internal/sizing"
	"github.com/parlaytech/updown-arb/internal/storage"
	"github.com/parlaytech/updown-arb/pkg/types"
)

var (
	// ErrRevalidationFailed means the book moved against the pair
	// between sizing and placement; nothing was submitted.
	ErrRevalidationFailed = errors.New("pre-placement revalidation failed")

	// ErrExecutionInFlight means the market already has an execution
	// running.
	ErrExecutionInFlight = errors.New("execution already in flight for market")
)

// BookSource provides current state for pre-placement revalidation and
// depth snapshots.
type BookSource interface {
	State(conditionID string) (*types.MarketState, bool)
}

// FailureRecorder receives execution outcomes for safety accounting.
type FailureRecorder interface {
	RecordFailure(ctx context.Context)
	RecordFill(ctx context.Context)
}

// Result is the joint outcome of a dual-leg execution.
type Result struct {
	Trade      *types.TradeRecord
	YesOutcome types.OrderOutcome
	NoOutcome  types.OrderOutcome
}

// Executor places order pairs. Both legs go out in parallel as FOK at
// the exact limit prices carried on the pair; the joint await is
// bounded by the fill timeout.
type Executor struct {
	exchange    exchange.Exchange
	store       storage.Store
	books       BookSource
	breaker     FailureRecorder
	bus         *events.Bus
	fillTimeout time.Duration
	dryRun      bool
	logger      *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// Config holds executor dependencies.
type Config struct {
	Exchange    exchange.Exchange
	Store       storage.Store
	Books       BookSource
	Breaker     FailureRecorder
	Bus         *events.Bus
	FillTimeout time.Duration
	DryRun      bool
	Logger      *zap.Logger
}

// New creates an executor.
func New(cfg *Config) *Executor {
	fillTimeout := cfg.FillTimeout
	if fillTimeout <= 0 {
		fillTimeout = 10 * time.Second
	}

	return &Executor{
		exchange:    cfg.Exchange,
		store:       cfg.Store,
		books:       cfg.Books,
		breaker:     cfg.Breaker,
		bus:         cfg.Bus,
		fillTimeout: fillTimeout,
		dryRun:      cfg.DryRun,
		logger:      cfg.Logger,
	}
}

// Execute runs one dual-leg placement. The trade record and its
// settlement rows are committed to the store before the result is
// returned, so a crash after placement never loses a filled leg.
//
// A non-nil Result may accompany a non-nil error when fills happened
// but the store write failed; callers must treat the spend as real.
func (e *Executor) Execute(ctx context.Context, opp *types.Opportunity, pair *sizing.OrderPair) (*Result, error) {
	conditionID := opp.Market.ConditionID

	if !e.lock(conditionID) {
		return nil, ErrExecutionInFlight
	}
	defer e.unlock(conditionID)

	start := time.Now()
	defer func() {
		ExecutionDuration.Observe(time.Since(start).Seconds())
	}()

	yesDepth, noDepth := e.depthSnapshots(opp)

	// The books may have moved since sizing; placing into a dead spread
	// just donates the spread to the maker.
	if err := e.revalidate(opp); err != nil {
		ExecutionsTotal.WithLabelValues("revalidation_failed").Inc()
		return nil, err
	}

	yesOutcome, noOutcome := e.placeLegs(ctx, pair)

	yesOutcome = e.resolveLiveAnomaly(yesOutcome, pair.Yes)
	noOutcome = e.resolveLiveAnomaly(noOutcome, pair.No)

	trade := e.buildTrade(opp, pair, yesOutcome, noOutcome)
	trade.YesDepth = yesDepth
	trade.NoDepth = noDepth
	entries := e.settlementEntries(trade, opp)

	if err := e.store.SaveTradeWithSettlements(ctx, trade, entries); err != nil {
		StoreFailuresTotal.Inc()
		e.logger.Error("trade-persist-failed",
			zap.String("trade-id", trade.TradeID),
			zap.String("status", string(trade.Status)),
			zap.Error(err))
		return &Result{Trade: trade, YesOutcome: yesOutcome, NoOutcome: noOutcome},
			fmt.Errorf("save trade %s: %w", trade.TradeID, err)
	}

	e.account(ctx, trade)
	e.publish(trade)

	e.logger.Info("execution-complete",
		zap.String("trade-id", trade.TradeID),
		zap.String("slug", trade.Slug),
		zap.String("status", string(trade.Status)),
		zap.String("yes-status", trade.YesOrderStatus),
		zap.String("no-status", trade.NoOrderStatus),
		zap.String("actual-cost", trade.ActualCost().StringFixed(2)),
		zap.Bool("dry-run", trade.DryRun))

	return &Result{Trade: trade, YesOutcome: yesOutcome, NoOutcome: noOutcome}, nil
}

// revalidate rejects the pair when the current book no longer prices a
// profitable spread. A missing state is not a rejection; the FOK legs
// protect against fills at worse prices.
func (e *Executor) revalidate(opp *types.Opportunity) error {
	if e.books == nil {
		return nil
	}
	state, ok := e.books.State(opp.Market.ConditionID)
	if !ok {
		return nil
	}

	yesAsk, okYes := state.YesAsk()
	noAsk, okNo := state.NoAsk()
	if !okYes || !okNo {
		return fmt.Errorf("%w: book went one-sided", ErrRevalidationFailed)
	}
	if yesAsk.Price.Add(noAsk.Price).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: pair cost %s", ErrRevalidationFailed, yesAsk.Price.Add(noAsk.Price))
	}
	return nil
}

// placeLegs dispatches both legs concurrently and awaits them jointly.
// Transport errors become Exception outcomes, so the await always
// resolves with two classified legs.
func (e *Executor) placeLegs(ctx context.Context, pair *sizing.OrderPair) (yes, no types.OrderOutcome) {
	legCtx, cancel := context.WithTimeout(ctx, e.fillTimeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		yes = e.placeLeg(legCtx, pair.Yes)
	}()
	go func() {
		defer wg.Done()
		no = e.placeLeg(legCtx, pair.No)
	}()

	wg.Wait()
	return yes, no
}

func (e *Executor) placeLeg(ctx context.Context, order types.Order) types.OrderOutcome {
	outcome, err := e.exchange.PlaceOrder(ctx, order)
	if err != nil {
		LegOutcomesTotal.WithLabelValues(string(types.OutcomeException)).Inc()
		e.logger.Warn("leg-placement-exception",
			zap.String("token-id", order.TokenID),
			zap.Error(err))
		return types.Exception(err)
	}

	LegOutcomesTotal.WithLabelValues(string(outcome.Kind)).Inc()
	return outcome
}

// resolveLiveAnomaly cancels a resting order that should have been
// killed by FOK and treats the leg as not matched.
func (e *Executor) resolveLiveAnomaly(outcome types.OrderOutcome, order types.Order) types.OrderOutcome {
	if outcome.Kind != types.OutcomeLive {
		return outcome
	}

	LiveAnomaliesTotal.Inc()
	e.logger.Warn("live-order-under-fok",
		zap.String("order-id", outcome.OrderID),
		zap.String("token-id", order.TokenID))

	// The fill-timeout context may already be spent; cancellation gets
	// its own deadline.
	cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.exchange.CancelOrder(cancelCtx, outcome.OrderID); err != nil {
		e.logger.Error("live-order-cancel-failed",
			zap.String("order-id", outcome.OrderID),
			zap.Error(err))
	}

	return types.Failed("live order under FOK, cancelled")
}

// buildTrade classifies the joint outcome and assembles the record.
func (e *Executor) buildTrade(opp *types.Opportunity, pair *sizing.OrderPair, yes, no types.OrderOutcome) *types.TradeRecord {
	trade := &types.TradeRecord{
		TradeID:        ulid.Make().String(),
		CreatedAt:      time.Now().UTC(),
		ConditionID:    opp.Market.ConditionID,
		Asset:          opp.Market.Asset,
		Slug:           opp.Market.Slug,
		YesTokenID:     opp.Market.YesTokenID,
		NoTokenID:      opp.Market.NoTokenID,
		YesPrice:       pair.Yes.Price,
		NoPrice:        pair.No.Price,
		IntendedPairs:  pair.NumPairs,
		IntendedCost:   pair.TotalCost(),
		YesOrderStatus: yes.StatusLabel(),
		NoOrderStatus:  no.StatusLabel(),
		ExpectedProfit: pair.NumPairs.Mul(opp.Spread),
		MarketEndTime:  opp.Market.EndTime,
		DryRun:         e.dryRun,
	}

	if yes.IsMatched() {
		trade.YesShares = yes.FilledSize
		trade.YesCost = yes.FilledCost
	}
	if no.IsMatched() {
		trade.NoShares = no.FilledSize
		trade.NoCost = no.FilledCost
	}
	trade.HedgeRatio = types.HedgeRatio(trade.YesShares, trade.NoShares)

	switch {
	case yes.IsMatched() && no.IsMatched():
		if e.dryRun {
			trade.Status = types.ExecSimulated
		} else {
			trade.Status = types.ExecFullFill
		}
	case yes.IsMatched() || no.IsMatched():
		trade.Status = types.ExecOneLegOnly
	default:
		trade.Status = types.ExecFailed
	}

	ExecutionsTotal.WithLabelValues(string(trade.Status)).Inc()
	return trade
}

// settlementEntries appends one row per filled side. Simulated fills
// hold no tokens, so dry-run trades get none.
func (e *Executor) settlementEntries(trade *types.TradeRecord, opp *types.Opportunity) []*types.SettlementEntry {
	if trade.DryRun {
		return nil
	}

	var entries []*types.SettlementEntry

	add := func(tokenID string, outcome types.OutcomeSide, shares, cost, price decimal.Decimal) {
		if !shares.IsPositive() {
			return
		}
		entries = append(entries, &types.SettlementEntry{
			TradeID:       trade.TradeID,
			TokenID:       tokenID,
			ConditionID:   trade.ConditionID,
			Asset:         trade.Asset,
			Outcome:       outcome,
			Shares:        shares,
			EntryPrice:    price,
			EntryCost:     cost,
			MarketEndTime: opp.Market.EndTime,
			CreatedAt:     trade.CreatedAt,
		})
	}

	add(trade.YesTokenID, types.OutcomeYes, trade.YesShares, trade.YesCost, trade.YesPrice)
	add(trade.NoTokenID, types.OutcomeNo, trade.NoShares, trade.NoCost, trade.NoPrice)

	return entries
}

// depthSnapshots captures both sides' ask depth before placement.
func (e *Executor) depthSnapshots(opp *types.Opportunity) (yes, no types.DepthSnapshot) {
	if e.books == nil {
		return yes, no
	}
	state, ok := e.books.State(opp.Market.ConditionID)
	if !ok {
		return yes, no
	}

	yes = types.DepthSnapshot{
		AtLimit: state.Yes.Asks.DepthAtOrBetter(opp.YesAsk, true),
		Total:   state.Yes.Asks.TotalDepth(),
	}
	no = types.DepthSnapshot{
		AtLimit: state.No.Asks.DepthAtOrBetter(opp.NoAsk, true),
		Total:   state.No.Asks.TotalDepth(),
	}
	return yes, no
}

// account feeds the circuit breaker. One-legged and failed executions
// both count against the failure streak.
func (e *Executor) account(ctx context.Context, trade *types.TradeRecord) {
	if e.breaker == nil {
		return
	}
	switch trade.Status {
	case types.ExecFullFill, types.ExecSimulated:
		e.breaker.RecordFill(ctx)
	case types.ExecOneLegOnly, types.ExecFailed:
		e.breaker.RecordFailure(ctx)
	}
}

func (e *Executor) publish(trade *types.TradeRecord) {
	if e.bus == nil {
		return
	}

	eventType := events.TypeTradeRecorded
	switch trade.Status {
	case types.ExecOneLegOnly:
		eventType = events.TypeTradeOneLegged
	case types.ExecFailed:
		eventType = events.TypeTradeFailed
	}

	e.bus.Publish(events.Event{
		Type:        eventType,
		At:          trade.CreatedAt,
		Asset:       trade.Asset.String(),
		ConditionID: trade.ConditionID,
		Detail:      trade.TradeID,
	})
}

func (e *Executor) lock(conditionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight == nil {
		e.inFlight = make(map[string]bool)
	}
	if e.inFlight[conditionID] {
		return false
	}
	e.inFlight[conditionID] = true
	return true
}

func (e *Executor) unlock(conditionID string) {
	e.mu.Lock()
	delete(e.inFlight, conditionID)
	e.mu.Unlock()
}
