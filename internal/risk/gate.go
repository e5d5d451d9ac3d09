package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// BreakerSource exposes the current circuit breaker level.
type BreakerSource interface {
	Level() types.BreakerLevel
}

// BalanceSource exposes the spendable USDC balance.
type BalanceSource interface {
	Balance() (decimal.Decimal, time.Time)
}

// PositionSource reports whether a market already has an open position.
type PositionSource interface {
	HasOpen(conditionID string) bool
}

// Rejection explains why an opportunity was not admitted.
type Rejection struct {
	Reason types.RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}

// Admission is a granted execution slot: a budget plus a window-ledger
// reservation and an in-flight mark. Exactly one of Commit or Release
// must be called when execution finishes.
type Admission struct {
	Opportunity *types.Opportunity
	Budget      decimal.Decimal

	gate *Gate
	once sync.Once
}

// Commit settles the reservation with the actual executed cost.
func (a *Admission) Commit(actual decimal.Decimal) {
	a.once.Do(func() {
		conditionID := a.Opportunity.Market.ConditionID
		a.gate.ledger.Commit(conditionID, a.Budget, actual)
		a.gate.clearInFlight(conditionID)
	})
}

// Release frees the reservation after a failed or skipped execution.
func (a *Admission) Release() {
	a.once.Do(func() {
		conditionID := a.Opportunity.Market.ConditionID
		a.gate.ledger.Release(conditionID, a.Budget)
		a.gate.clearInFlight(conditionID)
	})
}

// Gate applies the admission rules, in order, to each opportunity.
type Gate struct {
	blackout  *BlackoutMonitor
	breaker   BreakerSource
	positions PositionSource
	balance   BalanceSource
	ledger    *WindowLedger
	bus       *events.Bus
	logger    *zap.Logger

	balancePct      decimal.Decimal
	maxTradeUSD     decimal.Decimal
	minTradeUSD     decimal.Decimal

	mu       sync.Mutex
	inFlight map[string]bool
}

// GateConfig holds gate construction parameters.
type GateConfig struct {
	Blackout         *BlackoutMonitor
	Breaker          BreakerSource
	Positions        PositionSource
	Balance          BalanceSource
	Ledger           *WindowLedger
	Bus              *events.Bus
	BalanceSizingPct decimal.Decimal
	MaxTradeSizeUSD  decimal.Decimal
	MinTradeSizeUSD  decimal.Decimal
	Logger           *zap.Logger
}

// NewGate creates an admission gate.
func NewGate(cfg *GateConfig) *Gate {
	return &Gate{
		blackout:    cfg.Blackout,
		breaker:     cfg.Breaker,
		positions:   cfg.Positions,
		balance:     cfg.Balance,
		ledger:      cfg.Ledger,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		balancePct:  cfg.BalanceSizingPct,
		maxTradeUSD: cfg.MaxTradeSizeUSD,
		minTradeUSD: cfg.MinTradeSizeUSD,
		inFlight:    make(map[string]bool),
	}
}

// Admit applies the rules in order; the first match rejects. On success
// the returned admission carries the budget and holds the window
// reservation plus the per-market in-flight mark.
func (g *Gate) Admit(opp *types.Opportunity, now time.Time) (*Admission, *Rejection) {
	conditionID := opp.Market.ConditionID

	if g.blackout != nil && g.blackout.Active() {
		return nil, g.reject(opp, types.RejectBlackout, "")
	}

	level := g.breaker.Level()
	switch level {
	case types.LevelHalt:
		return nil, g.reject(opp, types.RejectHalted, "")
	case types.LevelCaution:
		// Close-only: rebalancing and settlement keep running, new
		// entries do not.
		return nil, g.reject(opp, types.RejectCaution, "")
	}

	if g.positions.HasOpen(conditionID) || !g.markInFlight(conditionID) {
		return nil, g.reject(opp, types.RejectDuplicate, "")
	}

	remaining := g.ledger.Remaining(conditionID)
	if !remaining.IsPositive() {
		g.clearInFlight(conditionID)
		return nil, g.reject(opp, types.RejectWindowFull, "window spend at cap")
	}

	if opp.PairCost().GreaterThanOrEqual(decimal.NewFromInt(1)) {
		g.clearInFlight(conditionID)
		return nil, g.reject(opp, types.RejectInvalidSpread, "pair cost "+opp.PairCost().String())
	}

	balance, _ := g.balance.Balance()
	budget := decimal.Min(balance.Mul(g.balancePct), g.maxTradeUSD, remaining)
	if level == types.LevelWarning {
		budget = budget.Div(decimal.NewFromInt(2))
	}

	// A budget that cannot fund both legs at the minimum is pointless.
	if budget.LessThan(g.minTradeUSD.Mul(decimal.NewFromInt(2))) {
		g.clearInFlight(conditionID)
		return nil, g.reject(opp, types.RejectBudgetTooSmall, "budget "+budget.StringFixed(2))
	}

	if !g.ledger.Reserve(conditionID, budget) {
		g.clearInFlight(conditionID)
		return nil, g.reject(opp, types.RejectWindowFull, "reservation lost race")
	}

	AdmissionsTotal.Inc()
	g.logger.Info("opportunity-admitted",
		zap.String("opportunity-id", opp.ID),
		zap.String("slug", opp.Market.Slug),
		zap.String("budget", budget.StringFixed(2)),
		zap.String("breaker-level", level.String()))

	return &Admission{Opportunity: opp, Budget: budget, gate: g}, nil
}

// Forget clears window usage and in-flight state for an ended market.
func (g *Gate) Forget(conditionID string) {
	g.ledger.Forget(conditionID)
	g.clearInFlight(conditionID)
}

func (g *Gate) markInFlight(conditionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[conditionID] {
		return false
	}
	g.inFlight[conditionID] = true
	return true
}

func (g *Gate) clearInFlight(conditionID string) {
	g.mu.Lock()
	delete(g.inFlight, conditionID)
	g.mu.Unlock()
}

func (g *Gate) reject(opp *types.Opportunity, reason types.RejectReason, detail string) *Rejection {
	RejectionsTotal.WithLabelValues(string(reason)).Inc()
	g.logger.Debug("opportunity-rejected",
		zap.String("opportunity-id", opp.ID),
		zap.String("slug", opp.Market.Slug),
		zap.String("reason", string(reason)),
		zap.String("detail", detail))

	if g.bus != nil {
		g.bus.Publish(events.Event{
			Type:        events.TypeAdmissionRejected,
			At:          time.Now().UTC(),
			Asset:       opp.Market.Asset.String(),
			ConditionID: opp.Market.ConditionID,
			Detail:      string(reason),
		})
	}

	return &Rejection{Reason: reason, Detail: detail}
}
