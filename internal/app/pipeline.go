package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/execution"
	"github.com/parlaytech/updown-arb/internal/position"
	"github.com/parlaytech/updown-arb/internal/risk"
	"github.com/parlaytech/updown-arb/internal/sizing"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// stateSource provides book state for sizing.
type stateSource interface {
	State(conditionID string) (*types.MarketState, bool)
}

// gradualEntry configures tranche-split entries on generous spreads.
type gradualEntry struct {
	enabled   bool
	tranches  int
	delay     time.Duration
	minSpread decimal.Decimal // USD per pair
}

// pipeline drains the detector queue: admit, size, execute, settle the
// window reservation, register the position. One opportunity at a time;
// the queue is bounded and drop-on-full upstream, so slow execution
// sheds stale opportunities instead of queueing them.
type pipeline struct {
	opportunities <-chan *types.Opportunity
	gate          *risk.Gate
	sizer         *sizing.Sizer
	executor      *execution.Executor
	books         stateSource
	positions     *position.Manager
	ledger        *risk.WindowLedger
	gradual       gradualEntry
	logger        *zap.Logger
}

func (p *pipeline) run(ctx context.Context) {
	p.logger.Info("opportunity-pipeline-started",
		zap.Bool("gradual-entry", p.gradual.enabled))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("opportunity-pipeline-stopped")
			return
		case opp, ok := <-p.opportunities:
			if !ok {
				p.logger.Info("opportunity-queue-closed")
				return
			}
			p.handle(ctx, opp)
		}
	}
}

func (p *pipeline) handle(ctx context.Context, opp *types.Opportunity) {
	admission, rejection := p.gate.Admit(opp, time.Now().UTC())
	if rejection != nil {
		return
	}

	state, _ := p.books.State(opp.Market.ConditionID)
	pair, err := p.sizer.Size(opp, admission.Budget, state)
	if err != nil {
		if !errors.Is(err, sizing.ErrInsufficientLiquidity) {
			p.logger.Error("sizing-failed",
				zap.String("opportunity-id", opp.ID),
				zap.Error(err))
		}
		admission.Release()
		return
	}

	spent := p.execute(ctx, opp, pair)

	// Commit reconciles the reservation against what was actually
	// spent; zero spend frees the whole budget.
	admission.Commit(spent)
}

// execute places the pair, in tranches when gradual entry applies, and
// returns the total executed cost.
func (p *pipeline) execute(ctx context.Context, opp *types.Opportunity, pair *sizing.OrderPair) decimal.Decimal {
	tranches := []decimal.Decimal{pair.NumPairs}
	if p.gradual.enabled && opp.Spread.GreaterThanOrEqual(p.gradual.minSpread) {
		tranches = p.sizer.SplitTranches(pair.NumPairs, p.gradual.tranches)
	}

	spent := decimal.Zero
	for i, size := range tranches {
		if i > 0 {
			select {
			case <-ctx.Done():
				return spent
			case <-time.After(p.gradual.delay):
			}
		}

		result, err := p.executor.Execute(ctx, opp, tranchePair(pair, size))
		if result != nil && result.Trade != nil {
			spent = spent.Add(result.Trade.ActualCost())
			p.positions.Register(result.Trade)
		}
		if err != nil {
			p.logger.Warn("execution-aborted",
				zap.String("opportunity-id", opp.ID),
				zap.Int("tranche", i+1),
				zap.Error(err))
			return spent
		}
		if result.Trade.Status != types.ExecFullFill && result.Trade.Status != types.ExecSimulated {
			// A partial or failed tranche means the book moved; placing
			// the rest would chase a spread that is no longer there.
			return spent
		}
	}

	return spent
}

func tranchePair(pair *sizing.OrderPair, size decimal.Decimal) *sizing.OrderPair {
	if size.Equal(pair.NumPairs) {
		return pair
	}
	yes := pair.Yes
	yes.Size = size
	no := pair.No
	no.Size = size
	return &sizing.OrderPair{Yes: yes, No: no, NumPairs: size}
}
