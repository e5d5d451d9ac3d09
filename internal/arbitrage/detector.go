// Package arbitrage turns order book updates into two-sided arbitrage
// opportunities: moments where buying both the YES and NO ask costs
// less than the guaranteed $1.00 payout.
package arbitrage

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// BookSource provides current market state keyed by condition id.
type BookSource interface {
	State(conditionID string) (*types.MarketState, bool)
	Market(conditionID string) (*types.Market, bool)
}

// Detector watches book update notifications and emits opportunities
// on a bounded queue. Each (market, book revision) pair is evaluated at
// most once, so a burst of notifications for the same book state cannot
// emit duplicates.
type Detector struct {
	books          BookSource
	updateChan     <-chan string
	minSpread      decimal.Decimal
	staleThreshold time.Duration
	bus            *events.Bus
	logger         *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]uint64 // condition id -> last evaluated revision

	queue chan *types.Opportunity
	wg    sync.WaitGroup
}

// Config holds detector configuration.
type Config struct {
	Books          BookSource
	UpdateChannel  <-chan string
	MinSpreadUSD   decimal.Decimal
	StaleThreshold time.Duration
	QueueCap       int
	Bus            *events.Bus
	Logger         *zap.Logger
}

// New creates a detector.
func New(cfg *Config) *Detector {
	queueCap := cfg.QueueCap
	if queueCap <= 0 {
		queueCap = 100
	}

	return &Detector{
		books:          cfg.Books,
		updateChan:     cfg.UpdateChannel,
		minSpread:      cfg.MinSpreadUSD,
		staleThreshold: cfg.StaleThreshold,
		bus:            cfg.Bus,
		logger:         cfg.Logger,
		lastSeen:       make(map[string]uint64),
		queue:          make(chan *types.Opportunity, queueCap),
	}
}

// Opportunities returns the bounded opportunity queue.
func (d *Detector) Opportunities() <-chan *types.Opportunity {
	return d.queue
}

// Start launches the detection loop.
func (d *Detector) Start(ctx context.Context) error {
	d.logger.Info("detector-starting",
		zap.String("min-spread", d.minSpread.String()),
		zap.Int("queue-cap", cap(d.queue)))

	d.wg.Add(1)
	go d.run(ctx)
	return nil
}

func (d *Detector) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("detector-stopping")
			close(d.queue)
			return
		case conditionID, ok := <-d.updateChan:
			if !ok {
				close(d.queue)
				return
			}
			start := time.Now()
			d.Evaluate(conditionID, time.Now().UTC())
			DetectionDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// Forget drops the dedup entry for a market, typically when it ends.
func (d *Detector) Forget(conditionID string) {
	d.mu.Lock()
	delete(d.lastSeen, conditionID)
	d.mu.Unlock()
}

// Evaluate inspects one market's current book and enqueues an
// opportunity if the spread clears the threshold. Exposed for direct
// use in recovery paths and tests; the run loop calls it per update.
func (d *Detector) Evaluate(conditionID string, now time.Time) {
	state, ok := d.books.State(conditionID)
	if !ok {
		return
	}
	market, ok := d.books.Market(conditionID)
	if !ok {
		return
	}

	if d.alreadySeen(conditionID, state.Revision) {
		EvaluationsTotal.WithLabelValues("duplicate_revision").Inc()
		return
	}

	if state.IsStale(now, d.staleThreshold) {
		EvaluationsTotal.WithLabelValues("stale").Inc()
		return
	}

	yesAsk, okYes := state.YesAsk()
	noAsk, okNo := state.NoAsk()
	if !okYes || !okNo {
		EvaluationsTotal.WithLabelValues("one_sided").Inc()
		return
	}
	if !yesAsk.Price.IsPositive() || !noAsk.Price.IsPositive() ||
		!yesAsk.Size.IsPositive() || !noAsk.Size.IsPositive() {
		EvaluationsTotal.WithLabelValues("invalid_level").Inc()
		return
	}

	spread := decimal.NewFromInt(1).Sub(yesAsk.Price).Sub(noAsk.Price)
	if spread.LessThan(d.minSpread) {
		EvaluationsTotal.WithLabelValues("below_threshold").Inc()
		return
	}

	opp := types.NewOpportunity(market, yesAsk, noAsk, state.Revision, now)

	select {
	case d.queue <- opp:
		OpportunitiesDetectedTotal.Inc()
		SpreadDetected.Observe(spread.InexactFloat64())
		d.logger.Info("opportunity-detected",
			zap.String("opportunity-id", opp.ID),
			zap.String("slug", market.Slug),
			zap.String("yes-ask", yesAsk.Price.String()),
			zap.String("no-ask", noAsk.Price.String()),
			zap.String("spread", spread.String()),
			zap.Uint64("revision", state.Revision))
		d.publish(events.TypeOpportunityDetected, opp, spread.String())
	default:
		// Queue full means execution is saturated; the books will move
		// again, so dropping is safer than blocking the update path.
		OpportunitiesDroppedTotal.Inc()
		d.logger.Warn("opportunity-queue-full",
			zap.String("slug", market.Slug),
			zap.String("spread", spread.String()))
		d.publish(events.TypeOpportunityDropped, opp, "queue full")
	}
}

// alreadySeen records the revision and reports whether it was already
// evaluated for this market.
func (d *Detector) alreadySeen(conditionID string, revision uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSeen[conditionID]; ok && revision <= last {
		return true
	}
	d.lastSeen[conditionID] = revision
	return false
}

func (d *Detector) publish(eventType events.Type, opp *types.Opportunity, detail string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(events.Event{
		Type:        eventType,
		At:          opp.DetectedAt,
		Asset:       opp.Market.Asset.String(),
		ConditionID: opp.Market.ConditionID,
		Detail:      detail,
	})
}

// Close waits for the detection loop to finish.
func (d *Detector) Close() error {
	d.wg.Wait()
	return nil
}
