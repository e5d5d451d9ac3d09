// Package discovery locates the live 15-minute up/down market for each
// configured asset. Slugs are deterministic, so the finder computes the
// current slot timestamp and asks the Gamma API for the exact slug
// instead of scanning the whole market list.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/cache"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// CurrentSlot returns the slot timestamp containing now: unix seconds
// floored to a 15-minute boundary.
func CurrentSlot(now time.Time) int64 {
	period := int64(types.SlotDuration / time.Second)
	return now.Unix() / period * period
}

// SlotSlug builds the deterministic market slug for an asset and slot.
func SlotSlug(asset types.Asset, slotTS int64) string {
	return fmt.Sprintf("%s-updown-15m-%d", asset.SlugPrefix(), slotTS)
}

// Finder polls the Gamma API for the current slot's market per asset,
// announcing discovered and ended markets on channels.
type Finder struct {
	client   *Client
	cache    cache.Cache
	assets   []types.Asset
	interval time.Duration
	bus      *events.Bus
	logger   *zap.Logger

	mu     sync.RWMutex
	active map[types.Asset]*types.Market

	discoveredCh chan *types.Market
	endedCh      chan *types.Market
}

// Config holds finder configuration.
type Config struct {
	Client   *Client
	Cache    cache.Cache
	Assets   []types.Asset
	Interval time.Duration
	Bus      *events.Bus
	Logger   *zap.Logger
}

// New creates a market finder.
func New(cfg *Config) *Finder {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Finder{
		client:       cfg.Client,
		cache:        cfg.Cache,
		assets:       cfg.Assets,
		interval:     interval,
		bus:          cfg.Bus,
		logger:       cfg.Logger,
		active:       make(map[types.Asset]*types.Market, len(cfg.Assets)),
		discoveredCh: make(chan *types.Market, 16),
		endedCh:      make(chan *types.Market, 16),
	}
}

// Discovered returns the channel of newly found markets.
func (f *Finder) Discovered() <-chan *types.Market {
	return f.discoveredCh
}

// Ended returns the channel of markets whose window has closed.
func (f *Finder) Ended() <-chan *types.Market {
	return f.endedCh
}

// ActiveMarkets returns the markets currently being traded.
func (f *Finder) ActiveMarkets() []*types.Market {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*types.Market, 0, len(f.active))
	for _, m := range f.active {
		out = append(out, m)
	}
	return out
}

// ActiveMarket returns the live market for one asset, if any.
func (f *Finder) ActiveMarket(asset types.Asset) (*types.Market, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	m, ok := f.active[asset]
	return m, ok
}

// Run starts the refresh loop and blocks until ctx is cancelled.
func (f *Finder) Run(ctx context.Context) error {
	f.logger.Info("market-finder-starting",
		zap.Duration("interval", f.interval),
		zap.Int("assets", len(f.assets)))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.refresh(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("market-finder-stopping")
			close(f.discoveredCh)
			close(f.endedCh)
			return ctx.Err()
		case <-ticker.C:
			f.refresh(ctx, time.Now().UTC())
		}
	}
}

// refresh retires ended markets and looks up the current slot's market
// for every asset that lacks one. Lookup failures are logged and
// retried on the next tick; one asset's failure never blocks another.
func (f *Finder) refresh(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		RefreshDuration.Observe(time.Since(start).Seconds())
	}()

	f.retireEnded(now)

	slot := CurrentSlot(now)
	for _, asset := range f.assets {
		f.mu.RLock()
		cur, ok := f.active[asset]
		f.mu.RUnlock()
		if ok && cur.SlotTS == slot {
			continue
		}

		market, err := f.lookup(ctx, asset, slot)
		if err != nil {
			if errors.Is(err, types.ErrMarketNotFound) {
				// The venue lists slots with a small lag.
				f.logger.Debug("slot-market-not-listed-yet",
					zap.String("asset", asset.String()),
					zap.Int64("slot", slot))
			} else {
				RefreshErrorsTotal.Inc()
				f.logger.Warn("market-lookup-failed",
					zap.String("asset", asset.String()),
					zap.Int64("slot", slot),
					zap.Error(err))
			}
			continue
		}

		if market.Ended(now) {
			continue
		}

		f.mu.Lock()
		f.active[asset] = market
		ActiveMarkets.Set(float64(len(f.active)))
		f.mu.Unlock()

		MarketsDiscoveredTotal.Inc()
		f.logger.Info("market-discovered",
			zap.String("asset", asset.String()),
			zap.String("slug", market.Slug),
			zap.String("condition-id", market.ConditionID),
			zap.Time("end-time", market.EndTime))

		f.publish(events.TypeMarketDiscovered, market, "")
		f.send(f.discoveredCh, market, "discovered")
	}
}

// retireEnded removes markets whose window has closed.
func (f *Finder) retireEnded(now time.Time) {
	f.mu.Lock()
	var ended []*types.Market
	for asset, m := range f.active {
		if m.Ended(now) {
			ended = append(ended, m)
			delete(f.active, asset)
		}
	}
	ActiveMarkets.Set(float64(len(f.active)))
	f.mu.Unlock()

	for _, m := range ended {
		MarketsRetiredTotal.Inc()
		f.logger.Info("market-ended",
			zap.String("asset", m.Asset.String()),
			zap.String("slug", m.Slug))

		f.publish(events.TypeMarketEnded, m, "")
		f.send(f.endedCh, m, "ended")
	}
}

// lookup resolves (asset, slot) to a market, memoized by slug so a
// retried refresh never re-fetches a window already resolved.
func (f *Finder) lookup(ctx context.Context, asset types.Asset, slotTS int64) (*types.Market, error) {
	slug := SlotSlug(asset, slotTS)

	if f.cache != nil {
		if value, found := f.cache.Get(slug); found {
			if m, ok := value.(*types.Market); ok {
				LookupsTotal.WithLabelValues("hit").Inc()
				return m, nil
			}
		}
	}

	gm, err := f.client.MarketBySlug(ctx, slug)
	if err != nil {
		LookupsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if gm.Closed || !gm.Active {
		LookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("slug %s inactive: %w", slug, types.ErrMarketNotFound)
	}

	market, err := gm.Resolve(asset, slotTS)
	if err != nil {
		LookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve market: %w", err)
	}

	LookupsTotal.WithLabelValues("miss").Inc()

	if f.cache != nil {
		ttl := time.Until(market.EndTime) + time.Minute
		if ttl > 0 {
			f.cache.Set(slug, market, ttl)
		}
	}

	return market, nil
}

func (f *Finder) publish(eventType events.Type, m *types.Market, detail string) {
	if f.bus == nil {
		return
	}
	f.bus.Publish(events.Event{
		Type:        eventType,
		At:          time.Now().UTC(),
		Asset:       m.Asset.String(),
		ConditionID: m.ConditionID,
		Detail:      detail,
	})
}

func (f *Finder) send(ch chan *types.Market, m *types.Market, label string) {
	select {
	case ch <- m:
	default:
		ChannelDropsTotal.WithLabelValues(label).Inc()
		f.logger.Warn("market-channel-full",
			zap.String("channel", label),
			zap.String("slug", m.Slug))
	}
}
