// Package risk gates opportunity execution: scheduled blackout windows,
// circuit-breaker levels, per-market dedup, and per-window budgets.
package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/internal/events"
)

// BlackoutWindow is a daily wall-clock interval in a fixed timezone
// during which no new positions are opened. The venue's daily market
// rollover produces phantom books there.
type BlackoutWindow struct {
	startMinute int // minutes past midnight, inclusive
	endMinute   int // inclusive
	location    *time.Location
}

// ParseBlackoutWindow parses "HH:MM-HH:MM" plus an IANA timezone name.
// The end minute is inclusive: "05:00-05:29" covers 05:00:00 through
// 05:29:59.
func ParseBlackoutWindow(window, timezone string) (*BlackoutWindow, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	parts := strings.Split(window, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("blackout window %q: want HH:MM-HH:MM", window)
	}

	start, err := parseMinute(parts[0])
	if err != nil {
		return nil, fmt.Errorf("blackout window %q: %w", window, err)
	}
	end, err := parseMinute(parts[1])
	if err != nil {
		return nil, fmt.Errorf("blackout window %q: %w", window, err)
	}
	if end < start {
		return nil, fmt.Errorf("blackout window %q: end before start", window)
	}

	return &BlackoutWindow{startMinute: start, endMinute: end, location: loc}, nil
}

func parseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether now falls inside the window.
func (w *BlackoutWindow) Contains(now time.Time) bool {
	local := now.In(w.location)
	minute := local.Hour()*60 + local.Minute()
	return minute >= w.startMinute && minute <= w.endMinute
}

// BlackoutMonitor caches the blackout flag, refreshing it on a ticker
// so the admission hot path never touches timezone math.
type BlackoutMonitor struct {
	window   *BlackoutWindow
	interval time.Duration
	bus      *events.Bus
	logger   *zap.Logger

	mu     sync.RWMutex
	active bool

	wg sync.WaitGroup
}

// NewBlackoutMonitor creates a monitor for the given window. A nil
// window disables blackout entirely.
func NewBlackoutMonitor(window *BlackoutWindow, bus *events.Bus, logger *zap.Logger) *BlackoutMonitor {
	m := &BlackoutMonitor{
		window:   window,
		interval: time.Minute,
		bus:      bus,
		logger:   logger,
	}
	if window != nil {
		m.active = window.Contains(time.Now())
	}
	return m
}

// Active reports the cached blackout flag.
func (m *BlackoutMonitor) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Start launches the refresh loop. No-op without a window.
func (m *BlackoutMonitor) Start(ctx context.Context) error {
	if m.window == nil {
		return nil
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.refresh(now)
			}
		}
	}()

	return nil
}

func (m *BlackoutMonitor) refresh(now time.Time) {
	next := m.window.Contains(now)

	m.mu.Lock()
	changed := next != m.active
	m.active = next
	m.mu.Unlock()

	if !changed {
		return
	}

	eventType := events.TypeBlackoutExited
	if next {
		eventType = events.TypeBlackoutEntered
	}
	m.logger.Info("blackout-state-changed", zap.Bool("active", next))
	if m.bus != nil {
		m.bus.Publish(events.Event{Type: eventType, At: now.UTC()})
	}
}

// Close waits for the refresh loop to stop.
func (m *BlackoutMonitor) Close() error {
	m.wg.Wait()
	return nil
}
