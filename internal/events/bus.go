package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bus fans events out to named subscribers. Delivery is best-effort:
// a subscriber whose buffer is full loses the event rather than
// stalling the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	closed bool
	logger *zap.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]chan Event),
		logger: logger,
	}
}

// Subscribe registers a named subscriber and returns its channel.
// Subscribing twice under the same name replaces the old channel,
// which is closed.
func (b *Bus) Subscribe(name string, buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[name]; ok {
		close(old)
	}

	ch := make(chan Event, buffer)
	b.subs[name] = ch

	b.logger.Debug("event-subscriber-registered",
		zap.String("subscriber", name),
		zap.Int("buffer", buffer))

	return ch
}

// Unsubscribe removes a named subscriber and closes its channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[name]; ok {
		close(ch)
		delete(b.subs, name)
	}
}

// Publish delivers the event to all subscribers without blocking.
// Events published after Close are discarded.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	EventsPublishedTotal.WithLabelValues(string(evt.Type)).Inc()

	for name, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			EventsDroppedTotal.WithLabelValues(name).Inc()
			b.logger.Warn("event-dropped",
				zap.String("subscriber", name),
				zap.String("type", string(evt.Type)))
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for name, ch := range b.subs {
		close(ch)
		delete(b.subs, name)
	}

	b.logger.Info("event-bus-closed")
}
