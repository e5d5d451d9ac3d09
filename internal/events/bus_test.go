package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	ch := bus.Subscribe("alerter", 4)

	bus.Publish(Event{
		Type:        TypeTradeRecorded,
		Asset:       "BTC",
		ConditionID: "0xcond",
		Detail:      "filled 20.61 pairs",
	})

	select {
	case evt := <-ch:
		assert.Equal(t, TypeTradeRecorded, evt.Type)
		assert.Equal(t, "BTC", evt.Asset)
		assert.False(t, evt.At.IsZero(), "publish should stamp At")
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestBusFullBufferDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	bus := NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	ch := bus.Subscribe("slow", 1)

	done := make(chan struct{})
	go func() {
		// Second publish must not block even though nobody reads.
		bus.Publish(Event{Type: TypeMarketStale})
		bus.Publish(Event{Type: TypeMarketStale})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber buffer")
	}

	// Exactly one event made it through.
	require.Len(t, ch, 1)
}

func TestBusFanOut(t *testing.T) {
	t.Parallel()

	bus := NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	a := bus.Subscribe("a", 2)
	b := bus.Subscribe("b", 2)

	bus.Publish(Event{Type: TypeCircuitBreakerChanged, Detail: "NORMAL -> WARNING"})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case evt := <-ch:
			assert.Equal(t, TypeCircuitBreakerChanged, evt.Type, "subscriber %s", name)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	bus := NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	ch := bus.Subscribe("gone", 1)
	bus.Unsubscribe("gone")

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Publishing to no subscribers is a no-op.
	bus.Publish(Event{Type: TypeRebalanced})
}

func TestBusPublishAfterClose(t *testing.T) {
	t.Parallel()

	bus := NewBus(zaptest.NewLogger(t))
	ch := bus.Subscribe("x", 1)

	bus.Close()

	// Must not panic on a closed channel.
	bus.Publish(Event{Type: TypeBlackoutEntered})
	bus.Close()

	_, open := <-ch
	assert.False(t, open)
}
