package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/internal/events"
	"github.com/parlaytech/updown-arb/pkg/types"
)

const testSlot = int64(1700000100) // multiple of 900

func gammaMarketJSON(slug string) string {
	return fmt.Sprintf(`[{
		"id": "500001",
		"slug": %q,
		"question": "Bitcoin Up or Down?",
		"conditionId": "0xcond-%s",
		"active": true,
		"closed": false,
		"outcomes": "[\"Up\", \"Down\"]",
		"clobTokenIds": "[\"111\", \"222\"]",
		"orderPriceMinTickSize": 0.01,
		"orderMinSize": 5
	}]`, slug, slug)
}

// mapCache is a deterministic stand-in for the ristretto cache, whose
// admissions are asynchronous.
type mapCache struct {
	mu sync.Mutex
	m  map[string]interface{}
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string]interface{})} }

func (c *mapCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(key string, value interface{}, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return true
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]interface{})
}

func (c *mapCache) Close() {}

func newTestFinder(t *testing.T, serverURL string) *Finder {
	t.Helper()

	return New(&Config{
		Client: NewClient(&ClientConfig{
			BaseURL:      serverURL,
			RequestsPerS: 100,
			Logger:       zaptest.NewLogger(t),
		}),
		Cache:    newMapCache(),
		Assets:   []types.Asset{types.AssetBTC},
		Interval: time.Hour, // refreshes driven manually in tests
		Logger:   zaptest.NewLogger(t),
	})
}

func TestCurrentSlot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		unix int64
		want int64
	}{
		{1700000100, 1700000100}, // exact boundary
		{1700000101, 1700000100},
		{1700000999, 1700000100},
		{1700001000, 1700001000}, // next slot
	}

	for _, tt := range tests {
		got := CurrentSlot(time.Unix(tt.unix, 0))
		assert.Equal(t, tt.want, got, "unix %d", tt.unix)
	}
}

func TestSlotSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "btc-updown-15m-1700000100", SlotSlug(types.AssetBTC, 1700000100))
	assert.Equal(t, "sol-updown-15m-1700000100", SlotSlug(types.AssetSOL, 1700000100))
}

func TestFinder_RefreshDiscoversMarket(t *testing.T) {
	slug := SlotSlug(types.AssetBTC, testSlot)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, slug, r.URL.Query().Get("slug"))
		fmt.Fprint(w, gammaMarketJSON(slug))
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL)

	now := time.Unix(testSlot+60, 0).UTC()
	f.refresh(context.Background(), now)

	select {
	case m := <-f.Discovered():
		assert.Equal(t, types.AssetBTC, m.Asset)
		assert.Equal(t, testSlot, m.SlotTS)
		assert.Equal(t, "111", m.YesTokenID)
		assert.Equal(t, "222", m.NoTokenID)
	default:
		t.Fatal("no market announced")
	}

	m, ok := f.ActiveMarket(types.AssetBTC)
	require.True(t, ok)
	assert.Equal(t, slug, m.Slug)

	// A second refresh inside the same slot is a no-op.
	f.refresh(context.Background(), now.Add(30*time.Second))
	select {
	case <-f.Discovered():
		t.Fatal("market announced twice")
	default:
	}
}

func TestFinder_NotListedYetIsRetried(t *testing.T) {
	slug := SlotSlug(types.AssetBTC, testSlot)

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, "[]")
			return
		}
		fmt.Fprint(w, gammaMarketJSON(slug))
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL)
	now := time.Unix(testSlot+60, 0).UTC()

	f.refresh(context.Background(), now)
	_, ok := f.ActiveMarket(types.AssetBTC)
	assert.False(t, ok)

	f.refresh(context.Background(), now.Add(30*time.Second))
	_, ok = f.ActiveMarket(types.AssetBTC)
	assert.True(t, ok)
	assert.Equal(t, 2, calls)
}

func TestFinder_RetiresEndedMarkets(t *testing.T) {
	oldSlug := SlotSlug(types.AssetBTC, testSlot)
	nextSlot := testSlot + 900
	nextSlug := SlotSlug(types.AssetBTC, nextSlot)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gammaMarketJSON(r.URL.Query().Get("slug")))
	}))
	defer server.Close()

	bus := events.NewBus(zaptest.NewLogger(t))
	sub := bus.Subscribe("test", 8)

	f := newTestFinder(t, server.URL)
	f.bus = bus

	f.refresh(context.Background(), time.Unix(testSlot+60, 0).UTC())
	<-f.Discovered()
	<-sub // discovered event

	// Clock crosses into the next slot: the old window retires and the
	// new one is found in the same refresh.
	f.refresh(context.Background(), time.Unix(nextSlot+60, 0).UTC())

	select {
	case m := <-f.Ended():
		assert.Equal(t, oldSlug, m.Slug)
	default:
		t.Fatal("ended market not announced")
	}

	m, ok := f.ActiveMarket(types.AssetBTC)
	require.True(t, ok)
	assert.Equal(t, nextSlug, m.Slug)

	evt := <-sub
	assert.Equal(t, events.TypeMarketEnded, evt.Type)
	evt = <-sub
	assert.Equal(t, events.TypeMarketDiscovered, evt.Type)
}

func TestFinder_LookupMemoized(t *testing.T) {
	slug := SlotSlug(types.AssetBTC, testSlot)

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, gammaMarketJSON(slug))
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL)

	first, err := f.lookup(context.Background(), types.AssetBTC, testSlot)
	require.NoError(t, err)
	second, err := f.lookup(context.Background(), types.AssetBTC, testSlot)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestFinder_LookupRejectsClosedMarket(t *testing.T) {
	slug := SlotSlug(types.AssetETH, testSlot)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{
			"id": "1", "slug": %q, "conditionId": "0x1",
			"active": true, "closed": true,
			"outcomes": "[\"Up\", \"Down\"]",
			"clobTokenIds": "[\"1\", \"2\"]"
		}]`, slug)
	}))
	defer server.Close()

	f := newTestFinder(t, server.URL)

	_, err := f.lookup(context.Background(), types.AssetETH, testSlot)
	assert.ErrorIs(t, err, types.ErrMarketNotFound)
}
