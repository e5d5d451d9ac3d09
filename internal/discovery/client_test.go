package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/pkg/types"
)

func newGammaClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(&ClientConfig{
		BaseURL:      baseURL,
		RequestsPerS: 100,
		Logger:       zaptest.NewLogger(t),
	})
}

func TestClient_MarketBySlug(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, gammaMarketJSON("eth-updown-15m-1700000100"))
	}))
	defer server.Close()

	client := newGammaClient(t, server.URL)

	gm, err := client.MarketBySlug(context.Background(), "eth-updown-15m-1700000100")
	require.NoError(t, err)

	assert.Equal(t, "eth-updown-15m-1700000100", gm.Slug)
	require.Len(t, gm.Tokens, 2)
	assert.Equal(t, "Up", gm.Tokens[0].Outcome)
	assert.Equal(t, "111", gm.Tokens[0].TokenID)
}

func TestClient_MarketBySlug_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	}))
	defer server.Close()

	client := newGammaClient(t, server.URL)

	_, err := client.MarketBySlug(context.Background(), "btc-updown-15m-1700000100")
	assert.ErrorIs(t, err, types.ErrMarketNotFound)
}

func TestClient_MarketBySlug_WrongSlugIgnored(t *testing.T) {
	// Gamma slug filtering is a prefix match in some deployments; an
	// inexact result must not be accepted.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gammaMarketJSON("btc-updown-15m-1700001000"))
	}))
	defer server.Close()

	client := newGammaClient(t, server.URL)

	_, err := client.MarketBySlug(context.Background(), "btc-updown-15m-1700000100")
	assert.ErrorIs(t, err, types.ErrMarketNotFound)
}

func TestClient_MarketBySlug_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newGammaClient(t, server.URL)

	_, err := client.MarketBySlug(context.Background(), "btc-updown-15m-1700000100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
