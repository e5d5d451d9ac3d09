package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/parlaytech/updown-arb/pkg/config"
	"github.com/parlaytech/updown-arb/pkg/types"
)

// Anvil's well-known first dev key. Never funded on mainnet.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testClient(t *testing.T, baseURL string) *ClobClient {
	t.Helper()

	client, err := NewClobClient(&ClobConfig{
		BaseURL: baseURL,
		Credentials: &config.Credentials{
			APIKey:     "test-api-key",
			Secret:     "dGVzdC1zZWNyZXQ=",
			Passphrase: "test-pass",
			PrivateKey: testPrivateKey,
		},
		RequestsPerS: 100,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return client
}

func buyOrder() types.Order {
	return types.Order{
		TokenID: "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		Side:    types.SideBuy,
		Price:   decimal.RequireFromString("0.48"),
		Size:    decimal.RequireFromString("10.41"),
		Type:    types.OrderFOK,
	}
}

func TestPlaceOrder_Matched(t *testing.T) {
	var gotRequest types.OrderSubmissionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("POLY_API_KEY"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.NotEmpty(t, r.Header.Get("POLY_TIMESTAMP"))
		assert.Equal(t, "test-pass", r.Header.Get("POLY_PASSPHRASE"))
		assert.NotEmpty(t, r.Header.Get("POLY_ADDRESS"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		_ = json.NewEncoder(w).Encode(types.OrderSubmissionResponse{
			Success:      true,
			OrderID:      "0xabc123",
			Status:       "matched",
			MakingAmount: "4.9968",
			TakingAmount: "10.41",
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	outcome, err := client.PlaceOrder(context.Background(), buyOrder())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeMatched, outcome.Kind)
	assert.Equal(t, "0xabc123", outcome.OrderID)
	assert.Equal(t, "10.41", outcome.FilledSize.String())
	assert.Equal(t, "4.9968", outcome.FilledCost.String())

	// The signed order must carry the exact limit economics: at $0.48 a
	// 10.41-share buy spends 4.9968 USDC in 6-decimal base units.
	assert.Equal(t, "FOK", gotRequest.OrderType)
	assert.Equal(t, "test-api-key", gotRequest.Owner)
	assert.Equal(t, "4996800", gotRequest.Order.MakerAmount)
	assert.Equal(t, "10410000", gotRequest.Order.TakerAmount)
	assert.Equal(t, "BUY", gotRequest.Order.Side)
	assert.NotEmpty(t, gotRequest.Order.Signature)
}

func TestPlaceOrder_FOKKill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.OrderSubmissionResponse{
			Success:  false,
			ErrorMsg: types.ClobErrFOKNotFilled,
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	outcome, err := client.PlaceOrder(context.Background(), buyOrder())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeFailed, outcome.Kind)
	assert.Equal(t, types.ClobErrFOKNotFilled, outcome.Reason)
}

func TestPlaceOrder_Live(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.OrderSubmissionResponse{
			Success: true,
			OrderID: "0xresting",
			Status:  "live",
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	outcome, err := client.PlaceOrder(context.Background(), buyOrder())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeLive, outcome.Kind)
	assert.Equal(t, "0xresting", outcome.OrderID)
}

func TestPlaceOrder_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := testClient(t, server.URL)

	_, err := client.PlaceOrder(context.Background(), buyOrder())
	assert.Error(t, err)
}

func TestPlaceOrder_SellAmounts(t *testing.T) {
	var gotRequest types.OrderSubmissionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		_ = json.NewEncoder(w).Encode(types.OrderSubmissionResponse{
			Success: true,
			OrderID: "0xsell",
			Status:  "live",
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	order := types.Order{
		TokenID: "123",
		Side:    types.SideSell,
		Price:   decimal.RequireFromString("0.99"),
		Size:    decimal.RequireFromString("10.41"),
		Type:    types.OrderGTC,
	}

	_, err := client.PlaceOrder(context.Background(), order)
	require.NoError(t, err)

	// Selling 10.41 shares at $0.99: maker gives shares, taker pays USDC.
	assert.Equal(t, "GTC", gotRequest.OrderType)
	assert.Equal(t, "10410000", gotRequest.Order.MakerAmount)
	assert.Equal(t, "10305900", gotRequest.Order.TakerAmount)
	assert.Equal(t, "SELL", gotRequest.Order.Side)
}

func TestCancelOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/order", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xabc", body["orderID"])

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	assert.NoError(t, client.CancelOrder(context.Background(), "0xabc"))
}

func TestGetBook_Ordering(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok1", r.URL.Query().Get("token_id"))

		_ = json.NewEncoder(w).Encode(types.RestBook{
			AssetID: "tok1",
			Bids: []types.RestBookLevel{
				{Price: "0.45", Size: "100"},
				{Price: "0.47", Size: "50"},
			},
			Asks: []types.RestBookLevel{
				{Price: "0.52", Size: "30"},
				{Price: "0.49", Size: "80"},
			},
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	book, err := client.GetBook(context.Background(), "tok1")
	require.NoError(t, err)

	best, ok := book.Bids.Best()
	require.True(t, ok)
	assert.Equal(t, "0.47", best.Price.String())

	best, ok = book.Asks.Best()
	require.True(t, ok)
	assert.Equal(t, "0.49", best.Price.String())
}

func TestToRawUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0.48", "480000"},
		{"10.41", "10410000"},
		{"4.9968", "4996800"},
		{"0", "0"},
		{"1", "1000000"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, toRawUnits(decimal.RequireFromString(tt.in)))
	}
}
