package exchange

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parlaytech/updown-arb/pkg/config"
	"github.com/parlaytech/updown-arb/pkg/types"
)

const (
	zeroAddress  = "0x0000000000000000000000000000000000000000"
	usdcDecimals = 6

	polygonChainID = 137
)

// ClobClient submits EIP-712-signed orders to the CLOB with L2 HMAC
// authentication. All requests pass through a local rate limiter.
type ClobClient struct {
	baseURL       string
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string // EOA address (signer)
	proxyAddress  string // proxy wallet (maker/funder), optional
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// ClobConfig holds CLOB client configuration.
type ClobConfig struct {
	BaseURL      string
	Credentials  *config.Credentials
	RequestsPerS float64
	Logger       *zap.Logger
}

// NewClobClient creates a CLOB client from trading credentials.
func NewClobClient(cfg *ClobConfig) (*ClobClient, error) {
	creds := cfg.Credentials
	if creds == nil {
		return nil, fmt.Errorf("credentials required")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := creds.Address
	if address == "" {
		publicKey, _ := privateKey.Public().(*ecdsa.PublicKey)
		address = crypto.PubkeyToAddress(*publicKey).Hex()
	}

	rps := cfg.RequestsPerS
	if rps <= 0 {
		rps = 10
	}

	return &ClobClient{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        creds.APIKey,
		secret:        creds.Secret,
		passphrase:    creds.Passphrase,
		privateKey:    privateKey,
		address:       address,
		proxyAddress:  creds.ProxyAddress,
		signatureType: model.SignatureType(creds.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(rps), int(rps)*2),
		logger:        cfg.Logger,
	}, nil
}

// Address returns the signing EOA address.
func (c *ClobClient) Address() string {
	return c.address
}

// PlaceOrder signs and submits one order at its exact limit price. The
// returned outcome classifies the venue's response; a non-nil error
// means the submission itself failed and fill state is unknown.
func (c *ClobClient) PlaceOrder(ctx context.Context, order types.Order) (types.OrderOutcome, error) {
	signed, err := c.buildSignedOrder(order)
	if err != nil {
		return types.OrderOutcome{}, fmt.Errorf("build order: %w", err)
	}

	request := types.OrderSubmissionRequest{
		Order:     *signed,
		Owner:     c.apiKey,
		OrderType: string(order.Type),
	}

	body, err := json.Marshal(request)
	if err != nil {
		return types.OrderOutcome{}, fmt.Errorf("marshal request: %w", err)
	}

	OrdersSubmittedTotal.WithLabelValues(string(order.Side), string(order.Type)).Inc()

	respBody, statusCode, err := c.do(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return types.OrderOutcome{}, err
	}

	var resp types.OrderSubmissionResponse
	err = json.Unmarshal(respBody, &resp)
	if err != nil {
		return types.OrderOutcome{}, fmt.Errorf("parse order response (status %d): %w", statusCode, err)
	}

	outcome := classifyResponse(order, statusCode, &resp)
	OrderOutcomesTotal.WithLabelValues(string(outcome.Kind)).Inc()

	c.logger.Debug("order-submitted",
		zap.String("token", order.TokenID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("size", order.Size.String()),
		zap.String("outcome", string(outcome.Kind)),
		zap.String("order-id", outcome.OrderID))

	return outcome, nil
}

// classifyResponse maps the venue response onto an order outcome.
// FOK kills and other rejections are Failed; a resting order is Live,
// which callers must treat as an anomaly for FOK entries.
func classifyResponse(order types.Order, statusCode int, resp *types.OrderSubmissionResponse) types.OrderOutcome {
	if resp.ErrorMsg != "" || !resp.Success {
		reason := resp.ErrorMsg
		if reason == "" {
			reason = fmt.Sprintf("submission rejected (status %d)", statusCode)
		}
		return types.Failed(reason)
	}

	switch resp.Status {
	case "matched":
		size, cost := filledAmounts(order, resp)
		return types.Matched(resp.OrderID, size, cost)
	case "live", "delayed":
		return types.Live(resp.OrderID)
	case "unmatched":
		return types.Failed(types.ClobErrOrderUnmatched)
	default:
		return types.Failed(fmt.Sprintf("unexpected order status %q", resp.Status))
	}
}

// filledAmounts extracts fill size and USD cost from a matched response.
// On a BUY the making amount is USDC spent and the taking amount is
// shares received; a SELL is the mirror. Falls back to the order's own
// numbers when the venue omits amounts, since FOK fills at the limit.
func filledAmounts(order types.Order, resp *types.OrderSubmissionResponse) (size, cost decimal.Decimal) {
	making, errM := decimal.NewFromString(resp.MakingAmount)
	taking, errT := decimal.NewFromString(resp.TakingAmount)
	if errM != nil || errT != nil || making.IsZero() || taking.IsZero() {
		return order.Size, order.Notional()
	}

	if order.Side == types.SideBuy {
		return taking, making
	}
	return making, taking
}

// CancelOrder cancels a resting order.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}

	_, statusCode, err := c.do(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return err
	}
	if statusCode != http.StatusOK {
		return fmt.Errorf("cancel order %s: status %d", orderID, statusCode)
	}

	CancelsTotal.Inc()
	c.logger.Info("order-cancelled", zap.String("order-id", orderID))
	return nil
}

// GetOrder fetches the current state of an order.
func (c *ClobClient) GetOrder(ctx context.Context, orderID string) (*types.OrderQueryResponse, error) {
	respBody, statusCode, err := c.do(ctx, http.MethodGet, "/data/order/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("get order %s: status %d", orderID, statusCode)
	}

	var resp types.OrderQueryResponse
	err = json.Unmarshal(respBody, &resp)
	if err != nil {
		return nil, fmt.Errorf("parse order query response: %w", err)
	}

	return &resp, nil
}

// GetBook fetches a REST book snapshot for one token. Used for startup
// seeding and the rebalancer's pre-trade depth check.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (*types.TokenBook, error) {
	respBody, statusCode, err := c.doUnsigned(ctx, http.MethodGet, "/book?token_id="+tokenID)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("get book for %s: status %d", tokenID, statusCode)
	}

	var rest types.RestBook
	err = json.Unmarshal(respBody, &rest)
	if err != nil {
		return nil, fmt.Errorf("parse book response: %w", err)
	}

	return restToTokenBook(&rest)
}

// restToTokenBook parses and orders a REST snapshot: bids descending,
// asks ascending.
func restToTokenBook(rest *types.RestBook) (*types.TokenBook, error) {
	book := &types.TokenBook{}

	for _, lvl := range rest.Bids {
		parsed, err := types.ParseLevel(types.PriceLevel{Price: lvl.Price, Size: lvl.Size})
		if err != nil {
			return nil, fmt.Errorf("parse bid level: %w", err)
		}
		book.Bids = append(book.Bids, parsed)
	}
	for _, lvl := range rest.Asks {
		parsed, err := types.ParseLevel(types.PriceLevel{Price: lvl.Price, Size: lvl.Size})
		if err != nil {
			return nil, fmt.Errorf("parse ask level: %w", err)
		}
		book.Asks = append(book.Asks, parsed)
	}

	sort.Slice(book.Bids, func(i, j int) bool {
		return book.Bids[i].Price.GreaterThan(book.Bids[j].Price)
	})
	sort.Slice(book.Asks, func(i, j int) bool {
		return book.Asks[i].Price.LessThan(book.Asks[j].Price)
	})

	return book, nil
}

// buildSignedOrder converts the order into a signed exchange order.
// Maker and taker amounts are 6-decimal base units: buying spends USDC
// for shares, selling spends shares for USDC.
func (c *ClobClient) buildSignedOrder(order types.Order) (*types.SignedOrderJSON, error) {
	makerAddress := c.address
	if c.proxyAddress != "" {
		makerAddress = c.proxyAddress
	}

	var makerAmount, takerAmount string
	if order.Side == types.SideBuy {
		makerAmount = toRawUnits(order.Notional())
		takerAmount = toRawUnits(order.Size)
	} else {
		makerAmount = toRawUnits(order.Size)
		takerAmount = toRawUnits(order.Notional())
	}

	side := model.BUY
	if order.Side == types.SideSell {
		side = model.SELL
	}

	orderData := &model.OrderData{
		Maker:         makerAddress,
		Taker:         zeroAddress,
		TokenId:       order.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, orderData, model.CTFExchange)
	if err != nil {
		return nil, err
	}

	sideStr := string(types.SideBuy)
	if signed.Side.Uint64() == uint64(model.SELL) {
		sideStr = string(types.SideSell)
	}

	return &types.SignedOrderJSON{
		Salt:          signed.Salt.Int64(),
		Maker:         signed.Maker.Hex(),
		Signer:        signed.Signer.Hex(),
		Taker:         signed.Taker.Hex(),
		TokenID:       signed.TokenId.String(),
		MakerAmount:   signed.MakerAmount.String(),
		TakerAmount:   signed.TakerAmount.String(),
		Side:          sideStr,
		Expiration:    signed.Expiration.String(),
		Nonce:         signed.Nonce.String(),
		FeeRateBps:    signed.FeeRateBps.String(),
		SignatureType: int(signed.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(signed.Signature),
	}, nil
}

// do performs an authenticated request with L2 HMAC headers.
func (c *ClobClient) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	waitStart := time.Now()
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}
	RateLimitWaitDuration.Observe(time.Since(waitStart).Seconds())

	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	signature, err := c.hmacSignature(timestamp, method, path, body)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	return c.send(req, method+" "+endpointLabel(path))
}

// doUnsigned performs a public request without auth headers.
func (c *ClobClient) doUnsigned(ctx context.Context, method, path string) ([]byte, int, error) {
	waitStart := time.Now()
	err := c.limiter.Wait(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}
	RateLimitWaitDuration.Observe(time.Since(waitStart).Seconds())

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req, method+" "+endpointLabel(path))
}

func (c *ClobClient) send(req *http.Request, endpoint string) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestErrorsTotal.WithLabelValues(endpoint).Inc()
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		RequestErrorsTotal.WithLabelValues(endpoint).Inc()
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// hmacSignature builds the L2 auth signature: URL-safe base64 HMAC-SHA256
// over timestamp + method + path + body, keyed by the base64 secret.
func (c *ClobClient) hmacSignature(timestamp, method, path string, body []byte) (string, error) {
	secretBytes, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(timestamp + method + path + string(body)))
	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

// endpointLabel strips query strings and IDs for metric labels.
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if strings.HasPrefix(path, "/data/order/") {
		return "/data/order"
	}
	return path
}

// toRawUnits converts a USD or share amount to 6-decimal base units.
func toRawUnits(d decimal.Decimal) string {
	return d.Shift(usdcDecimals).Truncate(0).String()
}
