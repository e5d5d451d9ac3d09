package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	dataAPIBaseURL     = "https://data-api.polymarket.com"

	usdcDecimals = 6
)

// Client reads wallet state: on-chain USDC balance and allowance via the
// Polygon RPC, and open positions via the data API. The RPC connection is
// dialed once and reused.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	logger     *zap.Logger

	mu  sync.Mutex
	eth *ethclient.Client
}

// Balances holds on-chain balances, USDC amounts converted to USD.
type Balances struct {
	Gas           *big.Int // native token, in wei
	USDC          decimal.Decimal
	USDCAllowance decimal.Decimal
}

// Position is an open position as reported by the data API. Used for
// operator reconciliation against locally recorded trades.
type Position struct {
	ConditionID  string
	MarketSlug   string
	Outcome      string
	Size         decimal.Decimal
	AvgPrice     decimal.Decimal
	CurrentValue decimal.Decimal
	InitialValue decimal.Decimal
	CashPnL      decimal.Decimal
}

type dataAPIPosition struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnL      float64 `json:"cashPnl"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
}

// NewClient creates a wallet client. The RPC is dialed lazily on first use.
func NewClient(rpcURL string, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}, nil
}

// ethClient returns the shared RPC connection, dialing if needed.
func (c *Client) ethClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		return c.eth, nil
	}

	eth, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	c.eth = eth
	return eth, nil
}

// GetBalances fetches the gas balance, USDC balance and exchange allowance.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (*Balances, error) {
	eth, err := c.ethClient(ctx)
	if err != nil {
		return nil, err
	}

	gasBalance, err := eth.BalanceAt(ctx, address, nil)
	if err != nil {
		c.resetConn()
		return nil, fmt.Errorf("get gas balance: %w", err)
	}

	usdcRaw, err := c.callUint256(ctx, eth, polygonUSDC, balanceOfABI, "balanceOf", address)
	if err != nil {
		c.resetConn()
		return nil, fmt.Errorf("get USDC balance: %w", err)
	}

	allowanceRaw, err := c.callUint256(ctx, eth, polygonUSDC, allowanceABI, "allowance",
		address, common.HexToAddress(polygonCTFExchange))
	if err != nil {
		c.resetConn()
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	return &Balances{
		Gas:           gasBalance,
		USDC:          fromRawUSDC(usdcRaw),
		USDCAllowance: fromRawUSDC(allowanceRaw),
	}, nil
}

const (
	balanceOfABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`
	allowanceABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`
)

// callUint256 makes a read-only contract call returning a single uint256.
func (c *Client) callUint256(
	ctx context.Context,
	eth *ethclient.Client,
	contractAddr, abiJSON, method string,
	args ...interface{},
) (*big.Int, error) {
	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	to := common.HexToAddress(contractAddr)
	result, err := eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// resetConn drops the cached RPC connection after a call failure so the
// next call re-dials.
func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

// fromRawUSDC converts raw 6-decimal token units to USD.
func fromRawUSDC(raw *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -usdcDecimals)
}

// GetPositions fetches open positions from the data API.
func (c *Client) GetPositions(ctx context.Context, address string) ([]Position, error) {
	url := fmt.Sprintf("%s/positions?user=%s&sizeThreshold=0.01", dataAPIBaseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data API: status %d", resp.StatusCode)
	}

	var apiPositions []dataAPIPosition
	err = json.NewDecoder(resp.Body).Decode(&apiPositions)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	positions := make([]Position, 0, len(apiPositions))
	for _, pos := range apiPositions {
		if pos.Size <= 0 {
			continue
		}
		positions = append(positions, Position{
			ConditionID:  pos.ConditionID,
			MarketSlug:   pos.Slug,
			Outcome:      pos.Outcome,
			Size:         decimal.NewFromFloat(pos.Size),
			AvgPrice:     decimal.NewFromFloat(pos.AvgPrice),
			CurrentValue: decimal.NewFromFloat(pos.CurrentValue),
			InitialValue: decimal.NewFromFloat(pos.InitialValue),
			CashPnL:      decimal.NewFromFloat(pos.CashPnL),
		})
	}

	return positions, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.resetConn()
}
