package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parlaytech/updown-arb/pkg/types"
)

// Client looks up markets on the Polymarket Gamma API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// ClientConfig configures a Gamma API client.
type ClientConfig struct {
	BaseURL      string
	RequestsPerS float64
	Logger       *zap.Logger
}

// NewClient creates a rate-limited Gamma API client.
func NewClient(cfg *ClientConfig) *Client {
	rps := cfg.RequestsPerS
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:  cfg.Logger,
	}
}

// MarketBySlug fetches a single market by its exact slug. Returns
// types.ErrMarketNotFound when the venue has not listed the slug yet,
// which is routine just after a slot boundary.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (*types.GammaMarket, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("slug", slug)
	requestURL := fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "updown-arb/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	LookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gamma status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	// Gamma returns a bare array even for an exact slug match.
	var markets []types.GammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("unmarshal markets: %w", err)
	}

	for i := range markets {
		if markets[i].Slug == slug {
			return &markets[i], nil
		}
	}

	return nil, fmt.Errorf("slug %s: %w", slug, types.ErrMarketNotFound)
}
