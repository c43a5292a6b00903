// Package polymarket speaks the venue's two REST surfaces (gamma for
// market discovery, CLOB for order books) and its streaming market
// channel. Every REST call is gated by the circuit breaker and rate
// limiter before it touches the network.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hollowc2/polymarket-auto-trader/internal/domain"
	"github.com/hollowc2/polymarket-auto-trader/internal/infra"
	"github.com/hollowc2/polymarket-auto-trader/internal/resilience"
)

const (
	// defaultFeeBps is used when the gamma payload carries no
	// takerBaseFee: 1000 bps base rate, the venue's typical taker fee.
	defaultFeeBps int64 = 1000

	userAgent = "polymarket-auto-trader/1.0"
)

// Client is the read-only REST client for Polymarket. No auth needed
// for market data.
type Client struct {
	gammaURL   string
	clobURL    string
	slugPrefix string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	limiter    *resilience.RateLimiter
	logger     *slog.Logger
}

var _ domain.MarketClient = (*Client)(nil)

// NewClient creates a gated Polymarket REST client.
func NewClient(cfg *infra.Config, breaker *resilience.CircuitBreaker, limiter *resilience.RateLimiter) *Client {
	return &Client{
		gammaURL:   cfg.API.GammaURL,
		clobURL:    cfg.API.ClobURL,
		slugPrefix: cfg.MarketData.SlugPrefix,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.API.TimeoutSec) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		breaker: breaker,
		limiter: limiter,
		logger:  slog.Default().With("module", "polymarket_client"),
	}
}

// GetMarket fetches the up/down market for a window via the gamma
// events endpoint. Returns ErrMarketNotFound when the venue has no
// market for the slug (yet).
func (c *Client) GetMarket(ctx context.Context, windowStart int64) (*domain.Market, error) {
	slug := Slug(c.slugPrefix, windowStart)
	query := url.Values{"slug": {slug}}

	body, err := c.doGet(ctx, "get_market", c.gammaURL, "/events", query)
	if err != nil {
		return nil, err
	}

	var events []gammaEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, domain.NewValidationError("get_market", "body", err)
	}
	if len(events) == 0 || len(events[0].Markets) == 0 {
		return nil, fmt.Errorf("get_market %s: %w", slug, domain.ErrMarketNotFound)
	}

	market, err := events[0].Markets[0].toDomain(windowStart, slug)
	if err != nil {
		return nil, err
	}
	return market, nil
}

// GetOrderBook fetches a polled book snapshot for a token via the CLOB
// book endpoint, the fallback path when the feed cache is stale.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*domain.BookState, error) {
	query := url.Values{"token_id": {tokenID}}

	body, err := c.doGet(ctx, "get_orderbook", c.clobURL, "/book", query)
	if err != nil {
		return nil, err
	}

	var wire clobBook
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, domain.NewValidationError("get_orderbook", "body", err)
	}

	book := &domain.BookState{
		AssetID:    tokenID,
		Bids:       parseLevels(wire.Bids),
		Asks:       parseLevels(wire.Asks),
		LastUpdate: time.Now(),
		Source:     "rest",
	}
	book.SortLadders()
	book.Recalculate()
	return book, nil
}

// GetMidpoint fetches the CLOB midpoint quote for a token.
func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (string, error) {
	query := url.Values{"token_id": {tokenID}}

	body, err := c.doGet(ctx, "get_midpoint", c.clobURL, "/midpoint", query)
	if err != nil {
		return "", err
	}

	var resp struct {
		Mid string `json:"mid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domain.NewValidationError("get_midpoint", "body", err)
	}
	return resp.Mid, nil
}

// doGet runs one gated GET: limiter first (local budget, cheapest
// check), then breaker, then the network. Transport and HTTP failures
// feed the breaker; a parse failure after a 2xx does not.
func (c *Client) doGet(ctx context.Context, op, baseURL, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		infra.GlobalMetrics.RecordRateLimited()
		return nil, fmt.Errorf("%s: %w (retry in %s)", op, domain.ErrRateLimited, c.limiter.WaitTime())
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, fmt.Errorf("%s: %w", op, domain.ErrCircuitOpen)
	}

	body, err := c.fetch(ctx, op, baseURL, path, query)
	if c.breaker != nil {
		if err != nil {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	return body, err
}

func (c *Client) fetch(ctx context.Context, op, baseURL, path string, query url.Values) ([]byte, error) {
	reqURL := baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, domain.NewTimeoutError(op, err)
		}
		return nil, domain.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, domain.NewNetworkError(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &domain.APIError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		c.logger.Warn("API request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
