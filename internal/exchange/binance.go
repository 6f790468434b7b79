// Package exchange provides the Binance spot REST adapter used to fetch
// daily klines and the exchange trading-pair metadata.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production Binance spot API.
	DefaultBaseURL = "https://api.binance.com"

	klinesEndpoint       = "/api/v3/klines"
	exchangeInfoEndpoint = "/api/v3/exchangeInfo"

	// MaxRowsPerRequest is the Binance per-call kline row cap.
	MaxRowsPerRequest = 1000

	// DailyInterval is the only granularity this system fetches.
	DailyInterval = "1d"

	requestTimeout       = 30 * time.Second
	maxRequestsPerSecond = 10
	rateLimitBurst       = 1
)

// ExchangeInfo is the trading-pair metadata payload. Only the pair symbols
// are consumed; the rest of the response is ignored.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo is one trading pair entry from the metadata endpoint.
type SymbolInfo struct {
	Symbol string `json:"symbol"`
}

// Client is a rate-limited Binance spot REST client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	logger      *slog.Logger
}

// NewClient creates a Binance client. An empty baseURL selects production.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(maxRequestsPerSecond), rateLimitBurst),
		baseURL:     baseURL,
		logger:      logger,
	}
}

// Klines fetches daily kline rows for a symbol in [start, end], capped at
// limit rows. Rows come back in the API's native ascending time order as
// fixed-position arrays; positional decoding happens downstream so the raw
// shape is preserved.
func (c *Client) Klines(ctx context.Context, symbol string, start, end time.Time, limit int) ([][]any, error) {
	if limit <= 0 || limit > MaxRowsPerRequest {
		limit = MaxRowsPerRequest
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", DailyInterval)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(limit))

	var rows [][]any
	if err := c.getJSON(ctx, klinesEndpoint, params, &rows); err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	c.logger.Debug("fetched klines",
		"symbol", symbol,
		"start", start,
		"end", end,
		"rows", len(rows),
	)
	return rows, nil
}

// ExchangeInfo fetches the exchange trading-pair metadata.
func (c *Client) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	var info ExchangeInfo
	if err := c.getJSON(ctx, exchangeInfoEndpoint, nil, &info); err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}

	c.logger.Debug("fetched exchange info", "symbols", len(info.Symbols))
	return &info, nil
}

// getJSON performs one rate-limited GET and decodes the JSON body into dst.
// There is no retry; failures surface to the caller, whose policy is to
// fall back or skip.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, dst any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
