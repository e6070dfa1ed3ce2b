// Package market fetches coin prices from a CoinGecko-compatible API.
//
// Only one endpoint is used:
//
//	GET {base}/coins/markets?vs_currency=usd&per_page=100&page=1
//
// which returns a JSON array ordered by market cap. Each element carries far
// more fields than we need; we decode name, current_price and market_cap and
// ignore the rest.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/coin-tracker/internal/apperror"
)

const (
	// DefaultBaseURL is the public CoinGecko API.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	defaultVsCurrency = "usd"
	defaultPageSize   = 100
	defaultTimeout    = 10 * time.Second

	// maxBodyBytes bounds how much of a response we read. 250 coins with
	// every field is well under 1 MiB.
	maxBodyBytes = 4 << 20
)

// Quote is one coin as reported by the provider. A nil price or market cap
// means the provider sent null.
type Quote struct {
	Name         string   `json:"name"`
	CurrentPrice *float64 `json:"current_price"`
	MarketCap    *float64 `json:"market_cap"`
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	VsCurrency string
	PageSize   int
	Timeout    time.Duration
}

// Client talks to the provider.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	vsCurrency string
	pageSize   int
}

// NewClient creates a Client. The HTTP client gets opts.Timeout so a hung
// provider fails the fetch instead of blocking it forever.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.VsCurrency == "" {
		opts.VsCurrency = defaultVsCurrency
	}
	if opts.PageSize <= 0 || opts.PageSize > 250 {
		opts.PageSize = defaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		vsCurrency: opts.VsCurrency,
		pageSize:   opts.PageSize,
	}
}

// Fetch downloads the current market snapshot.
//
// Every failure (transport, timeout, non-200 status, unreadable body,
// malformed JSON) returns an error matching apperror.ErrSync. Entries with an
// empty name are skipped.
func (c *Client) Fetch(ctx context.Context) ([]Quote, error) {
	reqURL, err := url.Parse(c.baseURL + "/coins/markets")
	if err != nil {
		return nil, apperror.SyncFailed("invalid price API URL", err)
	}

	q := reqURL.Query()
	q.Set("vs_currency", c.vsCurrency)
	q.Set("per_page", strconv.Itoa(c.pageSize))
	q.Set("page", "1")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, apperror.SyncFailed("building price request failed", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "coin-tracker/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("price API request failed", slog.String("error", err.Error()))
		return nil, apperror.SyncFailed("price API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("price API returned an error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, apperror.SyncFailed("price API error",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperror.SyncFailed("reading price response failed", err)
	}

	var raw []Quote
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Error("price API response is not valid JSON",
			slog.String("error", err.Error()),
		)
		return nil, apperror.SyncFailed("price response malformed", err)
	}

	quotes := make([]Quote, 0, len(raw))
	for _, qt := range raw {
		qt.Name = strings.TrimSpace(qt.Name)
		if qt.Name == "" {
			continue
		}
		quotes = append(quotes, qt)
	}

	c.logger.Debug("fetched market snapshot", slog.Int("quotes", len(quotes)))
	return quotes, nil
}
