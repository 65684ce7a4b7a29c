// Package bybit integrates Bybit spot market data: REST book snapshots
// and the orderbook stream, normalized into canonical orderbooks.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// Client is the REST client for the Bybit public market data API.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
}

// NewClient creates a Bybit REST client. baseURL is the API root, e.g.
// "https://api.bybit.com". depth is the number of levels requested per
// side.
func NewClient(baseURL string, depth int) *Client {
	return &Client{
		baseURL: baseURL,
		depth:   depth,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchOrderbook requests a one-shot book snapshot for the symbol.
func (c *Client) FetchOrderbook(ctx context.Context, symbol string) (domain.Orderbook, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", symbol)
	q.Set("limit", fmt.Sprintf("%d", c.depth))
	endpoint := c.baseURL + "/v5/market/orderbook?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("bybit: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("bybit: get orderbook %q: %s: %w", symbol, err, domain.ErrNetwork)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("bybit: read response: %s: %w", err, domain.ErrNetwork)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Orderbook{}, fmt.Errorf("bybit: get orderbook %q: HTTP %d: %w", symbol, resp.StatusCode, domain.ErrNetwork)
	}

	var decoded orderbookResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.Orderbook{}, fmt.Errorf("bybit: decode orderbook: %s: %w", err, domain.ErrParse)
	}
	if decoded.RetCode != 0 {
		return domain.Orderbook{}, fmt.Errorf("bybit: get orderbook %q: retCode %d: %s: %w",
			symbol, decoded.RetCode, decoded.RetMsg, domain.ErrVenueProtocol)
	}
	if len(decoded.Result.Bids) == 0 && len(decoded.Result.Asks) == 0 {
		return domain.Orderbook{}, fmt.Errorf("bybit: get orderbook %q: empty result: %w", symbol, domain.ErrParse)
	}

	b, err := toBook(symbol, decoded.Result, decoded.Result.Ts)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("bybit: normalize orderbook %q: %w", symbol, err)
	}
	return b, nil
}
