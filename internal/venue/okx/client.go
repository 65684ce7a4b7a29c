// Package okx integrates OKX spot market data: REST book snapshots and
// the books5 stream, normalized into canonical orderbooks.
package okx

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

// Client is the REST client for the OKX public market data API.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
}

// NewClient creates an OKX REST client. baseURL is the API root, e.g.
// "https://www.okx.com". depth is the number of levels requested per
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

// FetchOrderbook requests a one-shot book snapshot for the instrument.
func (c *Client) FetchOrderbook(ctx context.Context, symbol string) (domain.Orderbook, error) {
	q := url.Values{}
	q.Set("instId", symbol)
	q.Set("sz", fmt.Sprintf("%d", c.depth))
	endpoint := c.baseURL + "/api/v5/market/books?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("okx: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("okx: get orderbook %q: %s: %w", symbol, err, domain.ErrNetwork)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("okx: read response: %s: %w", err, domain.ErrNetwork)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Orderbook{}, fmt.Errorf("okx: get orderbook %q: HTTP %d: %w", symbol, resp.StatusCode, domain.ErrNetwork)
	}

	var decoded booksResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.Orderbook{}, fmt.Errorf("okx: decode orderbook: %s: %w", err, domain.ErrParse)
	}
	if decoded.Code != "" && decoded.Code != "0" {
		return domain.Orderbook{}, fmt.Errorf("okx: get orderbook %q: code %s: %s: %w",
			symbol, decoded.Code, decoded.Msg, domain.ErrVenueProtocol)
	}
	if len(decoded.Data) == 0 {
		return domain.Orderbook{}, fmt.Errorf("okx: get orderbook %q: empty data: %w", symbol, domain.ErrParse)
	}

	b, err := toBook(symbol, decoded.Data[0])
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("okx: normalize orderbook %q: %w", symbol, err)
	}
	return b, nil
}
