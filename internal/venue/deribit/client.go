// Package deribit integrates Deribit market data over JSON-RPC 2.0:
// REST book snapshots and the book stream, normalized into canonical
// orderbooks.
package deribit

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

// Client is the REST client for the Deribit public JSON-RPC API.
type Client struct {
	baseURL    string
	depth      int
	httpClient *http.Client
}

// NewClient creates a Deribit REST client. baseURL is the API root,
// e.g. "https://www.deribit.com". depth is the number of levels
// requested per side.
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
	q.Set("instrument_name", symbol)
	q.Set("depth", fmt.Sprintf("%d", c.depth))
	endpoint := c.baseURL + "/api/v2/public/get_order_book?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("deribit: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("deribit: get orderbook %q: %s: %w", symbol, err, domain.ErrNetwork)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("deribit: read response: %s: %w", err, domain.ErrNetwork)
	}
	// Deribit reports request errors through the JSON-RPC error object
	// on a 400, so only treat other statuses as transport failures.
	if resp.StatusCode != http.StatusBadRequest && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return domain.Orderbook{}, fmt.Errorf("deribit: get orderbook %q: HTTP %d: %w", symbol, resp.StatusCode, domain.ErrNetwork)
	}

	var decoded bookResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return domain.Orderbook{}, fmt.Errorf("deribit: decode orderbook: %s: %w", err, domain.ErrParse)
	}
	if decoded.Error != nil {
		return domain.Orderbook{}, fmt.Errorf("deribit: get orderbook %q: code %d: %s: %w",
			symbol, decoded.Error.Code, decoded.Error.Message, domain.ErrVenueProtocol)
	}
	if decoded.Result == nil {
		return domain.Orderbook{}, fmt.Errorf("deribit: get orderbook %q: missing result: %w", symbol, domain.ErrParse)
	}

	b, err := toBook(symbol, *decoded.Result)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("deribit: normalize orderbook %q: %w", symbol, err)
	}
	return b, nil
}
