package deribit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/metrics"
)

// defaultSymbols is the built-in instrument allow-list, used when the
// config does not narrow it.
var defaultSymbols = []string{"BTC-PERPETUAL", "ETH-PERPETUAL"}

// Config holds the endpoints and instrument allow-list for the adapter.
type Config struct {
	BaseURL       string
	WSURL         string
	Symbols       []string
	Depth         int
	MaxReconnects int
}

// Adapter exposes Deribit as a venue: one-shot REST snapshots plus
// streamed replacement books.
type Adapter struct {
	client  *Client
	stream  *Stream
	symbols []string
}

// New creates the Deribit adapter.
func New(cfg Config, logger *slog.Logger) *Adapter {
	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = defaultSymbols
	}
	depth := cfg.Depth
	if depth <= 0 {
		depth = bookChannelDepth
	}
	return &Adapter{
		client:  NewClient(cfg.BaseURL, depth),
		stream:  NewStream(cfg.WSURL, cfg.MaxReconnects, logger),
		symbols: symbols,
	}
}

// Venue returns the venue identifier.
func (a *Adapter) Venue() domain.Venue { return domain.VenueDeribit }

// FetchSnapshot issues a one-shot book request for the instrument.
func (a *Adapter) FetchSnapshot(ctx context.Context, symbol string) (domain.Orderbook, error) {
	if !a.supported(symbol) {
		return domain.Orderbook{}, fmt.Errorf("deribit: symbol %q: %w", symbol, domain.ErrUnsupportedSymbol)
	}
	return a.client.FetchOrderbook(ctx, symbol)
}

// SubscribeToStream starts streamed book delivery for the instrument.
func (a *Adapter) SubscribeToStream(ctx context.Context, symbol string, onUpdate domain.BookHandler) error {
	if !a.supported(symbol) {
		return fmt.Errorf("deribit: symbol %q: %w", symbol, domain.ErrUnsupportedSymbol)
	}
	return a.stream.Subscribe(ctx, symbol, onUpdate)
}

// Unsubscribe stops streamed delivery for the instrument.
func (a *Adapter) Unsubscribe(symbol string) error {
	return a.stream.Unsubscribe(symbol)
}

// SupportedSymbols returns a copy of the instrument allow-list.
func (a *Adapter) SupportedSymbols() []string {
	out := make([]string, len(a.symbols))
	copy(out, a.symbols)
	return out
}

// SetStatusHandler registers the receiver for stream status changes.
func (a *Adapter) SetStatusHandler(fn domain.StatusHandler) {
	a.stream.SetStatusHandler(fn)
}

// SetMetrics attaches the instrumentation sink for stream-side drops.
// Must be called before the first subscription.
func (a *Adapter) SetMetrics(m *metrics.Metrics) {
	a.stream.SetMetrics(m)
}

// Close tears down the stream connection and all subscriptions.
func (a *Adapter) Close() error {
	return a.stream.Close()
}

func (a *Adapter) supported(symbol string) bool {
	for _, s := range a.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ domain.VenueAdapter = (*Adapter)(nil)
