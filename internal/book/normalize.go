// Package book builds canonical orderbooks from venue-level data and
// holds the latest book per (venue, symbol) key.
package book

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// ParseLevel converts one venue price/quantity pair into a BookLevel.
// Values may arrive as strings (OKX, Bybit) or JSON numbers (Deribit).
// Non-finite values, non-positive prices, and negative quantities wrap
// domain.ErrParse.
func ParseLevel(price, quantity any) (domain.BookLevel, error) {
	p, err := toFloat(price)
	if err != nil {
		return domain.BookLevel{}, fmt.Errorf("price: %w", err)
	}
	q, err := toFloat(quantity)
	if err != nil {
		return domain.BookLevel{}, fmt.Errorf("quantity: %w", err)
	}
	if p <= 0 {
		return domain.BookLevel{}, fmt.Errorf("price %v not positive: %w", p, domain.ErrParse)
	}
	if q < 0 {
		return domain.BookLevel{}, fmt.Errorf("quantity %v negative: %w", q, domain.ErrParse)
	}
	return domain.BookLevel{Price: p, Quantity: q}, nil
}

// toFloat accepts the representations venue payloads actually carry.
func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("number %q: %w", x.String(), domain.ErrParse)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q: %w", x, domain.ErrParse)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported value type %T: %w", v, domain.ErrParse)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value: %w", domain.ErrParse)
	}
	return f, nil
}

// AccumulateTotals returns a copy of levels with Total set to the
// running quantity sum, walked in the order given (best price first).
// Totals are recomputed from Quantity alone, so applying it to an
// already accumulated slice yields the same result. It never reorders;
// callers pre-sort each side (bids descending, asks ascending).
func AccumulateTotals(levels []domain.BookLevel) []domain.BookLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]domain.BookLevel, len(levels))
	var running float64
	for i, lvl := range levels {
		running += lvl.Quantity
		out[i] = domain.BookLevel{Price: lvl.Price, Quantity: lvl.Quantity, Total: running}
	}
	return out
}

// New assembles a canonical Orderbook from pre-sorted sides. It rejects
// sides that are not strictly ordered (bids descending, asks ascending)
// or books whose best bid crosses the best ask, wrapping domain.ErrParse
// so stream handlers can drop the message. Totals are accumulated on
// both sides before the book is returned.
func New(venue domain.Venue, symbol string, timestamp, sequence int64, bids, asks []domain.BookLevel) (domain.Orderbook, error) {
	for i := 1; i < len(bids); i++ {
		if bids[i].Price >= bids[i-1].Price {
			return domain.Orderbook{}, fmt.Errorf("bids not strictly descending at %d (%v >= %v): %w",
				i, bids[i].Price, bids[i-1].Price, domain.ErrParse)
		}
	}
	for i := 1; i < len(asks); i++ {
		if asks[i].Price <= asks[i-1].Price {
			return domain.Orderbook{}, fmt.Errorf("asks not strictly ascending at %d (%v <= %v): %w",
				i, asks[i].Price, asks[i-1].Price, domain.ErrParse)
		}
	}
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price >= asks[0].Price {
		return domain.Orderbook{}, fmt.Errorf("crossed book (bid %v >= ask %v): %w",
			bids[0].Price, asks[0].Price, domain.ErrParse)
	}
	return domain.Orderbook{
		Symbol:    symbol,
		Venue:     venue,
		Timestamp: timestamp,
		Sequence:  sequence,
		Bids:      AccumulateTotals(bids),
		Asks:      AccumulateTotals(asks),
	}, nil
}
