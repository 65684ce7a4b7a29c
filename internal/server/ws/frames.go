package ws

import (
	"time"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// Outgoing frame shapes. Field names match the REST API DTOs so clients see
// one schema for books regardless of transport.

type levelJSON struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

type bookJSON struct {
	Type      string      `json:"type"`
	Venue     string      `json:"venue"`
	Symbol    string      `json:"symbol"`
	Timestamp int64       `json:"timestamp"`
	Sequence  int64       `json:"sequence,omitempty"`
	Bids      []levelJSON `json:"bids"`
	Asks      []levelJSON `json:"asks"`
	MidPrice  float64     `json:"mid_price"`
	Spread    float64     `json:"spread"`
}

type statusJSON struct {
	Type    string `json:"type"`
	Venue   string `json:"venue"`
	Status  string `json:"status"`
	Attempt int    `json:"attempt,omitempty"`
	Detail  string `json:"detail,omitempty"`
	At      string `json:"at"`
}

func toLevelJSON(levels []domain.BookLevel) []levelJSON {
	out := make([]levelJSON, len(levels))
	for i, l := range levels {
		out[i] = levelJSON{Price: l.Price, Quantity: l.Quantity, Total: l.Total}
	}
	return out
}

func bookFrame(b domain.Orderbook) bookJSON {
	return bookJSON{
		Type:      "orderbook",
		Venue:     string(b.Venue),
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp,
		Sequence:  b.Sequence,
		Bids:      toLevelJSON(b.Bids),
		Asks:      toLevelJSON(b.Asks),
		MidPrice:  b.MidPrice(),
		Spread:    b.Spread(),
	}
}

func statusFrame(ev domain.FeedStatusEvent) statusJSON {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return statusJSON{
		Type:    "status",
		Venue:   string(ev.Venue),
		Status:  string(ev.Status),
		Attempt: ev.Attempt,
		Detail:  ev.Detail,
		At:      at.UTC().Format(time.RFC3339),
	}
}
