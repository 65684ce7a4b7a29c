package handler

import (
	"github.com/prem-prasad1710/bookd/internal/domain"
)

// levelDTO is the wire form of one book level.
type levelDTO struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

// bookDTO is the wire form of a canonical book.
type bookDTO struct {
	Venue     string     `json:"venue"`
	Symbol    string     `json:"symbol"`
	Timestamp int64      `json:"timestamp"`
	Sequence  int64      `json:"sequence,omitempty"`
	Bids      []levelDTO `json:"bids"`
	Asks      []levelDTO `json:"asks"`
	MidPrice  float64    `json:"mid_price"`
	Spread    float64    `json:"spread"`
}

func toLevelDTOs(levels []domain.BookLevel) []levelDTO {
	out := make([]levelDTO, len(levels))
	for i, l := range levels {
		out[i] = levelDTO{Price: l.Price, Quantity: l.Quantity, Total: l.Total}
	}
	return out
}

func toBookDTO(b domain.Orderbook) bookDTO {
	return bookDTO{
		Venue:     string(b.Venue),
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp,
		Sequence:  b.Sequence,
		Bids:      toLevelDTOs(b.Bids),
		Asks:      toLevelDTOs(b.Asks),
		MidPrice:  b.MidPrice(),
		Spread:    b.Spread(),
	}
}
