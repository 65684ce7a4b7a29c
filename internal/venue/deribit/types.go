package deribit

import (
	"fmt"
	"strings"
	"time"

	"github.com/prem-prasad1710/bookd/internal/book"
	"github.com/prem-prasad1710/bookd/internal/domain"
)

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcRequest is an outbound JSON-RPC 2.0 frame.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

// rpcParams carries the channel list for subscribe and unsubscribe.
type rpcParams struct {
	Channels []string `json:"channels,omitempty"`
}

// bookResponse is the envelope for public/get_order_book.
type bookResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  *bookData `json:"result"`
	Error   *rpcError `json:"error"`
}

// bookData is one Deribit book payload, shared by REST and the book
// stream. Levels arrive as [price, amount] number pairs, bids
// descending and asks ascending.
type bookData struct {
	InstrumentName string      `json:"instrument_name"`
	Bids           [][]float64 `json:"bids"`
	Asks           [][]float64 `json:"asks"`
	Timestamp      int64       `json:"timestamp"`
	ChangeID       int64       `json:"change_id"`
}

// wsEnvelope is the inbound stream frame. Subscription notifications
// carry method and params; RPC replies carry id, result, or error.
type wsEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  struct {
		Channel string   `json:"channel"`
		Data    bookData `json:"data"`
	} `json:"params"`
	ID    int64     `json:"id"`
	Error *rpcError `json:"error"`
}

// channelFor builds the depth-limited book channel for an instrument,
// e.g. "book.BTC-PERPETUAL.none.20.100ms". That channel form delivers
// the full top of book on every notification.
func channelFor(instrument string) string {
	return fmt.Sprintf("book.%s.none.%d.100ms", instrument, bookChannelDepth)
}

// symbolFromChannel extracts the instrument from a book channel.
func symbolFromChannel(channel string) (string, bool) {
	parts := strings.Split(channel, ".")
	if len(parts) != 5 || parts[0] != "book" {
		return "", false
	}
	return parts[1], true
}

// toBook normalizes one Deribit book payload into a canonical orderbook.
func toBook(symbol string, d bookData) (domain.Orderbook, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("asks: %w", err)
	}

	ts := d.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return book.New(domain.VenueDeribit, symbol, ts, d.ChangeID, bids, asks)
}

func parseLevels(raw [][]float64) ([]domain.BookLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]domain.BookLevel, 0, len(raw))
	for i, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level %d has %d fields: %w", i, len(entry), domain.ErrParse)
		}
		lvl, err := book.ParseLevel(entry[0], entry[1])
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}
