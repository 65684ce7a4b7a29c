package bybit

import (
	"fmt"
	"strings"

	"github.com/prem-prasad1710/bookd/internal/book"
	"github.com/prem-prasad1710/bookd/internal/domain"
)

// orderbookResponse is the REST envelope for /v5/market/orderbook. A
// retCode other than zero signals a venue-side error.
type orderbookResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  orderbookResult `json:"result"`
}

// orderbookResult is one Bybit book payload, shared by REST and the
// orderbook stream. Levels arrive as [price, size] string pairs, bids
// descending and asks ascending.
type orderbookResult struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	Ts       int64      `json:"ts"`
	UpdateID int64      `json:"u"`
	Seq      int64      `json:"seq"`
}

// wsCommand is the op frame sent to subscribe, unsubscribe, or ping.
type wsCommand struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// wsEnvelope is the inbound stream frame. Control frames carry op,
// success, and ret_msg; data frames carry a topic plus one book payload.
type wsEnvelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Success bool            `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Op      string          `json:"op"`
	Data    orderbookResult `json:"data"`
}

// topicFor builds the stream topic for a symbol, e.g. "orderbook.50.BTCUSDT".
func topicFor(symbol string) string {
	return fmt.Sprintf("orderbook.%d.%s", bookTopicDepth, symbol)
}

// symbolFromTopic extracts the symbol from an orderbook topic.
func symbolFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, ".")
	if len(parts) != 3 || parts[0] != "orderbook" {
		return "", false
	}
	return parts[2], true
}

// toBook normalizes one Bybit book payload into a canonical orderbook.
// The sequence is taken from seq when present, falling back to the
// update id.
func toBook(symbol string, d orderbookResult, ts int64) (domain.Orderbook, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("asks: %w", err)
	}

	seq := d.Seq
	if seq == 0 {
		seq = d.UpdateID
	}
	return book.New(domain.VenueBybit, symbol, ts, seq, bids, asks)
}

func parseLevels(raw [][]string) ([]domain.BookLevel, error) {
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
