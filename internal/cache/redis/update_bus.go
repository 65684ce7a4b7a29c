package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// updateStream is the durable tail of published book updates, trimmed
// via XADD MAXLEN ~.
const (
	updateStream       = "bookd:updates"
	streamMaxLen int64 = 10000
	updateChanPrefix   = "books."
)

// UpdateBus implements domain.UpdateBus using Redis Pub/Sub for
// ephemeral fan-out plus a capped stream for consumers that replay.
type UpdateBus struct {
	rdb *redis.Client
}

// NewUpdateBus creates an UpdateBus backed by the given Client.
func NewUpdateBus(c *Client) *UpdateBus {
	return &UpdateBus{rdb: c.Underlying()}
}

// updatePayload is the wire form of one published book update. Levels
// are [price, quantity] pairs.
type updatePayload struct {
	Venue     string       `json:"venue"`
	Symbol    string       `json:"symbol"`
	Timestamp int64        `json:"timestamp"`
	Sequence  int64        `json:"sequence"`
	BestBid   float64      `json:"best_bid,omitempty"`
	BestAsk   float64      `json:"best_ask,omitempty"`
	Bids      [][2]float64 `json:"bids"`
	Asks      [][2]float64 `json:"asks"`
	Received  time.Time    `json:"received"`
}

// PublishUpdate broadcasts one book update on the per-book channel
// ("books.{venue}.{symbol}") and appends it to the update stream.
func (ub *UpdateBus) PublishUpdate(ctx context.Context, update domain.BookUpdate) error {
	b := update.Book

	payload := updatePayload{
		Venue:     string(b.Venue),
		Symbol:    b.Symbol,
		Timestamp: b.Timestamp,
		Sequence:  b.Sequence,
		Bids:      pairs(b.Bids),
		Asks:      pairs(b.Asks),
		Received:  update.Received,
	}
	if bid, ok := b.BestBid(); ok {
		payload.BestBid = bid.Price
	}
	if ask, ok := b.BestAsk(); ok {
		payload.BestAsk = ask.Price
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal update %s %s: %w", b.Venue, b.Symbol, err)
	}

	channel := updateChanPrefix + string(b.Venue) + "." + b.Symbol
	if err := ub.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}

	args := &redis.XAddArgs{
		Stream: updateStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": data,
		},
	}
	if err := ub.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", updateStream, err)
	}
	return nil
}

func pairs(levels []domain.BookLevel) [][2]float64 {
	out := make([][2]float64, len(levels))
	for i, lvl := range levels {
		out[i] = [2]float64{lvl.Price, lvl.Quantity}
	}
	return out
}

// Compile-time interface check.
var _ domain.UpdateBus = (*UpdateBus)(nil)
