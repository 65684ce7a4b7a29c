package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/prem-prasad1710/bookd/internal/book"
	"github.com/prem-prasad1710/bookd/internal/domain"
)

// BookMirror mirrors canonical orderbooks into Redis so processes
// without a feed can read books and BBOs. Every write replaces the
// whole book, matching the stream semantics.
//
// Key schema:
//
//	book:{venue}:{symbol}:bids     - sorted set of bid prices (score = price)
//	book:{venue}:{symbol}:asks     - sorted set of ask prices (score = price)
//	book:{venue}:{symbol}:bid:size - hash mapping price -> quantity
//	book:{venue}:{symbol}:ask:size - hash mapping price -> quantity
//	book:{venue}:{symbol}:bbo      - hash with "bid" and "ask" fields
//	book:{venue}:{symbol}:meta     - hash with "ts" and "seq" fields
type BookMirror struct {
	rdb *redis.Client
}

// NewBookMirror creates a BookMirror backed by the given Client.
func NewBookMirror(c *Client) *BookMirror {
	return &BookMirror{rdb: c.Underlying()}
}

func mirrorPrefix(venue domain.Venue, symbol string) string {
	return "book:" + string(venue) + ":" + symbol
}

func bidsKey(p string) string    { return p + ":bids" }
func asksKey(p string) string    { return p + ":asks" }
func bidSizeKey(p string) string { return p + ":bid:size" }
func askSizeKey(p string) string { return p + ":ask:size" }
func bboKey(p string) string     { return p + ":bbo" }
func metaKey(p string) string    { return p + ":meta" }

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetBook atomically replaces the mirrored book for the venue and
// symbol. Existing keys are cleared and repopulated in one transaction.
func (bm *BookMirror) SetBook(ctx context.Context, b domain.Orderbook) error {
	p := mirrorPrefix(b.Venue, b.Symbol)

	pipe := bm.rdb.TxPipeline()
	pipe.Del(ctx, bidsKey(p), asksKey(p), bidSizeKey(p), askSizeKey(p), bboKey(p), metaKey(p))

	for _, lvl := range b.Bids {
		priceStr := fmtFloat(lvl.Price)
		pipe.ZAdd(ctx, bidsKey(p), redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, bidSizeKey(p), priceStr, fmtFloat(lvl.Quantity))
	}
	for _, lvl := range b.Asks {
		priceStr := fmtFloat(lvl.Price)
		pipe.ZAdd(ctx, asksKey(p), redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, askSizeKey(p), priceStr, fmtFloat(lvl.Quantity))
	}

	if bid, ok := b.BestBid(); ok {
		pipe.HSet(ctx, bboKey(p), "bid", fmtFloat(bid.Price))
	}
	if ask, ok := b.BestAsk(); ok {
		pipe.HSet(ctx, bboKey(p), "ask", fmtFloat(ask.Price))
	}

	pipe.HSet(ctx, metaKey(p),
		"ts", strconv.FormatInt(b.Timestamp, 10),
		"seq", strconv.FormatInt(b.Sequence, 10),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s %s: %w", b.Venue, b.Symbol, err)
	}
	return nil
}

// GetBook reconstructs the mirrored book for the venue and symbol,
// re-deriving the cumulative totals. It returns domain.ErrNoBookData
// when no mirror exists.
func (bm *BookMirror) GetBook(ctx context.Context, venue domain.Venue, symbol string) (domain.Orderbook, error) {
	p := mirrorPrefix(venue, symbol)

	pipe := bm.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, bidsKey(p), 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, asksKey(p), 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, bidSizeKey(p))
	askSizeCmd := pipe.HGetAll(ctx, askSizeKey(p))
	metaCmd := pipe.HGetAll(ctx, metaKey(p))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.Orderbook{}, fmt.Errorf("redis: get book %s %s: %w", venue, symbol, err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.Orderbook{}, fmt.Errorf("redis: get book %s %s: %w", venue, symbol, domain.ErrNoBookData)
	}

	out := domain.Orderbook{
		Symbol: symbol,
		Venue:  venue,
	}
	if tsStr, ok := metaVals["ts"]; ok {
		out.Timestamp, _ = strconv.ParseInt(tsStr, 10, 64)
	}
	if seqStr, ok := metaVals["seq"]; ok {
		out.Sequence, _ = strconv.ParseInt(seqStr, 10, 64)
	}

	bidSizes, _ := bidSizeCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	out.Bids = book.AccumulateTotals(levelsFromZ(bidsZ, bidSizes))

	askSizes, _ := askSizeCmd.Result()
	asksZ, _ := asksCmd.Result()
	out.Asks = book.AccumulateTotals(levelsFromZ(asksZ, askSizes))

	return out, nil
}

// GetBBO retrieves the current best bid and ask prices from the BBO
// hash. It returns domain.ErrNoBookData when no mirror exists.
func (bm *BookMirror) GetBBO(ctx context.Context, venue domain.Venue, symbol string) (bestBid, bestAsk float64, err error) {
	p := mirrorPrefix(venue, symbol)
	vals, err := bm.rdb.HGetAll(ctx, bboKey(p)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s %s: %w", venue, symbol, err)
	}
	if len(vals) == 0 {
		return 0, 0, fmt.Errorf("redis: get bbo %s %s: %w", venue, symbol, domain.ErrNoBookData)
	}

	if bidStr, ok := vals["bid"]; ok {
		bestBid, _ = strconv.ParseFloat(bidStr, 64)
	}
	if askStr, ok := vals["ask"]; ok {
		bestAsk, _ = strconv.ParseFloat(askStr, 64)
	}
	return bestBid, bestAsk, nil
}

func levelsFromZ(zs []redis.Z, sizes map[string]string) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(zs))
	for _, z := range zs {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		qty := 0.0
		if sizeStr, exists := sizes[priceStr]; exists {
			qty, _ = strconv.ParseFloat(sizeStr, 64)
		}
		levels = append(levels, domain.BookLevel{
			Price:    z.Score,
			Quantity: qty,
		})
	}
	return levels
}

// Compile-time interface check.
var _ domain.BookMirror = (*BookMirror)(nil)
