package domain

// BookLevel is a single resting liquidity entry on one side of a book.
// Total carries the cumulative quantity at this level plus all
// better-priced levels on the same side. Levels are values; an update
// always builds new slices, it never mutates a level in place.
type BookLevel struct {
	Price    float64
	Quantity float64
	Total    float64
}

// Orderbook is the canonical book for one symbol on one venue. Bids are
// ordered descending by price and asks ascending, each side unique by
// price. Every accepted venue message yields a whole replacement book.
type Orderbook struct {
	Symbol    string
	Venue     Venue
	Timestamp int64 // epoch millis
	Sequence  int64 // venue-assigned update id, observability only
	Bids      []BookLevel
	Asks      []BookLevel
}

// BookKey identifies one book in the store.
type BookKey struct {
	Venue  Venue
	Symbol string
}

func (k BookKey) String() string {
	return string(k.Venue) + ":" + k.Symbol
}

// Key returns the store key for this book.
func (b Orderbook) Key() BookKey {
	return BookKey{Venue: b.Venue, Symbol: b.Symbol}
}

// BestBid returns the highest resting bid, if any.
func (b Orderbook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest resting ask, if any.
func (b Orderbook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Spread returns bestAsk minus bestBid, or 0 when either side is empty.
func (b Orderbook) Spread() float64 {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0
	}
	return ask.Price - bid.Price
}

// MidPrice returns the bid/ask midpoint, or 0 when either side is empty.
func (b Orderbook) MidPrice() float64 {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0
	}
	return (bid.Price + ask.Price) / 2
}

// Trim returns a copy of the book limited to the top n levels per side.
// n <= 0 returns the book unchanged.
func (b Orderbook) Trim(n int) Orderbook {
	if n <= 0 {
		return b
	}
	out := b
	if len(out.Bids) > n {
		out.Bids = out.Bids[:n]
	}
	if len(out.Asks) > n {
		out.Asks = out.Asks[:n]
	}
	return out
}
