package okx

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prem-prasad1710/bookd/internal/book"
	"github.com/prem-prasad1710/bookd/internal/domain"
)

// booksResponse is the REST envelope for /api/v5/market/books. A code
// other than "0" signals a venue-side error.
type booksResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data []bookData `json:"data"`
}

// bookData is one OKX book payload, shared by REST and the books5
// stream. Levels arrive as [price, size, liquidatedOrders, orderCount]
// string arrays, bids descending and asks ascending.
type bookData struct {
	Asks  [][]string `json:"asks"`
	Bids  [][]string `json:"bids"`
	Ts    string     `json:"ts"`
	SeqID int64      `json:"seqId"`
}

// wsArg identifies one stream subscription.
type wsArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// wsCommand is the op frame sent to subscribe or unsubscribe.
type wsCommand struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

// wsEnvelope is the inbound stream frame. Event frames carry event/code/
// msg; data frames carry arg plus one book payload per element.
type wsEnvelope struct {
	Event string     `json:"event"`
	Code  string     `json:"code"`
	Msg   string     `json:"msg"`
	Arg   wsArg      `json:"arg"`
	Data  []bookData `json:"data"`
}

// toBook normalizes one OKX book payload into a canonical orderbook.
func toBook(symbol string, d bookData) (domain.Orderbook, error) {
	bids, err := parseLevels(d.Bids)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(d.Asks)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("asks: %w", err)
	}

	ts, err := strconv.ParseInt(d.Ts, 10, 64)
	if err != nil {
		// Some frames omit ts; fall back to receive time.
		ts = time.Now().UnixMilli()
	}

	return book.New(domain.VenueOKX, symbol, ts, d.SeqID, bids, asks)
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
