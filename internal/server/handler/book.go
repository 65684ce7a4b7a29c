package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prem-prasad1710/bookd/internal/analytics"
	"github.com/prem-prasad1710/bookd/internal/domain"
)

// BookService defines what the book handler needs from the service
// layer. Declared locally so the handler package does not depend on the
// concrete service implementation.
type BookService interface {
	GetOrderbook(ctx context.Context, v domain.Venue, symbol string, levels int) (domain.Orderbook, error)
	ListSupportedSymbols(v domain.Venue) ([]string, error)
	Venues() []domain.Venue
}

// BookHandler serves orderbook and analytics endpoints.
type BookHandler struct {
	books  BookService
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler with the given service and
// logger.
func NewBookHandler(books BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		books:  books,
		logger: logger,
	}
}

// GetOrderbook returns the current book for a venue and symbol,
// optionally trimmed to the requested number of levels per side.
// GET /api/orderbook/{venue}/{symbol}?levels=N
func (h *BookHandler) GetOrderbook(w http.ResponseWriter, r *http.Request) {
	v, err := venueParam(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get orderbook")
		return
	}
	symbol := pathParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}
	levels := queryInt(r, "levels", 0)

	b, err := h.books.GetOrderbook(r.Context(), v, symbol, levels)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get orderbook")
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(b))
}

// depthResponse is the wire form of a depth-chart computation.
type depthResponse struct {
	Venue         string        `json:"venue"`
	Symbol        string        `json:"symbol"`
	BidSeries     []depthPoint  `json:"bid_series"`
	AskSeries     []depthPoint  `json:"ask_series"`
	MaxCumulative float64       `json:"max_cumulative"`
	Spread        float64       `json:"spread"`
}

type depthPoint struct {
	Price      float64 `json:"price"`
	Cumulative float64 `json:"cumulative"`
}

func toDepthPoints(points []analytics.DepthPoint) []depthPoint {
	out := make([]depthPoint, len(points))
	for i, p := range points {
		out[i] = depthPoint{Price: p.Price, Cumulative: p.Cumulative}
	}
	return out
}

// GetDepth returns cumulative depth series for charting.
// GET /api/orderbook/{venue}/{symbol}/depth
func (h *BookHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	v, err := venueParam(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get depth")
		return
	}
	symbol := pathParam(r, "symbol")

	b, err := h.books.GetOrderbook(r.Context(), v, symbol, 0)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get depth")
		return
	}

	d := analytics.ComputeDepth(b.Bids, b.Asks)
	writeJSON(w, http.StatusOK, depthResponse{
		Venue:         string(v),
		Symbol:        symbol,
		BidSeries:     toDepthPoints(d.BidSeries),
		AskSeries:     toDepthPoints(d.AskSeries),
		MaxCumulative: d.MaxCumulative,
		Spread:        d.Spread,
	})
}

// imbalanceResponse is the wire form of an imbalance computation.
type imbalanceResponse struct {
	Venue        string  `json:"venue"`
	Symbol       string  `json:"symbol"`
	BidTotal     float64 `json:"bid_total"`
	AskTotal     float64 `json:"ask_total"`
	Ratio        float64 `json:"ratio"`
	DominantSide string  `json:"dominant_side"`
}

// GetImbalance returns the bid/ask volume imbalance for a book.
// GET /api/orderbook/{venue}/{symbol}/imbalance
func (h *BookHandler) GetImbalance(w http.ResponseWriter, r *http.Request) {
	v, err := venueParam(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get imbalance")
		return
	}
	symbol := pathParam(r, "symbol")

	b, err := h.books.GetOrderbook(r.Context(), v, symbol, 0)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "get imbalance")
		return
	}

	im := analytics.ComputeImbalance(b.Bids, b.Asks)
	writeJSON(w, http.StatusOK, imbalanceResponse{
		Venue:        string(v),
		Symbol:       symbol,
		BidTotal:     im.BidTotal,
		AskTotal:     im.AskTotal,
		Ratio:        im.Ratio,
		DominantSide: string(im.DominantSide),
	})
}

// venueInfo describes one venue in the venue list.
type venueInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ListVenues returns all known venues with their enabled state.
// GET /api/venues
func (h *BookHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	enabled := make(map[domain.Venue]bool)
	for _, v := range h.books.Venues() {
		enabled[v] = true
	}

	venues := make([]venueInfo, 0, len(domain.Venues()))
	for _, v := range domain.Venues() {
		venues = append(venues, venueInfo{Name: string(v), Enabled: enabled[v]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": venues})
}

// ListSymbols returns the symbol allow-list for one venue.
// GET /api/venues/{venue}/symbols
func (h *BookHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	v, err := venueParam(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list symbols")
		return
	}

	symbols, err := h.books.ListSupportedSymbols(v)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "list symbols")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"venue":   string(v),
		"symbols": symbols,
	})
}
