// Package analytics provides stateless computations over canonical
// orderbooks: cumulative depth series and bid/ask volume imbalance.
package analytics

import (
	"sort"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// DepthPoint is one step of a cumulative depth series.
type DepthPoint struct {
	Price      float64
	Cumulative float64
}

// DepthResult carries both depth series plus chart bounds.
type DepthResult struct {
	BidSeries     []DepthPoint
	AskSeries     []DepthPoint
	MaxCumulative float64
	Spread        float64
}

// ComputeDepth builds cumulative-volume-by-price series for both sides.
// Inputs are defensively copied and sorted into canonical order (bids
// descending, asks ascending) before accumulating; the caller's slices
// are never reordered or mutated. Spread is 0 when either side is empty.
func ComputeDepth(bids, asks []domain.BookLevel) DepthResult {
	sortedBids := sortSide(bids, func(a, b domain.BookLevel) bool { return a.Price > b.Price })
	sortedAsks := sortSide(asks, func(a, b domain.BookLevel) bool { return a.Price < b.Price })

	res := DepthResult{
		BidSeries: series(sortedBids),
		AskSeries: series(sortedAsks),
	}
	if n := len(res.BidSeries); n > 0 {
		res.MaxCumulative = res.BidSeries[n-1].Cumulative
	}
	if n := len(res.AskSeries); n > 0 && res.AskSeries[n-1].Cumulative > res.MaxCumulative {
		res.MaxCumulative = res.AskSeries[n-1].Cumulative
	}
	if len(sortedBids) > 0 && len(sortedAsks) > 0 {
		res.Spread = sortedAsks[0].Price - sortedBids[0].Price
	}
	return res
}

func sortSide(levels []domain.BookLevel, less func(a, b domain.BookLevel) bool) []domain.BookLevel {
	out := make([]domain.BookLevel, len(levels))
	copy(out, levels)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func series(levels []domain.BookLevel) []DepthPoint {
	if len(levels) == 0 {
		return nil
	}
	pts := make([]DepthPoint, len(levels))
	var running float64
	for i, lvl := range levels {
		running += lvl.Quantity
		pts[i] = DepthPoint{Price: lvl.Price, Cumulative: running}
	}
	return pts
}
