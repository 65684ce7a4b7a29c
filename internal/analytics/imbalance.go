package analytics

import "github.com/prem-prasad1710/bookd/internal/domain"

// DominantSide labels which side of the book holds more resting volume.
type DominantSide string

const (
	DominantBid      DominantSide = "bid"
	DominantAsk      DominantSide = "ask"
	DominantBalanced DominantSide = "balanced"
)

// balancedBand is the |ratio| band still reported as balanced.
const balancedBand = 0.1

// ImbalanceResult summarizes the volume skew of one book.
type ImbalanceResult struct {
	BidTotal     float64
	AskTotal     float64
	Ratio        float64 // (bid-ask)/(bid+ask), in [-1, 1]
	DominantSide DominantSide
}

// ComputeImbalance sums resting quantity per side and derives the
// normalized imbalance ratio. Ratio is 0 when both sides are empty.
func ComputeImbalance(bids, asks []domain.BookLevel) ImbalanceResult {
	var bidTotal, askTotal float64
	for _, l := range bids {
		bidTotal += l.Quantity
	}
	for _, l := range asks {
		askTotal += l.Quantity
	}

	res := ImbalanceResult{
		BidTotal:     bidTotal,
		AskTotal:     askTotal,
		DominantSide: DominantBalanced,
	}
	total := bidTotal + askTotal
	if total == 0 {
		return res
	}
	res.Ratio = (bidTotal - askTotal) / total
	switch {
	case res.Ratio >= balancedBand:
		res.DominantSide = DominantBid
	case res.Ratio <= -balancedBand:
		res.DominantSide = DominantAsk
	}
	return res
}
