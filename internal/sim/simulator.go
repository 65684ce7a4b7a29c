// Package sim estimates the execution outcome of hypothetical orders by
// walking the resting liquidity of a canonical orderbook.
package sim

import (
	"math"
	"math/rand"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// Limit orders that cannot fully execute immediately get a placeholder
// time-to-fill estimate drawn uniformly from [restTimeFloor,
// restTimeFloor+restTimeSpan) seconds. It stands in for a queue-position
// model, nothing more.
const (
	restTimeFloor = 5.0
	restTimeSpan  = 30.0
)

// Outcome is the raw result of one book walk.
type Outcome struct {
	Metrics        domain.ImpactMetrics
	Position       int // index of the last walked level on the walked side
	AffectedLevels []domain.BookLevel
}

// Simulator walks books to produce impact metrics. It never mutates the
// book it is given.
type Simulator struct {
	randFunc func() float64 // injectable for testing, uniform [0,1)
}

// New creates a Simulator with the default random source.
func New() *Simulator {
	return &Simulator{randFunc: rand.Float64}
}

// SetRandFunc overrides the random source used for limit time-to-fill
// estimates. Intended for tests.
func (s *Simulator) SetRandFunc(fn func() float64) {
	if fn != nil {
		s.randFunc = fn
	}
}

// Run evaluates the request against the given book. Buys walk the asks,
// sells walk the bids. The request must already be validated.
//
// Two estimate policies are kept deliberately simple: a limit order's
// AvgFillPrice is the limit price itself rather than a volume-weighted
// average over filled levels, and MarketImpact compares the requested
// quantity against the single best walked level, not total walked depth.
func (s *Simulator) Run(book domain.Orderbook, req domain.OrderSimulation) Outcome {
	levels := book.Asks
	if req.Side == domain.SideSell {
		levels = book.Bids
	}

	var (
		remaining = req.Quantity
		cost      float64
		position  int
		affected  []domain.BookLevel
	)

	for i, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if req.OrderType == domain.OrderTypeLimit && !marketable(req.Side, req.Price, lvl.Price) {
			// Ineligible levels do not stop the walk.
			continue
		}
		fill := math.Min(remaining, lvl.Quantity)
		cost += fill * lvl.Price
		remaining -= fill
		position = i
		affected = append(affected, lvl)
	}

	filled := req.Quantity - remaining

	m := domain.ImpactMetrics{
		FillPercentage: filled / req.Quantity * 100,
	}

	switch req.OrderType {
	case domain.OrderTypeLimit:
		m.AvgFillPrice = req.Price
		if remaining > 0 {
			m.TimeToFill = restTimeFloor + s.randFunc()*restTimeSpan
		}
	default:
		if filled > 0 {
			m.AvgFillPrice = cost / filled
		}
	}

	if best, ok := bestLevel(levels); ok {
		if best.Price > 0 {
			m.Slippage = math.Abs(m.AvgFillPrice-best.Price) / best.Price * 100
		}
		if best.Quantity > 0 {
			m.MarketImpact = req.Quantity / best.Quantity * 100
		}
	}

	return Outcome{Metrics: m, Position: position, AffectedLevels: affected}
}

// marketable reports whether a resting level can execute against the
// limit price.
func marketable(side domain.Side, limit, levelPrice float64) bool {
	if side == domain.SideBuy {
		return levelPrice <= limit
	}
	return levelPrice >= limit
}

func bestLevel(levels []domain.BookLevel) (domain.BookLevel, bool) {
	if len(levels) == 0 {
		return domain.BookLevel{}, false
	}
	return levels[0], true
}
