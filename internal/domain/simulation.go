package domain

import (
	"fmt"
	"time"
)

// OrderType distinguishes market from limit simulations.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Side is the direction of a simulated order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Timing selects the simulated placement delay applied before the book
// walk runs. The book is captured at request time, not after the delay.
type Timing string

const (
	TimingImmediate Timing = "immediate"
	Timing5s        Timing = "5s"
	Timing10s       Timing = "10s"
	Timing30s       Timing = "30s"
)

// Delay returns the suspension duration for the timing choice.
func (t Timing) Delay() time.Duration {
	switch t {
	case Timing5s:
		return 5 * time.Second
	case Timing10s:
		return 10 * time.Second
	case Timing30s:
		return 30 * time.Second
	default:
		return 0
	}
}

// OrderSimulation is a hypothetical order to evaluate against the
// current book for its (Venue, Symbol) key.
type OrderSimulation struct {
	Venue     Venue
	Symbol    string
	OrderType OrderType
	Side      Side
	Price     float64 // limit price, required for limit orders
	Quantity  float64
	Timing    Timing
}

// Validate reports the first problem with the request. Price is rejected
// on market orders and required positive on limit orders.
func (s OrderSimulation) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol required: %w", ErrInvalidSimulation)
	}
	switch s.Venue {
	case VenueOKX, VenueBybit, VenueDeribit:
	default:
		return fmt.Errorf("venue %q: %w", s.Venue, ErrUnknownVenue)
	}
	switch s.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("side %q: %w", s.Side, ErrInvalidSimulation)
	}
	switch s.OrderType {
	case OrderTypeMarket:
		if s.Price != 0 {
			return fmt.Errorf("market order must not carry a price: %w", ErrInvalidSimulation)
		}
	case OrderTypeLimit:
		if s.Price <= 0 {
			return fmt.Errorf("limit order requires a positive price: %w", ErrInvalidSimulation)
		}
	default:
		return fmt.Errorf("order type %q: %w", s.OrderType, ErrInvalidSimulation)
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrInvalidSimulation)
	}
	switch s.Timing {
	case TimingImmediate, Timing5s, Timing10s, Timing30s:
	default:
		return fmt.Errorf("timing %q: %w", s.Timing, ErrInvalidSimulation)
	}
	return nil
}

// ImpactMetrics is the estimated execution outcome of a simulated order.
type ImpactMetrics struct {
	FillPercentage float64 // 0..100
	MarketImpact   float64 // percent of the best walked level's quantity
	Slippage       float64 // percent deviation from the best opposite price
	TimeToFill     float64 // seconds; 0 for market orders
	AvgFillPrice   float64
}

// SimulationResult bundles the metrics with the book state they were
// computed from, the walked levels, and any generated warnings.
type SimulationResult struct {
	ID             string
	Request        OrderSimulation
	Metrics        ImpactMetrics
	Position       int // index reached on the walked side
	AffectedLevels []BookLevel
	Warnings       []string
	Book           Orderbook
	SimulatedAt    time.Time
}
