package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/metrics"
	"github.com/prem-prasad1710/bookd/internal/sim"
)

// SimService orchestrates order-impact simulations: request validation,
// book resolution, the timed placement delay, the book walk, and result
// assembly.
type SimService struct {
	store       domain.BookStore
	sim         *sim.Simulator
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxQuantity float64

	// waitFn implements the timing delay; injectable for tests.
	waitFn func(ctx context.Context, d time.Duration) error
}

// NewSimService creates a SimService. metrics may be nil.
func NewSimService(store domain.BookStore, simulator *sim.Simulator, m *metrics.Metrics, logger *slog.Logger) *SimService {
	return &SimService{
		store:   store,
		sim:     simulator,
		metrics: m,
		logger:  logger.With(slog.String("component", "sim_service")),
		waitFn:  wait,
	}
}

// SetMaxQuantity caps the order size accepted by Simulate. 0 means
// unlimited.
func (s *SimService) SetMaxQuantity(q float64) {
	s.maxQuantity = q
}

// Simulate evaluates the request against the current book for its key.
// The book is captured before the timing delay and not re-fetched
// afterwards, so the result reflects the market as seen at submission.
// Cancellation during the delay returns the context error.
func (s *SimService) Simulate(ctx context.Context, req domain.OrderSimulation) (domain.SimulationResult, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return domain.SimulationResult{}, fmt.Errorf("sim_service: validate: %w", err)
	}
	if s.maxQuantity > 0 && req.Quantity > s.maxQuantity {
		return domain.SimulationResult{}, fmt.Errorf("sim_service: quantity %g exceeds limit %g: %w",
			req.Quantity, s.maxQuantity, domain.ErrInvalidSimulation)
	}

	book, err := s.store.Get(req.Venue, req.Symbol)
	if err != nil {
		return domain.SimulationResult{}, fmt.Errorf("sim_service: book for %s %q: %w", req.Venue, req.Symbol, err)
	}

	if d := req.Timing.Delay(); d > 0 {
		if err := s.waitFn(ctx, d); err != nil {
			return domain.SimulationResult{}, err
		}
	}

	out := s.sim.Run(book, req)
	result := domain.SimulationResult{
		ID:             uuid.New().String(),
		Request:        req,
		Metrics:        out.Metrics,
		Position:       out.Position,
		AffectedLevels: out.AffectedLevels,
		Warnings:       sim.Warnings(req, out.Metrics),
		Book:           book,
		SimulatedAt:    time.Now().UTC(),
	}

	s.metrics.SimulationRun(req.Venue, req.OrderType, time.Since(start).Seconds())

	s.logger.DebugContext(ctx, "simulation complete",
		slog.String("id", result.ID),
		slog.String("venue", string(req.Venue)),
		slog.String("symbol", req.Symbol),
		slog.String("order_type", string(req.OrderType)),
		slog.String("side", string(req.Side)),
		slog.Float64("quantity", req.Quantity),
		slog.Float64("fill_pct", out.Metrics.FillPercentage),
		slog.Float64("slippage", out.Metrics.Slippage),
	)
	return result, nil
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
