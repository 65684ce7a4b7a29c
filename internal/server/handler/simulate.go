package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// SimService defines what the simulate handler needs from the service
// layer.
type SimService interface {
	Simulate(ctx context.Context, req domain.OrderSimulation) (domain.SimulationResult, error)
}

// SimHandler serves the order-impact simulation endpoint.
type SimHandler struct {
	sims   SimService
	logger *slog.Logger
}

// NewSimHandler creates a SimHandler with the given service and logger.
func NewSimHandler(sims SimService, logger *slog.Logger) *SimHandler {
	return &SimHandler{
		sims:   sims,
		logger: logger,
	}
}

// simulateRequest is the POST body for a simulation. Timing defaults to
// immediate when omitted.
type simulateRequest struct {
	Venue     string  `json:"venue"`
	Symbol    string  `json:"symbol"`
	OrderType string  `json:"order_type"`
	Side      string  `json:"side"`
	Price     float64 `json:"price,omitempty"`
	Quantity  float64 `json:"quantity"`
	Timing    string  `json:"timing,omitempty"`
}

func (req simulateRequest) toDomain() domain.OrderSimulation {
	timing := domain.Timing(req.Timing)
	if req.Timing == "" {
		timing = domain.TimingImmediate
	}
	return domain.OrderSimulation{
		Venue:     domain.Venue(req.Venue),
		Symbol:    req.Symbol,
		OrderType: domain.OrderType(req.OrderType),
		Side:      domain.Side(req.Side),
		Price:     req.Price,
		Quantity:  req.Quantity,
		Timing:    timing,
	}
}

// metricsDTO is the wire form of the estimated execution outcome.
type metricsDTO struct {
	FillPercentage float64 `json:"fill_percentage"`
	MarketImpact   float64 `json:"market_impact"`
	Slippage       float64 `json:"slippage"`
	TimeToFill     float64 `json:"time_to_fill"`
	AvgFillPrice   float64 `json:"avg_fill_price"`
}

// simulateResponse is the wire form of a completed simulation.
type simulateResponse struct {
	ID             string          `json:"id"`
	Request        simulateRequest `json:"request"`
	Metrics        metricsDTO      `json:"metrics"`
	Position       int             `json:"position"`
	AffectedLevels []levelDTO      `json:"affected_levels"`
	Warnings       []string        `json:"warnings"`
	Book           bookDTO         `json:"book"`
	SimulatedAt    string          `json:"simulated_at"`
}

func toSimulateResponse(res domain.SimulationResult) simulateResponse {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return simulateResponse{
		ID: res.ID,
		Request: simulateRequest{
			Venue:     string(res.Request.Venue),
			Symbol:    res.Request.Symbol,
			OrderType: string(res.Request.OrderType),
			Side:      string(res.Request.Side),
			Price:     res.Request.Price,
			Quantity:  res.Request.Quantity,
			Timing:    string(res.Request.Timing),
		},
		Metrics: metricsDTO{
			FillPercentage: res.Metrics.FillPercentage,
			MarketImpact:   res.Metrics.MarketImpact,
			Slippage:       res.Metrics.Slippage,
			TimeToFill:     res.Metrics.TimeToFill,
			AvgFillPrice:   res.Metrics.AvgFillPrice,
		},
		Position:       res.Position,
		AffectedLevels: toLevelDTOs(res.AffectedLevels),
		Warnings:       warnings,
		Book:           toBookDTO(res.Book),
		SimulatedAt:    res.SimulatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Simulate evaluates a hypothetical order against the current book.
// POST /api/simulate
func (h *SimHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.sims.Simulate(r.Context(), req.toDomain())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "simulate order")
		return
	}
	writeJSON(w, http.StatusOK, toSimulateResponse(res))
}
