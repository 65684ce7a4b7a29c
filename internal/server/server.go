// Package server assembles the HTTP API: routes, middleware, and lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/server/handler"
	"github.com/prem-prasad1710/bookd/internal/server/middleware"
	"github.com/prem-prasad1710/bookd/internal/server/ws"
)

// openPaths are served without authentication or rate limiting so probes and
// metrics scrapers need no credentials.
var openPaths = []string{"/api/health", "/metrics"}

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP within RateWindow. It applies
	// only when a limiter is passed to NewServer.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Status *handler.StatusHandler
	Books  *handler.BookHandler
	Sims   *handler.SimHandler
}

// Server is the HTTP + WebSocket API for orderbook reads, simulations, and
// operational status.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. metricsHandler, wsHub, and limiter may each be nil to
// disable the corresponding surface.
func NewServer(cfg Config, handlers Handlers, metricsHandler http.Handler, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Venue discovery.
	mux.HandleFunc("GET /api/venues", handlers.Books.ListVenues)
	mux.HandleFunc("GET /api/venues/{venue}/symbols", handlers.Books.ListSymbols)

	// Orderbook reads and analytics.
	mux.HandleFunc("GET /api/orderbook/{venue}/{symbol}", handlers.Books.GetOrderbook)
	mux.HandleFunc("GET /api/orderbook/{venue}/{symbol}/depth", handlers.Books.GetDepth)
	mux.HandleFunc("GET /api/orderbook/{venue}/{symbol}/imbalance", handlers.Books.GetImbalance)

	// Order impact simulation.
	mux.HandleFunc("POST /api/simulate", handlers.Sims.Simulate)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware wraps inside out: requests traverse CORS, logging, rate
	// limiting, then auth before reaching the mux.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, openPaths...)(h)
	if limiter != nil && cfg.RateLimit > 0 && cfg.RateWindow > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, openPaths...)(h)
	}
	h = middleware.Logging(logger, openPaths...)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
