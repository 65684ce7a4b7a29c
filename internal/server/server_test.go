package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/server/handler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubBooks struct{}

func (stubBooks) GetOrderbook(_ context.Context, v domain.Venue, symbol string, _ int) (domain.Orderbook, error) {
	return domain.Orderbook{Venue: v, Symbol: symbol, Timestamp: 1}, nil
}
func (stubBooks) ListSupportedSymbols(domain.Venue) ([]string, error) { return []string{"BTC-USDT"}, nil }
func (stubBooks) Venues() []domain.Venue                              { return []domain.Venue{domain.VenueOKX} }

type stubSims struct{}

func (stubSims) Simulate(_ context.Context, req domain.OrderSimulation) (domain.SimulationResult, error) {
	return domain.SimulationResult{ID: "sim-1", Request: req, SimulatedAt: time.Now().UTC()}, nil
}

type stubFeeds struct{}

func (stubFeeds) Statuses() map[domain.Venue]domain.FeedStatus {
	return map[domain.Venue]domain.FeedStatus{domain.VenueOKX: domain.FeedConnected}
}

type stubInventory struct{}

func (stubInventory) TrackedBooks() []domain.BookKey { return nil }
func (stubInventory) Venues() []domain.Venue         { return []domain.Venue{domain.VenueOKX} }

// fakeLimiter admits the first allow calls and rejects the rest.
type fakeLimiter struct {
	mu    sync.Mutex
	admit int
	calls int
	err   error
}

func (f *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.calls++
	return f.calls <= f.admit, nil
}

func testHandlers() Handlers {
	return Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler("serve", time.Now(), stubFeeds{}, stubInventory{}, nil),
		Books:  handler.NewBookHandler(stubBooks{}, testLogger()),
		Sims:   handler.NewSimHandler(stubSims{}, testLogger()),
	}
}

func newTestServer(t *testing.T, cfg Config, metricsHandler http.Handler, limiter domain.RateLimiter) http.Handler {
	t.Helper()
	srv := NewServer(cfg, testHandlers(), metricsHandler, nil, limiter, testLogger())
	return srv.Handler()
}

func get(h http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestServerServesAPIRoutes(t *testing.T) {
	h := newTestServer(t, Config{Port: 0}, nil, nil)

	for _, target := range []string{
		"/api/health",
		"/api/status",
		"/api/venues",
		"/api/venues/okx/symbols",
		"/api/orderbook/okx/BTC-USDT",
		"/api/orderbook/okx/BTC-USDT/depth",
		"/api/orderbook/okx/BTC-USDT/imbalance",
	} {
		w := get(h, target, nil)
		require.Equal(t, http.StatusOK, w.Code, "GET %s", target)
	}

	w := get(h, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerAuthProtectsAPI(t *testing.T) {
	h := newTestServer(t, Config{Port: 0, APIKey: "secret"}, nil, nil)

	w := get(h, "/api/venues", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(h, "/api/venues", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, w.Code)

	w = get(h, "/api/venues", map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, w.Code)

	w = get(h, "/api/venues", map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServerOpenPathsSkipAuth(t *testing.T) {
	metricsStub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := newTestServer(t, Config{Port: 0, APIKey: "secret"}, metricsStub, nil)

	w := get(h, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = get(h, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServerMetricsDisabledWithoutHandler(t *testing.T) {
	h := newTestServer(t, Config{Port: 0}, nil, nil)

	w := get(h, "/metrics", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerCORSPreflight(t *testing.T) {
	h := newTestServer(t, Config{Port: 0, APIKey: "secret", CORSOrigins: []string{"https://dash.example.com"}}, nil, nil)

	r := httptest.NewRequest(http.MethodOptions, "/api/venues", nil)
	r.Header.Set("Origin", "https://dash.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	// Preflight short-circuits before auth.
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestServerCORSRejectsUnlistedOrigin(t *testing.T) {
	h := newTestServer(t, Config{Port: 0, CORSOrigins: []string{"https://dash.example.com"}}, nil, nil)

	w := get(h, "/api/venues", map[string]string{"Origin": "https://evil.example.com"})
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServerRateLimit(t *testing.T) {
	limiter := &fakeLimiter{admit: 2}
	h := newTestServer(t, Config{Port: 0, RateLimit: 2, RateWindow: time.Minute}, nil, limiter)

	require.Equal(t, http.StatusOK, get(h, "/api/venues", nil).Code)
	require.Equal(t, http.StatusOK, get(h, "/api/venues", nil).Code)

	w := get(h, "/api/venues", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "rate limit exceeded", body["error"])
}

func TestServerRateLimitSkipsOpenPaths(t *testing.T) {
	limiter := &fakeLimiter{admit: 0}
	h := newTestServer(t, Config{Port: 0, RateLimit: 1, RateWindow: time.Minute}, nil, limiter)

	require.Equal(t, http.StatusOK, get(h, "/api/health", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, get(h, "/api/venues", nil).Code)
}

func TestServerRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis: connection refused")}
	h := newTestServer(t, Config{Port: 0, RateLimit: 1, RateWindow: time.Minute}, nil, limiter)

	require.Equal(t, http.StatusOK, get(h, "/api/venues", nil).Code)
}

func TestServerRateLimitDisabledWithoutLimiter(t *testing.T) {
	h := newTestServer(t, Config{Port: 0, RateLimit: 1, RateWindow: time.Minute}, nil, nil)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, get(h, "/api/venues", nil).Code)
	}
}

func TestServerSimulateRoute(t *testing.T) {
	h := newTestServer(t, Config{Port: 0}, nil, nil)

	r := httptest.NewRequest(http.MethodPost, "/api/simulate",
		strings.NewReader(`{"venue":"okx","symbol":"BTC-USDT","order_type":"market","side":"buy","quantity":1}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "sim-1", body["id"])
}
