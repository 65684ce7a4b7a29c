package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prem-prasad1710/bookd/internal/book"
	"github.com/prem-prasad1710/bookd/internal/cache/redis"
	"github.com/prem-prasad1710/bookd/internal/config"
	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/feed"
	"github.com/prem-prasad1710/bookd/internal/metrics"
	"github.com/prem-prasad1710/bookd/internal/notify"
	"github.com/prem-prasad1710/bookd/internal/service"
	"github.com/prem-prasad1710/bookd/internal/sim"
	"github.com/prem-prasad1710/bookd/internal/venue"
	"github.com/prem-prasad1710/bookd/internal/venue/bybit"
	"github.com/prem-prasad1710/bookd/internal/venue/deribit"
	"github.com/prem-prasad1710/bookd/internal/venue/okx"
)

// metricsNamespace prefixes every Prometheus series exported by bookd.
const metricsNamespace = "bookd"

// Dependencies bundles everything the run modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Books   *service.BookService
	Sims    *service.SimService
	Feeds   *feed.Manager
	Metrics *metrics.Metrics

	// Limiter is nil unless Redis is enabled; the server runs without
	// rate limiting in that case.
	Limiter  domain.RateLimiter
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// must be called on shutdown to release venue streams, subscriptions,
// and the Redis connection.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	m := metrics.New(metricsNamespace)

	// --- Venue adapters ---
	adapters := buildAdapters(cfg, m, logger)
	if len(adapters) == 0 {
		return nil, nil, fmt.Errorf("wire: no venues enabled")
	}
	registry := venue.NewRegistry(adapters...)
	closers = append(closers, func() {
		if err := registry.CloseAll(); err != nil {
			logger.Warn("adapter close failed", slog.String("error", err.Error()))
		}
	})

	// Adapters resolve an empty configured symbol list to their built-in
	// allow-list, so the effective default subscriptions come from them.
	symbols := make(map[domain.Venue][]string, len(adapters))
	for _, ad := range adapters {
		symbols[ad.Venue()] = ad.SupportedSymbols()
	}

	// --- In-memory book store ---
	store := book.NewStore()
	store.SetRejectStale(cfg.Feed.RejectStaleBooks)

	// --- Redis (optional book mirror, update publisher, rate limiter) ---
	var (
		mirror  domain.BookMirror
		bus     domain.UpdateBus
		limiter domain.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		mirror = redis.NewBookMirror(redisClient)
		bus = redis.NewUpdateBus(redisClient)
		limiter = redis.NewRateLimiter(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	books := service.NewBookService(registry, store, mirror, bus, m, logger)
	sims := service.NewSimService(store, sim.New(), m, logger)
	sims.SetMaxQuantity(cfg.Sim.MaxQuantity)

	feeds := feed.NewManager(books, adapters, symbols, notifier, m, logger)
	// Stop before the Redis close and adapter closes that follow it in
	// reverse order, so streams release their subscriptions first.
	closers = append(closers, feeds.Stop)

	return &Dependencies{
		Books:    books,
		Sims:     sims,
		Feeds:    feeds,
		Metrics:  m,
		Limiter:  limiter,
		Notifier: notifier,
	}, cleanup, nil
}

// buildAdapters constructs one adapter per enabled venue, with the
// metrics sink attached before any subscription can start.
func buildAdapters(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) []domain.VenueAdapter {
	var adapters []domain.VenueAdapter
	if vc := cfg.Venues.OKX; vc.Enabled {
		ad := okx.New(okx.Config{
			BaseURL:       vc.BaseURL,
			WSURL:         vc.WSURL,
			Symbols:       vc.Symbols,
			Depth:         vc.Depth,
			MaxReconnects: vc.MaxReconnects,
		}, logger)
		ad.SetMetrics(m)
		adapters = append(adapters, ad)
	}
	if vc := cfg.Venues.Bybit; vc.Enabled {
		ad := bybit.New(bybit.Config{
			BaseURL:       vc.BaseURL,
			WSURL:         vc.WSURL,
			Symbols:       vc.Symbols,
			Depth:         vc.Depth,
			MaxReconnects: vc.MaxReconnects,
		}, logger)
		ad.SetMetrics(m)
		adapters = append(adapters, ad)
	}
	if vc := cfg.Venues.Deribit; vc.Enabled {
		ad := deribit.New(deribit.Config{
			BaseURL:       vc.BaseURL,
			WSURL:         vc.WSURL,
			Symbols:       vc.Symbols,
			Depth:         vc.Depth,
			MaxReconnects: vc.MaxReconnects,
		}, logger)
		ad.SetMetrics(m)
		adapters = append(adapters, ad)
	}
	return adapters
}
