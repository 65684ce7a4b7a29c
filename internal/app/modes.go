package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prem-prasad1710/bookd/internal/server"
	"github.com/prem-prasad1710/bookd/internal/server/handler"
	"github.com/prem-prasad1710/bookd/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP drain after the run context
// ends.
const shutdownTimeout = 5 * time.Second

// ServeMode runs the full service: venue feeds, the REST API, the
// WebSocket hub, and the Prometheus endpoint.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode",
		slog.Int("port", a.cfg.Server.Port),
	)

	g, ctx := errgroup.WithContext(ctx)

	startedAt := time.Now().UTC()
	hub := ws.NewHub(deps.Books, deps.Feeds, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(a.cfg.Mode, startedAt, deps.Feeds, deps.Books, hub),
		Books:  handler.NewBookHandler(deps.Books, a.logger),
		Sims:   handler.NewSimHandler(deps.Sims, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.Metrics.Handler(), hub, deps.Limiter, a.logger)

	// A feed failure is not fatal here: clients are still served from
	// one-shot REST snapshots on demand.
	if err := deps.Feeds.Start(ctx); err != nil {
		a.logger.ErrorContext(ctx, "feed startup failed, serving snapshots only",
			slog.String("error", err.Error()),
		)
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	a.notifyStarted(ctx, deps, fmt.Sprintf("serving on port %d", a.cfg.Server.Port))

	return g.Wait()
}

// IngestMode runs headless ingestion: venue feeds fill the in-memory
// store and, when Redis is enabled, the mirror and update stream. No
// HTTP surface is started.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	if !a.cfg.Redis.Enabled {
		a.logger.WarnContext(ctx, "ingest mode without redis keeps books in process memory only")
	}

	// Here the feeds are the whole job, so a total startup failure ends
	// the run.
	if err := deps.Feeds.Start(ctx); err != nil {
		return fmt.Errorf("ingest mode: %w", err)
	}

	a.notifyStarted(ctx, deps, "headless ingest running")

	<-ctx.Done()
	return ctx.Err()
}

// notifyStarted announces process startup on every configured channel.
// Delivery is detached so an unreachable sender never stalls startup.
func (a *App) notifyStarted(ctx context.Context, deps *Dependencies, detail string) {
	title := fmt.Sprintf("bookd started (%s mode)", a.cfg.Mode)
	go func() {
		if err := deps.Notifier.NotifyAll(ctx, title, detail); err != nil {
			a.logger.Warn("startup notice failed", slog.String("error", err.Error()))
		}
	}()
}
