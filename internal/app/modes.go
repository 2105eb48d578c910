package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carmarket/carmarket/internal/server"
	"github.com/carmarket/carmarket/internal/server/handler"
	"github.com/carmarket/carmarket/internal/server/ws"
)

// ServerMode serves the HTTP/WebSocket API without watching contract
// events. Listings still refresh on the configured interval and on
// explicit refresh requests.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("server mode: server.enabled must be true")
	}

	g, ctx := errgroup.WithContext(ctx)

	a.loadInitialSnapshot(ctx, deps)
	a.startRefreshLoop(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// WatchMode runs the event bridge and periodic refresh without an HTTP
// surface. Useful as a headless synchronizer feeding the activity log,
// the signal bus, and notification channels.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)

	a.loadInitialSnapshot(ctx, deps)
	a.startRefreshLoop(ctx, g, deps)
	if err := a.startBridge(ctx, g, deps); err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: the event bridge, the periodic refresh, the
// activity archiver, and the HTTP/WebSocket server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.loadInitialSnapshot(ctx, deps)
	a.startRefreshLoop(ctx, g, deps)
	if err := a.startBridge(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// loadInitialSnapshot performs the first listing fetch. A failure is
// logged but not fatal; the cache serves an empty snapshot until a
// refresh succeeds.
func (a *App) loadInitialSnapshot(ctx context.Context, deps *Dependencies) {
	items, err := deps.Market.Refresh(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "initial listing fetch failed, starting with empty snapshot",
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.InfoContext(ctx, "initial listing snapshot loaded",
		slog.Int("items", len(items)),
	)
}

// startRefreshLoop refreshes the listing snapshot on the configured
// interval. Events trigger additional refreshes through the bridge; this
// loop is the fallback that catches anything a subscription gap missed.
func (a *App) startRefreshLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Market.RefreshInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := deps.Market.Refresh(ctx); err != nil {
					a.logger.WarnContext(ctx, "periodic listing refresh failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startBridge opens the contract event subscriptions and keeps them
// running until the context is cancelled.
func (a *App) startBridge(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Bridge == nil {
		return fmt.Errorf("event bridge not wired")
	}
	if err := deps.Bridge.Start(ctx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		deps.Bridge.Stop()
		return ctx.Err()
	})
	return nil
}

// startArchiver runs the periodic activity archiving loop when S3 is
// configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	interval := a.cfg.S3.Interval.Duration
	g.Go(func() error {
		deps.Archiver.Run(ctx, interval)
		return ctx.Err()
	})
}

// startHTTPServer adds the HTTP/WebSocket server goroutines to the given
// errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Items:   handler.NewItemsHandler(deps.Market, deps.Session, a.logger),
		Session: handler.NewSessionHandler(deps.Session, a.logger),
	}
	if deps.Activity != nil {
		handlers.Activity = handler.NewActivityHandler(deps.Activity, a.logger)
	}

	// The hub bridges the signal bus to browsers; without Redis there is
	// nothing to bridge and clients fall back to polling.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
