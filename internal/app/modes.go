package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/server"
	"github.com/alanyoungcy/nftmarket/internal/server/handler"
	"github.com/alanyoungcy/nftmarket/internal/server/middleware"
	"github.com/alanyoungcy/nftmarket/internal/server/ws"
	"github.com/alanyoungcy/nftmarket/internal/service"
)

const sweepInterval = time.Minute

// ServerMode serves the HTTP API and the event WebSocket.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode exports settled history to S3 now and then every
// archive.interval until ctx is cancelled.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: archive mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the server and the archive scheduler together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// startHTTPServer adds the hub, the server and its graceful shutdown to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, ws.Config{
		Channel: service.MarketChannel,
		Stream:  service.MarketStream,
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		OperatorKey: a.cfg.Server.OperatorKey,
		RateLimit:   a.cfg.Server.RateLimit,
		Identity: middleware.IdentityConfig{
			RequireSignatures: a.cfg.Server.RequireSignatures,
			Verifier:          crypto.NewVerifier(a.cfg.Escrow.ChainID),
			Nonces:            deps.Nonces,
		},
	}, a.handlers(deps), server.Guards{
		RateLimiter: deps.RateLimiter,
		Idempotency: deps.Idempotency,
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	// In-process dedup windows need sweeping; redis expires keys itself.
	if len(deps.sweepers) > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, d := range deps.sweepers {
						d.Cleanup()
					}
				}
			}
		})
	}
}

func (a *App) handlers(deps *Dependencies) server.Handlers {
	h := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: handler.NewStatusHandler(handler.Status{
			Mode:          a.cfg.Mode,
			Escrow:        deps.Escrow.Hex(),
			ChainID:       a.cfg.Escrow.ChainID,
			FeeBps:        a.cfg.Escrow.FeeBps,
			StoreBackend:  a.cfg.Store.Backend,
			TokenProvider: a.cfg.Token.Provider,
		}),
		Collections: handler.NewCollectionHandler(deps.Marketplace, a.logger),
		Listings:    handler.NewListingHandler(deps.Marketplace, a.logger),
		Offers:      handler.NewOfferHandler(deps.Marketplace, a.logger),
		Sales:       handler.NewSaleHandler(deps.Marketplace, a.logger),
		Tokens:      handler.NewTokenHandler(deps.Tokens, a.logger),
		Escrow:      handler.NewEscrowHandler(deps.Funds, a.logger),
	}
	if deps.BlobReader != nil {
		h.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}
	return h
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "app: archiver not configured, skipping")
		return
	}
	cutoff := func() time.Time { return a.cfg.Archive.Cutoff(time.Now().UTC()) }
	g.Go(func() error {
		return archiveLoop(ctx, deps.Archiver, a.cfg.Archive.Interval.Duration, cutoff, a.logger)
	})
}

// archiveLoop runs one archive pass immediately and then on every tick. A
// failed pass is logged and retried on the next tick.
func archiveLoop(ctx context.Context, archiver domain.Archiver, interval time.Duration, cutoff func() time.Time, logger *slog.Logger) error {
	runOnce := func() {
		before := cutoff()
		sales, err := archiver.ArchiveSales(ctx, before)
		if err != nil {
			logger.ErrorContext(ctx, "archive: sales failed", slog.String("error", err.Error()))
		}
		entries, err := archiver.ArchiveAudit(ctx, before)
		if err != nil {
			logger.ErrorContext(ctx, "archive: audit failed", slog.String("error", err.Error()))
		}
		logger.InfoContext(ctx, "archive: pass complete",
			slog.Time("before", before),
			slog.Int64("sales", sales),
			slog.Int64("audit_entries", entries),
		)
	}

	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
