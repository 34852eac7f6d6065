package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/nftmarket/internal/blob/s3"
	cachemem "github.com/alanyoungcy/nftmarket/internal/cache/memory"
	"github.com/alanyoungcy/nftmarket/internal/cache/redis"
	"github.com/alanyoungcy/nftmarket/internal/config"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/escrow"
	"github.com/alanyoungcy/nftmarket/internal/notify"
	"github.com/alanyoungcy/nftmarket/internal/platform/erc721"
	"github.com/alanyoungcy/nftmarket/internal/server/handler"
	"github.com/alanyoungcy/nftmarket/internal/service"
	storemem "github.com/alanyoungcy/nftmarket/internal/store/memory"
	"github.com/alanyoungcy/nftmarket/internal/store/postgres"
	tokenmem "github.com/alanyoungcy/nftmarket/internal/token/memory"
)

// Dependencies bundles everything the modes need. It is built by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Ledger stores
	Collections domain.CollectionStore
	Listings    domain.ListingStore
	Offers      domain.OfferStore
	Sales       domain.SaleStore
	Audit       domain.AuditStore

	Tokens domain.TokenProvider
	Funds  domain.EscrowLedger
	Escrow common.Address
	Signer *crypto.Signer // nil when only escrow.address is configured

	// Coordination
	Locks       domain.LockManager
	Bus         domain.SignalBus
	Cache       domain.ListingCache // nil without redis
	RateLimiter domain.RateLimiter
	Idempotency domain.Deduper
	Nonces      domain.Deduper
	sweepers    []*cachemem.Dedup

	// Blob storage, nil unless the mode archives
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier    *notify.Notifier
	Events      *service.EventPublisher
	Marketplace *service.Marketplace

	// Health checks keyed by dependency name.
	Checks map[string]handler.Check
}

func needsS3(mode string) bool {
	return mode == "archive" || mode == "full"
}

// Wire constructs the concrete implementations selected by cfg and returns
// them with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	mode := strings.ToLower(cfg.Mode)
	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Escrow identity ---
	if cfg.Escrow.HasKey() {
		signer, err := crypto.LoadSigner(crypto.KeySource{
			RawPrivateKey:    cfg.Escrow.PrivateKey,
			EncryptedKeyPath: cfg.Escrow.EncryptedKeyPath,
			Password:         cfg.Escrow.KeyPassword,
		}, cfg.Escrow.ChainID)
		if err != nil {
			return fail("escrow key", err)
		}
		deps.Signer = signer
		deps.Escrow = signer.Address()
		if cfg.Escrow.Address != "" && common.HexToAddress(cfg.Escrow.Address) != deps.Escrow {
			return fail("escrow key", fmt.Errorf("key address %s does not match escrow.address %s: %w",
				deps.Escrow.Hex(), cfg.Escrow.Address, domain.ErrInvalidInput))
		}
	} else {
		deps.Escrow = common.HexToAddress(cfg.Escrow.Address)
	}

	// --- Ledger stores ---
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Collections = postgres.NewCollectionStore(pool)
		deps.Listings = postgres.NewListingStore(pool)
		deps.Offers = postgres.NewOfferStore(pool)
		deps.Sales = postgres.NewSaleStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Funds = postgres.NewEscrowStore(pool, logger)
		deps.Checks["postgres"] = pgClient.Ping
	default:
		db := storemem.NewDB()
		deps.Collections = storemem.NewCollectionStore(db)
		deps.Listings = storemem.NewListingStore(db)
		deps.Offers = storemem.NewOfferStore(db)
		deps.Sales = storemem.NewSaleStore(db)
		deps.Audit = storemem.NewAuditStore(db)
		deps.Funds = escrow.NewLedger(logger)
	}

	// --- Token provider ---
	switch cfg.Token.Provider {
	case "erc721":
		tc, err := erc721.Dial(ctx, cfg.Token.RPCURL, common.HexToAddress(cfg.Token.Contract),
			deps.Signer.PrivateKey(), logger)
		if err != nil {
			return fail("erc721", err)
		}
		deps.Tokens = tc
		deps.Checks["chain"] = tc.Ping
	default:
		deps.Tokens = tokenmem.NewRegistry()
	}

	// --- Locks, bus, rate limiting, replay protection ---
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
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Cache = redis.NewListingCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Idempotency = redis.NewDedup(redisClient, 24*time.Hour)
		deps.Nonces = redis.NewDedup(redisClient, cfg.Server.ReplayWindow.Duration)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		idem := cachemem.NewDedup(24 * time.Hour)
		nonces := cachemem.NewDedup(cfg.Server.ReplayWindow.Duration)
		deps.Locks = cachemem.NewLockManager()
		deps.Bus = cachemem.NewSignalBus()
		deps.RateLimiter = cachemem.NewRateLimiter()
		deps.Idempotency = idem
		deps.Nonces = nonces
		deps.sweepers = []*cachemem.Dedup{idem, nonces}
	}

	// --- S3 archive ---
	if needsS3(mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Sales, deps.Audit, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	var notifier service.EventNotifier
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
		notifier = deps.Notifier
	}

	// --- Marketplace ---
	deps.Events = service.NewEventPublisher(deps.Bus, deps.Audit, notifier, logger)
	var feeRecipient common.Address
	if cfg.Escrow.FeeRecipient != "" {
		feeRecipient = common.HexToAddress(cfg.Escrow.FeeRecipient)
	}
	market, err := service.NewMarketplace(service.MarketplaceDeps{
		Collections: deps.Collections,
		Listings:    deps.Listings,
		Offers:      deps.Offers,
		Sales:       deps.Sales,
		Tokens:      deps.Tokens,
		Payments:    deps.Funds,
		Locks:       deps.Locks,
		Events:      deps.Events,
		Cache:       deps.Cache,
	}, service.MarketplaceConfig{
		Escrow:       deps.Escrow,
		FeeBps:       int(cfg.Escrow.FeeBps),
		FeeRecipient: feeRecipient,
		LockTTL:      cfg.Escrow.LockTTL.Duration,
	}, logger)
	if err != nil {
		return fail("marketplace", err)
	}
	deps.Marketplace = market

	return deps, cleanup, nil
}
