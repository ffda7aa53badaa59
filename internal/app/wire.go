// Package app wires the engine's dependencies from configuration and runs
// the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/VidbloqHQ/bookish-octo-doodle/internal/blob/s3"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/cache/redis"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/config"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/notify"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/oracle"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/service"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/store/postgres"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/token"
)

// Dependencies bundles every constructed dependency the application modes
// need.
type Dependencies struct {
	// Stores
	StreamStore     domain.StreamStore
	DonorStore      domain.DonorStore
	MarketStore     domain.MarketStore
	PositionStore   domain.PositionStore
	ResolutionStore domain.ResolutionStore
	AuditStore      domain.AuditStore
	UnitOfWork      domain.UnitOfWork

	// Caches and bus
	StreamCache domain.StreamCache
	MarketCache domain.MarketCache
	SignalBus   domain.SignalBus

	// Facilities
	Ledger    domain.TokenLedger
	Requester domain.RandomnessRequester
	Verifier  service.CallbackVerifier

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Services
	Streams     *service.StreamService
	Betting     *service.BettingService
	Resolutions *service.ResolutionService

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.StreamStore = postgres.NewStreamStore(pool)
	deps.DonorStore = postgres.NewDonorStore(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.ResolutionStore = postgres.NewResolutionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.UnitOfWork = pgClient

	// --- Redis ---
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

	deps.StreamCache = redis.NewStreamCache(redisClient)
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 (journal archiver) ---
	if cfg.S3.Enabled {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
	}

	// --- Facilities ---
	// Token moves ride the in-process ledger; deployments bridging a real
	// token program swap this implementation.
	deps.Ledger = token.NewMemoryLedger()
	deps.Requester = oracle.NewMemoryRequester()
	if cfg.Oracle.Address != "" {
		deps.Verifier = oracle.NewVerifier(common.HexToAddress(cfg.Oracle.Address))
	}

	// --- Services ---
	deps.Streams = service.NewStreamService(
		deps.StreamStore, deps.DonorStore, deps.Ledger, deps.UnitOfWork,
		deps.AuditStore, deps.StreamCache, deps.SignalBus, logger,
	)
	deps.Betting = service.NewBettingService(
		deps.StreamStore, deps.MarketStore, deps.PositionStore, deps.ResolutionStore,
		deps.Ledger, deps.UnitOfWork, deps.AuditStore, deps.MarketCache,
		deps.SignalBus, logger,
	)
	deps.Resolutions = service.NewResolutionService(
		deps.MarketStore, deps.PositionStore, deps.ResolutionStore,
		deps.Requester, deps.Verifier, deps.UnitOfWork, deps.AuditStore,
		deps.MarketCache, deps.SignalBus, logger,
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
