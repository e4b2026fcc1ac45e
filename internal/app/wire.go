package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/driftlabs/driftbot/internal/blob/s3"
	"github.com/driftlabs/driftbot/internal/cache/redis"
	"github.com/driftlabs/driftbot/internal/config"
	"github.com/driftlabs/driftbot/internal/domain"
	"github.com/driftlabs/driftbot/internal/notify"
	"github.com/driftlabs/driftbot/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function. Fields stay nil when the corresponding backend is disabled;
// every mode treats nil dependencies as "concern disabled".
type Dependencies struct {
	// Stores
	CandleStore domain.CandleStore
	TradeLedger domain.TradeLedger
	SignalLog   domain.SignalLog
	TradeStore  *postgres.TradeStore

	// Caches
	PriceCache      domain.PriceCache
	FeatureCache    domain.FeatureCache
	LockManager     domain.LockManager
	SignalBus       domain.SignalBus
	RedisCheckpoint domain.CheckpointStore

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}

		pool := pgClient.Pool()
		deps.CandleStore = postgres.NewCandleStore(pool)
		tradeStore := postgres.NewTradeStore(pool)
		deps.TradeStore = tradeStore
		deps.TradeLedger = tradeStore
		deps.SignalLog = postgres.NewSignalStore(pool)
	}

	// --- Redis ---
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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.FeatureCache = redis.NewFeatureCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RedisCheckpoint = redis.NewCheckpointStore(redisClient)
	}

	// --- S3 blob storage ---
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		// Trade cold storage needs the ledger to prune from.
		if deps.TradeStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TradeStore)
		} else {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, nil)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
