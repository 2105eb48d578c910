package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	s3blob "github.com/carmarket/carmarket/internal/blob/s3"
	"github.com/carmarket/carmarket/internal/bridge"
	"github.com/carmarket/carmarket/internal/cache/redis"
	"github.com/carmarket/carmarket/internal/chain"
	"github.com/carmarket/carmarket/internal/config"
	"github.com/carmarket/carmarket/internal/domain"
	"github.com/carmarket/carmarket/internal/market"
	"github.com/carmarket/carmarket/internal/notify"
	"github.com/carmarket/carmarket/internal/session"
	"github.com/carmarket/carmarket/internal/store/postgres"
	"github.com/carmarket/carmarket/internal/wallet"
)

// Dependencies bundles everything the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup
// function. Optional pieces (Redis, Postgres, S3, the event bridge) are
// nil when disabled by configuration.
type Dependencies struct {
	Chain   *chain.Client
	Wallet  *wallet.Wallet
	Market  *market.Cache
	Session *session.Manager

	// Bridge is built only for modes that watch contract events.
	Bridge *bridge.Bridge

	// Redis-backed pieces; nil when redis is disabled.
	Receipts    domain.ReceiptStore
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter

	// Postgres-backed activity log; nil when postgres is disabled.
	Activity domain.ActivityStore

	// S3 archiver; nil when s3 is disabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// needsBridge returns true for modes that subscribe to contract events.
func needsBridge(mode string) bool {
	switch mode {
	case "watch", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (receipts, signal bus, rate limiting) ---
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

		deps.Receipts = redis.NewReceiptStore(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- PostgreSQL (activity log) ---
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

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Activity = postgres.NewActivityStore(pgClient.Pool())
	}

	// --- Chain client ---
	chainClient, err := chain.Dial(ctx, chain.Config{
		RPCURL:          cfg.Chain.RPCURL,
		WSURL:           cfg.Chain.WSURL,
		ContractAddress: cfg.Chain.ContractAddress,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient

	// --- Keystore wallet ---
	w := wallet.Open(cfg.Keystore.Dir, cfg.Chain.ChainID, logger)
	if cfg.Keystore.ImportKeyPath != "" {
		addr, err := w.ImportKeyFile(cfg.Keystore.ImportKeyPath, cfg.Keystore.ImportKeyPassword, cfg.Keystore.Passphrase)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: import key file: %w", err)
		}
		logger.InfoContext(ctx, "imported signing key",
			slog.String("path", cfg.Keystore.ImportKeyPath),
			slog.String("address", addr),
		)
	}
	deps.Wallet = w

	// --- Listing snapshot cache ---
	deps.Market = market.New(chainClient, deps.Receipts, logger)

	// --- Wallet session ---
	binder := func(opts *bind.TransactOpts) session.Contract {
		return chainClient.WithSigner(opts)
	}
	deps.Session = session.New(chainClient, binder, w, deps.Market, deps.Receipts, logger)

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

	// --- Event bridge ---
	if needsBridge(cfg.Mode) {
		deps.Bridge = bridge.New(
			chainClient,
			deps.Market,
			deps.Session,
			deps.Activity,
			deps.Receipts,
			deps.SignalBus,
			deps.Notifier,
			logger,
		)
		deps.Session.RegisterHook(deps.Bridge)
	}

	// --- S3 activity archiving ---
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

		// Config validation guarantees postgres is enabled alongside s3.
		archiveStore, ok := deps.Activity.(s3blob.ActivityArchiveStore)
		if !ok {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: activity store does not support archiving")
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			archiveStore,
			cfg.S3.Retention.Duration,
			logger,
		)
	}

	return deps, cleanup, nil
}
