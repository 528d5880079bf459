package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantfold/predictbot/internal/auth"
	s3blob "github.com/quantfold/predictbot/internal/blob/s3"
	"github.com/quantfold/predictbot/internal/cache/redis"
	"github.com/quantfold/predictbot/internal/config"
	"github.com/quantfold/predictbot/internal/crypto"
	"github.com/quantfold/predictbot/internal/domain"
	"github.com/quantfold/predictbot/internal/engine"
	"github.com/quantfold/predictbot/internal/notify"
	"github.com/quantfold/predictbot/internal/platform/polymarket"
	"github.com/quantfold/predictbot/internal/position"
	"github.com/quantfold/predictbot/internal/scanner"
	"github.com/quantfold/predictbot/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. Construction is
// mode-aware: scan mode runs without a wallet, database, or exchange client.
type Dependencies struct {
	// Stores and caches
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore
	PriceCache    domain.PriceCache
	RateLimiter   domain.RateLimiter
	SpotFeed      domain.PriceFeed
	BlobWriter    domain.BlobWriter

	// API clients
	Gamma *polymarket.GammaClient
	Clob  *polymarket.ClobClient
	Data  *polymarket.DataClient
	Auth  *auth.Manager

	// Core
	Scanner   *scanner.Scanner
	Engine    *engine.Engine
	Positions *position.Manager
	Notifier  *notify.Notifier
}

// needsPostgres reports whether the mode persists positions.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "monitor", "full":
		return true
	default:
		return false
	}
}

// needsWallet reports whether the mode signs orders.
func needsWallet(mode string) bool {
	switch mode {
	case "trade", "full":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete dependency graph from the configuration and
// returns it with a cleanup function for shutdown.
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
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SpotFeed = redis.NewSpotFeed(redisClient)

	// --- S3 archive (optional) ---
	if cfg.S3.Bucket != "" {
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
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- API clients ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, logger)
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost, logger)

	// --- Scanner ---
	rules := scanner.NewRuleEngine(deps.SpotFeed, logger)
	deps.Scanner = scanner.New(deps.Gamma, rules, scanner.Config{
		MinEdge:       cfg.Scanner.MinEdge,
		KellyFraction: cfg.Scanner.KellyFraction,
		MinLiquidity:  cfg.Scanner.MinLiquidity,
		MaxDays:       cfg.Scanner.MaxDays,
		Keywords:      cfg.Scanner.Keywords,
		Limit:         cfg.Scanner.Limit,
	}, logger)

	// --- Wallet, signing, execution ---
	if needsWallet(cfg.Mode) {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}

		deps.Auth = auth.NewManager(cfg.Polymarket.ClobHost, signer, domain.Credentials{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}, logger)
		deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, deps.Auth, logger)

		builder := engine.NewBuilder(signer)
		// On-chain approvals are managed out of band (nil approver).
		deps.Engine = engine.New(deps.Clob, builder, nil, deps.RateLimiter, deps.AuditStore, deps.BlobWriter, logger)
	}

	// --- Position manager ---
	if deps.PositionStore != nil {
		deps.Positions = position.NewManager(deps.PositionStore, deps.PriceCache, logger)
	}

	return deps, cleanup, nil
}
