package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/quantfold/updownbot/internal/blob/s3"
	"github.com/quantfold/updownbot/internal/cache/redis"
	"github.com/quantfold/updownbot/internal/config"
	"github.com/quantfold/updownbot/internal/crypto"
	"github.com/quantfold/updownbot/internal/domain"
	"github.com/quantfold/updownbot/internal/ledger"
	"github.com/quantfold/updownbot/internal/marketdata"
	"github.com/quantfold/updownbot/internal/notify"
	"github.com/quantfold/updownbot/internal/platform/polymarket"
	"github.com/quantfold/updownbot/internal/store/postgres"
)

// polygonChainID is the chain the Polymarket CLOB settles on.
const polygonChainID = 137

// Dependencies bundles every component the application modes need to operate.
// Fields backed by optional services (Redis, Postgres, S3) are nil when that
// service is disabled in the configuration.
type Dependencies struct {
	// Market data
	Cache   *marketdata.SnapshotCache
	SlotA   *marketdata.MarketSlot
	SlotB   *marketdata.MarketSlot
	LabelA  string
	LabelB  string
	Trigger chan struct{}

	// Platform clients
	Gamma *polymarket.GammaClient
	Clob  *polymarket.ClobClient

	// Optional infrastructure
	TradeStore  domain.TradeStore
	EventBus    domain.EventBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Archiver    *s3blob.Archiver

	Ledger   *ledger.Ledger
	Notifier *notify.Notifier
	Signer   *crypto.Signer
}

// marketLabel names a market slot the way the rest of the pipeline refers to
// it, e.g. "SOL-15m".
func marketLabel(asset string, windowMinutes int) string {
	return fmt.Sprintf("%s-%dm", strings.ToUpper(asset), windowMinutes)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	labelA := marketLabel(cfg.Markets.AssetA, cfg.Markets.WindowMinutes)
	labelB := marketLabel(cfg.Markets.AssetB, cfg.Markets.WindowMinutes)

	deps := &Dependencies{
		Cache:   marketdata.NewSnapshotCache(labelA, labelB),
		SlotA:   marketdata.NewMarketSlot(domain.Market{}),
		SlotB:   marketdata.NewMarketSlot(domain.Market{}),
		LabelA:  labelA,
		LabelB:  labelB,
		Trigger: make(chan struct{}, 1),
		Gamma:   polymarket.NewGammaClient(cfg.Polymarket.GammaHost),
	}

	// --- Redis (event bus, rate limiter, single-instance lock) ---
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

		deps.EventBus = redis.NewEventBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- Postgres (trade ledger persistence) ---
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

		deps.TradeStore = postgres.NewTradeStore(pgClient.Pool())
	}

	// --- S3 (ledger archiving) ---
	if cfg.Archive.Enabled {
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

		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		interval := time.Duration(cfg.Archive.IntervalHours) * time.Hour
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client), deps.TradeStore, retention, interval, "trades", logger,
		)
	}

	// --- Wallet signer (production orders only) ---
	if strings.ToLower(cfg.Mode) == "production" {
		keyHex, err := crypto.LoadWalletKey(crypto.KeySource{
			PrivateKeyHex: cfg.Wallet.PrivateKey,
			KeyFile:       cfg.Wallet.EncryptedKeyPath,
			KeyPassword:   cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex, polygonChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Signer = signer
	}

	// Pre-provisioned HMAC credentials skip the derive-api-key round trip.
	var hmacAuth *crypto.HMACAuth
	if cfg.Wallet.ApiKey != "" && cfg.Wallet.ApiSecret != "" && cfg.Wallet.ApiPassphrase != "" {
		hmacAuth = &crypto.HMACAuth{
			Key:        cfg.Wallet.ApiKey,
			Secret:     cfg.Wallet.ApiSecret,
			Passphrase: cfg.Wallet.ApiPassphrase,
		}
	}
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, deps.Signer, hmacAuth)

	// --- Ledger ---
	deps.Ledger = ledger.New(deps.TradeStore, logger)
	if deps.TradeStore != nil {
		if err := deps.Ledger.Warm(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: warm ledger: %w", err)
		}
	}

	// --- Notifications ---
	if deps.EventBus != nil {
		var senders []notify.Sender
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
		}
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
		}
		if len(senders) > 0 {
			deps.Notifier = notify.NewNotifier(deps.EventBus, senders, cfg.Notify.Events, logger)
		}
	}

	return deps, cleanup, nil
}
