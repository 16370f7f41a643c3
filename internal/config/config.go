// Package config defines the top-level configuration for updownbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by UPDOWNBOT_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Markets    MarketsConfig    `toml:"markets"`
	Trading    TradingConfig    `toml:"trading"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the trading wallet credentials used for CLOB auth in
// production mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	ApiKey           string `toml:"api_key"`
	ApiSecret        string `toml:"api_secret"`
	ApiPassphrase    string `toml:"api_passphrase"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	// WsFeedEnabled turns on the websocket book feed as a second quote
	// writer alongside the pollers.
	WsFeedEnabled bool `toml:"ws_feed_enabled"`
}

// MarketsConfig selects the two markets the engine pairs against each other.
type MarketsConfig struct {
	AssetA        string `toml:"asset_a"` // e.g. "SOL"
	AssetB        string `toml:"asset_b"` // e.g. "BTC"
	WindowMinutes int    `toml:"window_minutes"`
	// Pinned condition IDs bypass slug discovery when set.
	ConditionIDA string `toml:"condition_id_a"`
	ConditionIDB string `toml:"condition_id_b"`
}

// TradingConfig holds the thresholds and timing bounds of the
// detection/execution core. Durations are integer milliseconds to keep the
// TOML obvious.
type TradingConfig struct {
	MinProfitThreshold float64 `toml:"min_profit_threshold"` // dollars, e.g. 0.01
	MaxPositionSize    float64 `toml:"max_position_size"`    // dollars committed per trade
	CheckIntervalMs    int     `toml:"check_interval_ms"`    // poll interval, >= 1
	QuoteStaleMs       int     `toml:"quote_stale_ms"`       // staleness bound; 0 = 2x check interval
	SubmitTimeoutMs    int     `toml:"submit_timeout_ms"`    // per-leg submission timeout
	FillTimeoutMs      int     `toml:"fill_timeout_ms"`      // bound on AwaitingFills
	FillPollMs         int     `toml:"fill_poll_ms"`         // order status poll interval
	SettleGraceMs      int     `toml:"settle_grace_ms"`      // shutdown settle window
	// FlattenPartialLeg submits one best-effort offsetting sell for the
	// filled leg of a partially filled trade. Off by default: flattening
	// realizes the loss immediately instead of riding to settlement.
	FlattenPartialLeg bool `toml:"flatten_partial_leg"`
	// MinAskFilter skips combinations where BOTH asks are below this price
	// (dollars). Both sides cheap usually means both markets are about to
	// resolve against the pair.
	MinAskFilter float64 `toml:"min_ask_filter"`
}

// PostgresConfig holds ledger database connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// QuoteRateLimit caps quote fetches per market per second.
	QuoteRateLimit int `toml:"quote_rate_limit"`
}

// S3Config holds S3-compatible object storage parameters for ledger archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the ledger archiver.
type ArchiveConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
	IntervalHours int  `toml:"interval_hours"`
}

// ServerConfig holds the read-only status HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// CheckInterval returns the poll interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Trading.CheckIntervalMs) * time.Millisecond
}

// QuoteStaleBound returns the staleness bound; when unset it defaults to
// twice the poll interval.
func (c *Config) QuoteStaleBound() time.Duration {
	if c.Trading.QuoteStaleMs > 0 {
		return time.Duration(c.Trading.QuoteStaleMs) * time.Millisecond
	}
	return 2 * c.CheckInterval()
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			WsFeedEnabled: false,
		},
		Markets: MarketsConfig{
			AssetA:        "SOL",
			AssetB:        "BTC",
			WindowMinutes: 15,
		},
		Trading: TradingConfig{
			MinProfitThreshold: 0.01,
			MaxPositionSize:    100.0,
			CheckIntervalMs:    1000,
			QuoteStaleMs:       0,
			SubmitTimeoutMs:    5_000,
			FillTimeoutMs:      10_000,
			FillPollMs:         500,
			SettleGraceMs:      15_000,
			FlattenPartialLeg:  false,
			MinAskFilter:       0.60,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "updownbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:        false,
			Addr:           "localhost:6379",
			PoolSize:       20,
			MaxRetries:     3,
			QuoteRateLimit: 10,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "updownbot-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			IntervalHours: 24,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_filled", "trade_rejected", "trade_settled", "naked_leg_exposure", "error"},
		},
		Mode:     "simulation",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"simulation": true,
	"production": true,
	"monitor":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: simulation, production, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Production mode places real orders and needs wallet credentials.
	if strings.ToLower(c.Mode) == "production" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for production mode")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if !c.Redis.Enabled {
			errs = append(errs, "redis: must be enabled in production mode (single-instance lock)")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsFeedEnabled && c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty when ws_feed_enabled")
	}

	if c.Markets.AssetA == "" || c.Markets.AssetB == "" {
		errs = append(errs, "markets: asset_a and asset_b must not be empty")
	}
	if strings.EqualFold(c.Markets.AssetA, c.Markets.AssetB) {
		errs = append(errs, "markets: asset_a and asset_b must differ")
	}
	if c.Markets.WindowMinutes <= 0 {
		errs = append(errs, "markets: window_minutes must be positive")
	}

	if c.Trading.MinProfitThreshold <= 0 {
		errs = append(errs, "trading: min_profit_threshold must be > 0")
	}
	if c.Trading.MaxPositionSize <= 0 {
		errs = append(errs, "trading: max_position_size must be > 0")
	}
	if c.Trading.CheckIntervalMs < 1 {
		errs = append(errs, "trading: check_interval_ms must be >= 1")
	}
	if c.Trading.FillTimeoutMs <= 0 {
		errs = append(errs, "trading: fill_timeout_ms must be > 0")
	}
	if c.Trading.FillPollMs <= 0 || c.Trading.FillPollMs > c.Trading.FillTimeoutMs {
		errs = append(errs, "trading: fill_poll_ms must be > 0 and <= fill_timeout_ms")
	}
	if c.Trading.SubmitTimeoutMs <= 0 {
		errs = append(errs, "trading: submit_timeout_ms must be > 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres to be enabled")
		}
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, "archive: s3 endpoint and bucket must be set")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
