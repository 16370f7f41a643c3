package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWNBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWNBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "UPDOWNBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWNBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWNBOT_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.ApiKey, "UPDOWNBOT_WALLET_API_KEY")
	setStr(&cfg.Wallet.ApiSecret, "UPDOWNBOT_WALLET_API_SECRET")
	setStr(&cfg.Wallet.ApiPassphrase, "UPDOWNBOT_WALLET_API_PASSPHRASE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "UPDOWNBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "UPDOWNBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "UPDOWNBOT_POLYMARKET_WS_HOST")
	setBool(&cfg.Polymarket.WsFeedEnabled, "UPDOWNBOT_POLYMARKET_WS_FEED_ENABLED")

	// ── Markets ──
	setStr(&cfg.Markets.AssetA, "UPDOWNBOT_MARKETS_ASSET_A")
	setStr(&cfg.Markets.AssetB, "UPDOWNBOT_MARKETS_ASSET_B")
	setInt(&cfg.Markets.WindowMinutes, "UPDOWNBOT_MARKETS_WINDOW_MINUTES")
	setStr(&cfg.Markets.ConditionIDA, "UPDOWNBOT_MARKETS_CONDITION_ID_A")
	setStr(&cfg.Markets.ConditionIDB, "UPDOWNBOT_MARKETS_CONDITION_ID_B")

	// ── Trading ──
	setFloat64(&cfg.Trading.MinProfitThreshold, "UPDOWNBOT_TRADING_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Trading.MaxPositionSize, "UPDOWNBOT_TRADING_MAX_POSITION_SIZE")
	setInt(&cfg.Trading.CheckIntervalMs, "UPDOWNBOT_TRADING_CHECK_INTERVAL_MS")
	setInt(&cfg.Trading.QuoteStaleMs, "UPDOWNBOT_TRADING_QUOTE_STALE_MS")
	setInt(&cfg.Trading.SubmitTimeoutMs, "UPDOWNBOT_TRADING_SUBMIT_TIMEOUT_MS")
	setInt(&cfg.Trading.FillTimeoutMs, "UPDOWNBOT_TRADING_FILL_TIMEOUT_MS")
	setInt(&cfg.Trading.FillPollMs, "UPDOWNBOT_TRADING_FILL_POLL_MS")
	setBool(&cfg.Trading.FlattenPartialLeg, "UPDOWNBOT_TRADING_FLATTEN_PARTIAL_LEG")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "UPDOWNBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "UPDOWNBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWNBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWNBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWNBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWNBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWNBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWNBOT_POSTGRES_SSLMODE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "UPDOWNBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWNBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWNBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWNBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWNBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "UPDOWNBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWNBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWNBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWNBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWNBOT_S3_SECRET_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWNBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWNBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWNBOT_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "UPDOWNBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "UPDOWNBOT_SERVER_PORT")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWNBOT_MODE")
	setStr(&cfg.LogLevel, "UPDOWNBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
