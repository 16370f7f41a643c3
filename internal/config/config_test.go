package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Defaults()
}

func TestDefaults_Validate(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_ProductionNeedsWalletAndRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "production"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")
	assert.Contains(t, err.Error(), "redis")

	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_SealedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "production"
	cfg.Redis.Enabled = true
	cfg.Wallet.EncryptedKeyPath = "/etc/updownbot/key.sealed"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")
}

func TestValidate_SameAssetRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Markets.AssetA = "sol"
	cfg.Markets.AssetB = "SOL"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidate_FillPollBoundedByFillTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.FillPollMs = cfg.Trading.FillTimeoutMs + 1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fill_poll_ms")
}

func TestValidate_ArchiveRequiresPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	cfg.Postgres.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires postgres")
}

func TestQuoteStaleBound_DefaultsToTwiceInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.CheckIntervalMs = 500
	cfg.Trading.QuoteStaleMs = 0
	assert.Equal(t, time.Second, cfg.QuoteStaleBound())

	cfg.Trading.QuoteStaleMs = 3000
	assert.Equal(t, 3*time.Second, cfg.QuoteStaleBound())
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[markets]
asset_a = "ETH"

[trading]
min_profit_threshold = 0.02
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "ETH", cfg.Markets.AssetA)
	assert.InDelta(t, 0.02, cfg.Trading.MinProfitThreshold, 1e-9)
	// Untouched fields keep their defaults.
	assert.Equal(t, "BTC", cfg.Markets.AssetB)
	assert.Equal(t, 1000, cfg.Trading.CheckIntervalMs)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "simulation"`), 0o600))

	t.Setenv("UPDOWNBOT_MODE", "monitor")
	t.Setenv("UPDOWNBOT_TRADING_MAX_POSITION_SIZE", "250.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.InDelta(t, 250.5, cfg.Trading.MaxPositionSize, 1e-9)
}
