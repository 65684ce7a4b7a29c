package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "serve", cfg.Mode)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Venues.OKX.Enabled)
	require.True(t, cfg.Venues.Bybit.Enabled)
	require.True(t, cfg.Venues.Deribit.Enabled)
	require.False(t, cfg.Redis.Enabled)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTempConfig(t, `
mode = "ingest"

[server]
port = 9999
api_key = "sekrit"
rate_window = "30s"

[log]
level = "debug"

[venues.bybit]
enabled = false

[venues.deribit]
symbols = ["BTC-PERPETUAL"]
depth = 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "ingest", cfg.Mode)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, "sekrit", cfg.Server.APIKey)
	require.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	require.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.True(t, cfg.Venues.OKX.Enabled)
	require.Equal(t, "https://www.okx.com", cfg.Venues.OKX.BaseURL)

	require.False(t, cfg.Venues.Bybit.Enabled)
	require.Equal(t, []string{"BTC-PERPETUAL"}, cfg.Venues.Deribit.Symbols)
	require.Equal(t, 50, cfg.Venues.Deribit.Depth)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeTempConfig(t, `
[server]
port = 9000
`)
	t.Setenv("BOOKD_SERVER_PORT", "7070")
	t.Setenv("BOOKD_REDIS_ENABLED", "true")
	t.Setenv("BOOKD_REDIS_PASSWORD", "hunter2")
	t.Setenv("BOOKD_NOTIFY_EVENTS", "feed_down, feed_recovered ,")
	t.Setenv("BOOKD_VENUES_OKX_SYMBOLS", "BTC-USDT,ETH-USDT")
	t.Setenv("BOOKD_SERVER_RATE_WINDOW", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "hunter2", cfg.Redis.Password)
	require.Equal(t, []string{"feed_down", "feed_recovered"}, cfg.Notify.Events)
	require.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, cfg.Venues.OKX.Symbols)
	require.Equal(t, 2*time.Minute, cfg.Server.RateWindow.Duration)
}

func TestEnvOverridesIgnoreUnparseable(t *testing.T) {
	t.Setenv("BOOKD_SERVER_PORT", "not-a-number")
	cfg := LoadDefaults()
	require.Equal(t, 8080, cfg.Server.Port)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.Log.Level = "loud"
	cfg.Server.Port = 0
	cfg.Sim.MaxQuantity = -1
	cfg.Venues.OKX.Enabled = false
	cfg.Venues.Bybit.Enabled = false
	cfg.Venues.Deribit.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, `unknown mode "replay"`)
	require.ErrorContains(t, err, `unknown level "loud"`)
	require.ErrorContains(t, err, "port must be 1-65535")
	require.ErrorContains(t, err, "max_quantity must be >= 0")
	require.ErrorContains(t, err, "at least one venue must be enabled")
}

func TestValidateEnabledVenueNeedsEndpoints(t *testing.T) {
	cfg := Defaults()
	cfg.Venues.Bybit.BaseURL = ""
	cfg.Venues.Bybit.WSURL = ""

	err := cfg.Validate()
	require.ErrorContains(t, err, "venues.bybit: base_url must not be empty")
	require.ErrorContains(t, err, "venues.bybit: ws_url must not be empty")
}

func TestValidateTelegramPair(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.ErrorContains(t, err, "telegram_token and telegram_chat_id must both be set together")

	cfg.Notify.TelegramChatID = "42"
	require.NoError(t, cfg.Validate())
}

func TestValidateRateWindowRequiredWithLimit(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 10
	cfg.Server.RateWindow = duration{}

	err := cfg.Validate()
	require.ErrorContains(t, err, "rate_window must be positive")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "sekrit"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.WebhookURL = "https://hooks.example.com/T123/secret"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Venues.OKX.Symbols = []string{"BTC-USDT"}

	red := RedactedConfig(&cfg)

	require.Equal(t, "***", red.Server.APIKey)
	require.Equal(t, "***", red.Redis.Password)
	require.Equal(t, "***", red.Notify.WebhookURL)
	require.Equal(t, "***", red.Notify.TelegramToken)
	require.Empty(t, red.Notify.TelegramChatID, "empty fields stay empty, not starred")

	// Originals are untouched and slices are independent.
	require.Equal(t, "sekrit", cfg.Server.APIKey)
	red.Venues.OKX.Symbols[0] = "mutated"
	require.Equal(t, "BTC-USDT", cfg.Venues.OKX.Symbols[0])
}
