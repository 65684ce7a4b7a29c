package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BOOKD_* environment variable overrides, and
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

// LoadDefaults returns the built-in defaults with environment overrides
// applied, for running without a config file.
func LoadDefaults() *Config {
	cfg := Defaults()
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	return &cfg
}

// applyEnvOverrides reads well-known BOOKD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setBool(&cfg.Server.Enabled, "BOOKD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BOOKD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BOOKD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BOOKD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BOOKD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "BOOKD_SERVER_RATE_WINDOW")

	// ── Log ──
	setStr(&cfg.Log.Level, "BOOKD_LOG_LEVEL")
	setStr(&cfg.Log.Format, "BOOKD_LOG_FORMAT")

	// ── Feed ──
	setBool(&cfg.Feed.RejectStaleBooks, "BOOKD_FEED_REJECT_STALE_BOOKS")

	// ── Sim ──
	setFloat64(&cfg.Sim.MaxQuantity, "BOOKD_SIM_MAX_QUANTITY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BOOKD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BOOKD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOOKD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOOKD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BOOKD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BOOKD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BOOKD_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.WebhookURL, "BOOKD_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "BOOKD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BOOKD_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "BOOKD_NOTIFY_EVENTS")

	// ── Venues ──
	applyVenueEnvOverrides(&cfg.Venues.OKX, "OKX")
	applyVenueEnvOverrides(&cfg.Venues.Bybit, "BYBIT")
	applyVenueEnvOverrides(&cfg.Venues.Deribit, "DERIBIT")

	// ── Top-level ──
	setStr(&cfg.Mode, "BOOKD_MODE")
}

func applyVenueEnvOverrides(v *VenueConfig, name string) {
	setBool(&v.Enabled, "BOOKD_VENUES_"+name+"_ENABLED")
	setStr(&v.BaseURL, "BOOKD_VENUES_"+name+"_BASE_URL")
	setStr(&v.WSURL, "BOOKD_VENUES_"+name+"_WS_URL")
	setStringSlice(&v.Symbols, "BOOKD_VENUES_"+name+"_SYMBOLS")
	setInt(&v.Depth, "BOOKD_VENUES_"+name+"_DEPTH")
	setInt(&v.MaxReconnects, "BOOKD_VENUES_"+name+"_MAX_RECONNECTS")
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
