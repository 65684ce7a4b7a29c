// Package config defines the top-level configuration for bookd and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BOOKD_* environment variables.
type Config struct {
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
	Feed   FeedConfig   `toml:"feed"`
	Sim    SimConfig    `toml:"sim"`
	Redis  RedisConfig  `toml:"redis"`
	Notify NotifyConfig `toml:"notify"`
	Venues VenuesConfig `toml:"venues"`
	Mode   string       `toml:"mode"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables authentication

	// RateLimit caps requests per client IP within RateWindow. It takes
	// effect only when Redis is enabled; 0 disables the limiter entirely.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

// FeedConfig holds ingestion behavior shared by all venues.
type FeedConfig struct {
	// RejectStaleBooks drops updates whose venue timestamp is older than
	// the stored book instead of applying them last-writer-wins.
	RejectStaleBooks bool `toml:"reject_stale_books"`
}

// SimConfig holds simulation guardrails.
type SimConfig struct {
	// MaxQuantity rejects simulation requests above this order size.
	// 0 means unlimited.
	MaxQuantity float64 `toml:"max_quantity"`
}

// RedisConfig holds Redis connection parameters for the optional book
// mirror, update publisher, and API rate limiter.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	WebhookURL     string   `toml:"webhook_url"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// VenuesConfig holds the per-venue adapter parameters.
type VenuesConfig struct {
	OKX     VenueConfig `toml:"okx"`
	Bybit   VenueConfig `toml:"bybit"`
	Deribit VenueConfig `toml:"deribit"`
}

// VenueConfig configures one venue adapter. An empty Symbols list falls
// back to the adapter's built-in allow-list.
type VenueConfig struct {
	Enabled       bool     `toml:"enabled"`
	BaseURL       string   `toml:"base_url"`
	WSURL         string   `toml:"ws_url"`
	Symbols       []string `toml:"symbols"`
	Depth         int      `toml:"depth"`
	MaxReconnects int      `toml:"max_reconnects"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Feed: FeedConfig{
			RejectStaleBooks: false,
		},
		Sim: SimConfig{
			MaxQuantity: 0,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Notify: NotifyConfig{
			Events: []string{"feed_down", "feed_recovered"},
		},
		Venues: VenuesConfig{
			OKX: VenueConfig{
				Enabled:       true,
				BaseURL:       "https://www.okx.com",
				WSURL:         "wss://ws.okx.com:8443/ws/v5/public",
				Depth:         25,
				MaxReconnects: 5,
			},
			Bybit: VenueConfig{
				Enabled:       true,
				BaseURL:       "https://api.bybit.com",
				WSURL:         "wss://stream.bybit.com/v5/public/spot",
				Depth:         25,
				MaxReconnects: 5,
			},
			Deribit: VenueConfig{
				Enabled:       true,
				BaseURL:       "https://www.deribit.com",
				WSURL:         "wss://www.deribit.com/ws/api/v2",
				Depth:         25,
				MaxReconnects: 5,
			},
		},
		Mode: "serve",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"ingest": true,
}

// validLogLevels enumerates the accepted values for LogConfig.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats enumerates the accepted values for LogConfig.Format.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, ingest)", c.Mode))
	}

	// Log
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, text)", c.Log.Format))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	// Sim
	if c.Sim.MaxQuantity < 0 {
		errs = append(errs, "sim: max_quantity must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Notify: token and chat id must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must both be set together")
	}

	// Venues: at least one must be enabled, and enabled venues need
	// complete endpoints.
	venues := []struct {
		name string
		cfg  VenueConfig
	}{
		{"okx", c.Venues.OKX},
		{"bybit", c.Venues.Bybit},
		{"deribit", c.Venues.Deribit},
	}
	anyEnabled := false
	for _, v := range venues {
		if !v.cfg.Enabled {
			continue
		}
		anyEnabled = true
		if v.cfg.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: base_url must not be empty when enabled", v.name))
		}
		if v.cfg.WSURL == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: ws_url must not be empty when enabled", v.name))
		}
		if v.cfg.Depth < 1 {
			errs = append(errs, fmt.Sprintf("venues.%s: depth must be >= 1", v.name))
		}
		if v.cfg.MaxReconnects < 1 {
			errs = append(errs, fmt.Sprintf("venues.%s: max_reconnects must be >= 1", v.name))
		}
	}
	if !anyEnabled {
		errs = append(errs, "venues: at least one venue must be enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
