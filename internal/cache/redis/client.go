// Package redis backs the optional external surfaces of the book
// pipeline: the book mirror read by out-of-process consumers, the
// update stream they subscribe to, and the API rate limiter. Everything
// here is best effort from the ingest path's point of view; a Redis
// outage degrades these surfaces without stopping ingestion.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds the connectivity probe in New so a wedged Redis
// endpoint fails wiring quickly instead of hanging startup.
const connectTimeout = 5 * time.Second

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int // <= 0 falls back to 20
	MaxRetries int // <= 0 falls back to 3
	TLSEnabled bool
}

// Client wraps a go-redis Client shared by the mirror, update bus, and
// rate limiter.
type Client struct {
	rdb *redis.Client
}

// New creates a Redis Client and verifies connectivity before returning
// it, so wiring fails fast on a bad address or credentials.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   poolSize,
		MaxRetries: maxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for sub-packages that need
// direct access to the driver.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
