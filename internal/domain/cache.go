package domain

import (
	"context"
	"time"
)

// BookMirror mirrors accepted books into an external cache so
// out-of-process consumers can read current state without holding a
// connection to this service. Mirror failures must never block ingest.
type BookMirror interface {
	SetBook(ctx context.Context, book Orderbook) error
	GetBook(ctx context.Context, venue Venue, symbol string) (Orderbook, error)
	GetBBO(ctx context.Context, venue Venue, symbol string) (bestBid, bestAsk float64, err error)
}

// UpdateBus publishes accepted book updates for external consumers.
type UpdateBus interface {
	PublishUpdate(ctx context.Context, update BookUpdate) error
}

// RateLimiter bounds how often a keyed action may run. Allow reports whether
// the action identified by key may proceed given a budget of limit calls per
// window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
