package domain

import (
	"context"
	"time"
)

// BookHandler receives each accepted replacement book for a subscribed
// symbol. Handlers must not mutate the book's level slices.
type BookHandler func(ctx context.Context, book Orderbook)

// FeedStatus describes the health of one venue stream.
type FeedStatus string

const (
	FeedConnected    FeedStatus = "connected"
	FeedReconnecting FeedStatus = "reconnecting"
	FeedDisconnected FeedStatus = "disconnected" // terminal, retries exhausted
)

// FeedStatusEvent is emitted when a venue stream changes state.
type FeedStatusEvent struct {
	Venue   Venue
	Status  FeedStatus
	Attempt int
	Detail  string
	At      time.Time
}

// StatusHandler receives feed status transitions.
type StatusHandler func(ev FeedStatusEvent)

// BookUpdate is the fan-out envelope delivered to book subscribers.
type BookUpdate struct {
	Book     Orderbook
	Received time.Time
}
