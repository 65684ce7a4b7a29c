package domain

import "context"

// VenueAdapter is the capability set every venue integration provides.
// Implementations normalize that venue's wire formats into canonical
// Orderbooks before delivering them.
type VenueAdapter interface {
	// Venue returns the venue this adapter serves.
	Venue() Venue

	// FetchSnapshot issues a one-shot book request. Transport failures wrap
	// ErrNetwork, venue-reported application errors wrap ErrVenueProtocol,
	// and response shapes that fail normalization wrap ErrParse.
	FetchSnapshot(ctx context.Context, symbol string) (Orderbook, error)

	// SubscribeToStream starts delivering replacement books for symbol.
	// Idempotent: calling again for an already subscribed symbol replaces
	// the handler without opening a second subscription. Malformed stream
	// messages are logged and dropped, never surfaced through onUpdate.
	SubscribeToStream(ctx context.Context, symbol string, onUpdate BookHandler) error

	// Unsubscribe stops delivery for symbol. Safe to call at any time,
	// including while a reconnect is in flight.
	Unsubscribe(symbol string) error

	// SupportedSymbols returns the static allow-list for this venue.
	SupportedSymbols() []string

	// SetStatusHandler registers the receiver for stream status
	// transitions. Must be called before the first subscription.
	SetStatusHandler(fn StatusHandler)

	// Close tears down the stream connection and all subscriptions.
	Close() error
}
