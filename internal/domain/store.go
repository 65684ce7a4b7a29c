package domain

// BookStore holds the latest canonical book per (venue, symbol) key. It
// is the single source of truth consulted by simulation and analytics.
type BookStore interface {
	// Put replaces the stored book for the key wholesale. It reports
	// whether the write was accepted (a staleness guard may reject
	// books older than the stored one).
	Put(book Orderbook) bool

	// Get returns the current book for the key, or ErrNoBookData.
	Get(venue Venue, symbol string) (Orderbook, error)

	// Delete removes the key. Removing an absent key is a no-op.
	Delete(venue Venue, symbol string)

	// Keys returns the currently stored keys in unspecified order.
	Keys() []BookKey

	// Len returns the number of stored books.
	Len() int
}
