package book

import (
	"fmt"
	"sync"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// Store is the in-memory book store. Writes swap a whole immutable book
// per key; readers always see a fully formed book, never a partial one.
// Policy is last-write-wins unless the staleness guard is enabled.
type Store struct {
	mu          sync.RWMutex
	books       map[domain.BookKey]*domain.Orderbook
	rejectStale bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		books: make(map[domain.BookKey]*domain.Orderbook),
	}
}

// SetRejectStale toggles the staleness guard. When enabled, Put drops
// books whose Timestamp is older than the stored book's for the same
// key. Default is off, matching plain last-write-wins.
func (s *Store) SetRejectStale(on bool) {
	s.mu.Lock()
	s.rejectStale = on
	s.mu.Unlock()
}

// Put stores the book, replacing any existing entry for its key. The
// return value reports whether the write was accepted.
func (s *Store) Put(book domain.Orderbook) bool {
	key := book.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectStale {
		if cur, ok := s.books[key]; ok && book.Timestamp < cur.Timestamp {
			return false
		}
	}
	s.books[key] = &book
	return true
}

// Get returns the current book for the key, or domain.ErrNoBookData.
func (s *Store) Get(venue domain.Venue, symbol string) (domain.Orderbook, error) {
	s.mu.RLock()
	b, ok := s.books[domain.BookKey{Venue: venue, Symbol: symbol}]
	s.mu.RUnlock()
	if !ok {
		return domain.Orderbook{}, fmt.Errorf("book %s:%s: %w", venue, symbol, domain.ErrNoBookData)
	}
	return *b, nil
}

// Delete removes the key. Removing an absent key is a no-op.
func (s *Store) Delete(venue domain.Venue, symbol string) {
	s.mu.Lock()
	delete(s.books, domain.BookKey{Venue: venue, Symbol: symbol})
	s.mu.Unlock()
}

// Keys returns the stored keys in unspecified order.
func (s *Store) Keys() []domain.BookKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]domain.BookKey, 0, len(s.books))
	for k := range s.books {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored books.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}

// Compile-time interface check.
var _ domain.BookStore = (*Store)(nil)
