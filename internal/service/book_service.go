// Package service implements the orchestration layer between venue
// adapters, the book store, and the presentation surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/metrics"
)

// mirrorWriteTimeout bounds mirror and bus writes so a slow Redis
// cannot stall a venue read loop.
const mirrorWriteTimeout = 2 * time.Second

// consumerBuffer is the per-consumer update channel depth. When a
// consumer falls behind, updates are dropped rather than stalling the
// feed.
const consumerBuffer = 16

// AdapterRegistry resolves venue adapters.
type AdapterRegistry interface {
	Get(v domain.Venue) (domain.VenueAdapter, error)
	All() []domain.VenueAdapter
	Venues() []domain.Venue
}

// streamState tracks one live venue subscription: how many holders keep
// it open and which consumer channels receive its updates.
type streamState struct {
	refs      int
	consumers map[int64]chan domain.BookUpdate
}

// BookService owns the ingest path (venue stream to store, mirror, bus,
// and fan-out) and the read path (store first, mirror second, REST
// snapshot last).
type BookService struct {
	registry AdapterRegistry
	store    domain.BookStore
	mirror   domain.BookMirror
	bus      domain.UpdateBus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	streams  map[domain.BookKey]*streamState
	perVenue map[domain.Venue]int
	nextID   int64
}

// NewBookService creates a BookService. mirror and bus may be nil when
// Redis is not configured; metrics may be nil.
func NewBookService(
	registry AdapterRegistry,
	store domain.BookStore,
	mirror domain.BookMirror,
	bus domain.UpdateBus,
	m *metrics.Metrics,
	logger *slog.Logger,
) *BookService {
	return &BookService{
		registry: registry,
		store:    store,
		mirror:   mirror,
		bus:      bus,
		metrics:  m,
		logger:   logger.With(slog.String("component", "book_service")),
		streams:  make(map[domain.BookKey]*streamState),
		perVenue: make(map[domain.Venue]int),
	}
}

// Venues returns the configured venue identifiers.
func (s *BookService) Venues() []domain.Venue {
	return s.registry.Venues()
}

// ListSupportedSymbols returns the symbol allow-list for a venue.
func (s *BookService) ListSupportedSymbols(v domain.Venue) ([]string, error) {
	adapter, err := s.registry.Get(v)
	if err != nil {
		return nil, err
	}
	return adapter.SupportedSymbols(), nil
}

// TrackedBooks returns the keys currently held in the store.
func (s *BookService) TrackedBooks() []domain.BookKey {
	return s.store.Keys()
}

// GetOrderbook returns the current book for a venue and symbol, trimmed
// to the requested number of levels per side (zero keeps all). On a
// store miss it falls back to the Redis mirror and then to a one-shot
// REST snapshot, priming the store with whatever it finds.
func (s *BookService) GetOrderbook(ctx context.Context, v domain.Venue, symbol string, levels int) (domain.Orderbook, error) {
	b, err := s.store.Get(v, symbol)
	if err == nil {
		return b.Trim(levels), nil
	}
	if !errors.Is(err, domain.ErrNoBookData) {
		return domain.Orderbook{}, err
	}

	adapter, err := s.registry.Get(v)
	if err != nil {
		return domain.Orderbook{}, err
	}

	if s.mirror != nil {
		mb, merr := s.mirror.GetBook(ctx, v, symbol)
		if merr == nil && len(mb.Bids)+len(mb.Asks) > 0 {
			s.store.Put(mb)
			return mb.Trim(levels), nil
		}
	}

	fetched, err := adapter.FetchSnapshot(ctx, symbol)
	s.metrics.SnapshotFetched(v, err == nil)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("book_service: fetch snapshot %s %q: %w", v, symbol, err)
	}
	s.ingest(ctx, fetched)
	return fetched.Trim(levels), nil
}

// StartIngest begins streaming a venue and symbol into the store
// without attaching a consumer. The returned stop function releases the
// stream; the last holder to release detaches the adapter and removes
// the stored book.
func (s *BookService) StartIngest(ctx context.Context, v domain.Venue, symbol string) (func(), error) {
	adapter, err := s.registry.Get(v)
	if err != nil {
		return nil, err
	}

	key := domain.BookKey{Venue: v, Symbol: symbol}
	if err := s.acquire(ctx, adapter, key); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.release(adapter, key, 0) })
	}, nil
}

// Subscribe attaches a consumer to the stream for a venue and symbol,
// starting it if necessary. It returns the update channel and a cancel
// function. Updates to a full channel are dropped, so a slow consumer
// only loses intermediate books, never stalls the feed.
func (s *BookService) Subscribe(ctx context.Context, v domain.Venue, symbol string) (<-chan domain.BookUpdate, func(), error) {
	adapter, err := s.registry.Get(v)
	if err != nil {
		return nil, nil, err
	}

	key := domain.BookKey{Venue: v, Symbol: symbol}
	if err := s.acquire(ctx, adapter, key); err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.BookUpdate, consumerBuffer)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	st := s.streams[key]
	st.consumers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { s.release(adapter, key, id) })
	}
	return ch, cancel, nil
}

// acquire takes one reference on the stream for key, subscribing the
// adapter on the first holder.
func (s *BookService) acquire(ctx context.Context, adapter domain.VenueAdapter, key domain.BookKey) error {
	s.mu.Lock()
	st, ok := s.streams[key]
	if ok {
		st.refs++
		s.mu.Unlock()
		return nil
	}
	st = &streamState{refs: 1, consumers: make(map[int64]chan domain.BookUpdate)}
	s.streams[key] = st
	s.perVenue[key.Venue]++
	venueCount := s.perVenue[key.Venue]
	s.mu.Unlock()

	if err := adapter.SubscribeToStream(ctx, key.Symbol, s.ingest); err != nil {
		s.mu.Lock()
		delete(s.streams, key)
		s.perVenue[key.Venue]--
		s.mu.Unlock()
		s.metrics.SetSubscriptions(key.Venue, venueCount-1)
		return fmt.Errorf("book_service: subscribe %s %q: %w", key.Venue, key.Symbol, err)
	}
	s.metrics.SetSubscriptions(key.Venue, venueCount)

	s.logger.Info("stream started",
		slog.String("venue", string(key.Venue)),
		slog.String("symbol", key.Symbol),
	)
	return nil
}

// release drops one reference on the stream for key, detaching the
// consumer with the given id (zero for ingest holders). The last
// release unsubscribes the adapter and removes the stored book.
func (s *BookService) release(adapter domain.VenueAdapter, key domain.BookKey, id int64) {
	s.mu.Lock()
	st, ok := s.streams[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	if id != 0 {
		if ch, exists := st.consumers[id]; exists {
			delete(st.consumers, id)
			close(ch)
		}
	}
	st.refs--
	last := st.refs <= 0
	var venueCount int
	if last {
		delete(s.streams, key)
		s.perVenue[key.Venue]--
		venueCount = s.perVenue[key.Venue]
	}
	s.mu.Unlock()

	if !last {
		return
	}

	if err := adapter.Unsubscribe(key.Symbol); err != nil {
		s.logger.Warn("unsubscribe failed",
			slog.String("venue", string(key.Venue)),
			slog.String("symbol", key.Symbol),
			slog.String("error", err.Error()),
		)
	}
	s.store.Delete(key.Venue, key.Symbol)
	s.metrics.SetSubscriptions(key.Venue, venueCount)

	s.logger.Info("stream stopped",
		slog.String("venue", string(key.Venue)),
		slog.String("symbol", key.Symbol),
	)
}

// ingest is the book handler given to venue adapters: apply to the
// store, mirror, publish, then fan out to consumers. Mirror and bus
// writes happen inline so the mirror observes books in order; the
// timeout bounds a slow Redis.
func (s *BookService) ingest(ctx context.Context, b domain.Orderbook) {
	if !s.store.Put(b) {
		s.metrics.BookRejected(b.Venue, "stale")
		return
	}
	s.metrics.BookApplied(b.Venue)

	update := domain.BookUpdate{Book: b, Received: time.Now().UTC()}

	if s.mirror != nil || s.bus != nil {
		wctx, cancel := context.WithTimeout(ctx, mirrorWriteTimeout)
		if s.mirror != nil {
			if err := s.mirror.SetBook(wctx, b); err != nil {
				s.logger.WarnContext(ctx, "mirror write failed",
					slog.String("venue", string(b.Venue)),
					slog.String("symbol", b.Symbol),
					slog.String("error", err.Error()),
				)
			}
		}
		if s.bus != nil {
			if err := s.bus.PublishUpdate(wctx, update); err != nil {
				s.logger.WarnContext(ctx, "publish update failed",
					slog.String("venue", string(b.Venue)),
					slog.String("symbol", b.Symbol),
					slog.String("error", err.Error()),
				)
			}
		}
		cancel()
	}

	s.fanOut(update)
}

// fanOut delivers one update to every consumer of its book without
// blocking on any of them. Sends happen under the mutex so a concurrent
// release can never close a channel mid-send; the sends cannot block,
// so the hold is bounded.
func (s *BookService) fanOut(u domain.BookUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streams[u.Book.Key()]
	if st == nil {
		return
	}
	for _, ch := range st.consumers {
		select {
		case ch <- u:
		default:
		}
	}
}
