package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prem-prasad1710/bookd/internal/book"
	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkBook(v domain.Venue, symbol string, ts int64) domain.Orderbook {
	return domain.Orderbook{
		Venue:     v,
		Symbol:    symbol,
		Timestamp: ts,
		Sequence:  ts,
		Bids:      []domain.BookLevel{{Price: 100, Quantity: 2, Total: 2}},
		Asks:      []domain.BookLevel{{Price: 101, Quantity: 3, Total: 3}},
	}
}

func deepTestBook(v domain.Venue, symbol string) domain.Orderbook {
	return domain.Orderbook{
		Venue:     v,
		Symbol:    symbol,
		Timestamp: 1000,
		Bids: []domain.BookLevel{
			{Price: 100, Quantity: 1, Total: 1},
			{Price: 99, Quantity: 2, Total: 3},
			{Price: 98, Quantity: 3, Total: 6},
		},
		Asks: []domain.BookLevel{
			{Price: 101, Quantity: 1, Total: 1},
			{Price: 102, Quantity: 2, Total: 3},
			{Price: 103, Quantity: 3, Total: 6},
		},
	}
}

type fakeAdapter struct {
	mu           sync.Mutex
	venue        domain.Venue
	symbols      []string
	snapshot     domain.Orderbook
	snapshotErr  error
	subscribeErr error
	fetches      int
	subscribes   []string
	unsubs       []string
	handlers     map[string]domain.BookHandler
	statusFn     domain.StatusHandler
	closed       bool
}

func newFakeAdapter(v domain.Venue, symbols ...string) *fakeAdapter {
	return &fakeAdapter{
		venue:    v,
		symbols:  symbols,
		handlers: make(map[string]domain.BookHandler),
	}
}

func (f *fakeAdapter) Venue() domain.Venue { return f.venue }

func (f *fakeAdapter) FetchSnapshot(_ context.Context, symbol string) (domain.Orderbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.snapshotErr != nil {
		return domain.Orderbook{}, f.snapshotErr
	}
	b := f.snapshot
	b.Symbol = symbol
	return b, nil
}

func (f *fakeAdapter) SubscribeToStream(_ context.Context, symbol string, onUpdate domain.BookHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribes = append(f.subscribes, symbol)
	f.handlers[symbol] = onUpdate
	return nil
}

func (f *fakeAdapter) Unsubscribe(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, symbol)
	delete(f.handlers, symbol)
	return nil
}

func (f *fakeAdapter) SupportedSymbols() []string { return f.symbols }

func (f *fakeAdapter) SetStatusHandler(fn domain.StatusHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFn = fn
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// push drives the registered handler the way a venue read loop would.
func (f *fakeAdapter) push(symbol string, b domain.Orderbook) {
	f.mu.Lock()
	h := f.handlers[symbol]
	f.mu.Unlock()
	if h != nil {
		h(context.Background(), b)
	}
}

func (f *fakeAdapter) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

func (f *fakeAdapter) unsubCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubs)
}

type fakeMirror struct {
	mu     sync.Mutex
	books  map[domain.BookKey]domain.Orderbook
	setErr error
	sets   []domain.BookKey
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{books: make(map[domain.BookKey]domain.Orderbook)}
}

func (m *fakeMirror) SetBook(_ context.Context, b domain.Orderbook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets = append(m.sets, b.Key())
	m.books[b.Key()] = b
	return nil
}

func (m *fakeMirror) GetBook(_ context.Context, v domain.Venue, symbol string) (domain.Orderbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[domain.BookKey{Venue: v, Symbol: symbol}]
	if !ok {
		return domain.Orderbook{}, domain.ErrNoBookData
	}
	return b, nil
}

func (m *fakeMirror) GetBBO(ctx context.Context, v domain.Venue, symbol string) (float64, float64, error) {
	b, err := m.GetBook(ctx, v, symbol)
	if err != nil {
		return 0, 0, err
	}
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	return bid.Price, ask.Price, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []domain.BookUpdate
	err       error
}

func (b *fakeBus) PublishUpdate(_ context.Context, u domain.BookUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, u)
	return nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func newBookService(t *testing.T, adapters ...domain.VenueAdapter) (*BookService, *book.Store) {
	t.Helper()
	st := book.NewStore()
	svc := NewBookService(venue.NewRegistry(adapters...), st, nil, nil, nil, testLogger())
	return svc, st
}

func recvUpdate(t *testing.T, ch <-chan domain.BookUpdate) domain.BookUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for book update")
		return domain.BookUpdate{}
	}
}

func TestGetOrderbookStoreHit(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	svc, st := newBookService(t, ad)
	want := mkBook(domain.VenueOKX, "BTC-USDT", 100)
	st.Put(want)

	got, err := svc.GetOrderbook(context.Background(), domain.VenueOKX, "BTC-USDT", 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, ad.fetches, "store hit must not trigger a snapshot fetch")
}

func TestGetOrderbookFetchesOnMiss(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	ad.snapshot = mkBook(domain.VenueOKX, "BTC-USDT", 500)
	svc, st := newBookService(t, ad)

	got, err := svc.GetOrderbook(context.Background(), domain.VenueOKX, "BTC-USDT", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Timestamp)
	assert.Equal(t, 1, ad.fetches)

	stored, err := st.Get(domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err, "fetched snapshot must prime the store")
	assert.Equal(t, got, stored)
}

func TestGetOrderbookTrims(t *testing.T) {
	ad := newFakeAdapter(domain.VenueBybit, "BTCUSDT")
	svc, st := newBookService(t, ad)
	st.Put(deepTestBook(domain.VenueBybit, "BTCUSDT"))

	got, err := svc.GetOrderbook(context.Background(), domain.VenueBybit, "BTCUSDT", 1)
	require.NoError(t, err)
	require.Len(t, got.Bids, 1)
	require.Len(t, got.Asks, 1)
	assert.Equal(t, 100.0, got.Bids[0].Price)
	assert.Equal(t, 101.0, got.Asks[0].Price)
}

func TestGetOrderbookUnknownVenue(t *testing.T) {
	svc, _ := newBookService(t, newFakeAdapter(domain.VenueOKX, "BTC-USDT"))

	_, err := svc.GetOrderbook(context.Background(), domain.VenueDeribit, "BTC-PERPETUAL", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestGetOrderbookFetchErrorPropagates(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	ad.snapshotErr = fmt.Errorf("okx: symbol %q: %w", "NOPE-USDT", domain.ErrUnsupportedSymbol)
	svc, _ := newBookService(t, ad)

	_, err := svc.GetOrderbook(context.Background(), domain.VenueOKX, "NOPE-USDT", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedSymbol)
}

func TestGetOrderbookMirrorFallback(t *testing.T) {
	ad := newFakeAdapter(domain.VenueDeribit, "BTC-PERPETUAL")
	mirror := newFakeMirror()
	mirrored := mkBook(domain.VenueDeribit, "BTC-PERPETUAL", 900)
	require.NoError(t, mirror.SetBook(context.Background(), mirrored))

	st := book.NewStore()
	svc := NewBookService(venue.NewRegistry(ad), st, mirror, nil, nil, testLogger())

	got, err := svc.GetOrderbook(context.Background(), domain.VenueDeribit, "BTC-PERPETUAL", 0)
	require.NoError(t, err)
	assert.Equal(t, mirrored, got)
	assert.Equal(t, 0, ad.fetches, "mirror hit must not trigger a snapshot fetch")

	stored, err := st.Get(domain.VenueDeribit, "BTC-PERPETUAL")
	require.NoError(t, err, "mirror hit must prime the store")
	assert.Equal(t, mirrored, stored)
}

func TestSubscribeDeliversUpdates(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	svc, st := newBookService(t, ad)

	ch, cancel, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	defer cancel()

	pushed := mkBook(domain.VenueOKX, "BTC-USDT", 42)
	ad.push("BTC-USDT", pushed)

	u := recvUpdate(t, ch)
	assert.Equal(t, pushed, u.Book)
	assert.False(t, u.Received.IsZero())

	stored, err := st.Get(domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, pushed, stored)
}

func TestSubscribeSharesOneStream(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	svc, _ := newBookService(t, ad)

	ch1, cancel1, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	defer cancel2()

	assert.Equal(t, 1, ad.subscribeCount(), "second consumer must reuse the live stream")

	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 7))
	assert.Equal(t, int64(7), recvUpdate(t, ch1).Book.Timestamp)
	assert.Equal(t, int64(7), recvUpdate(t, ch2).Book.Timestamp)
}

func TestLastReleaseDetachesAndDeletes(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	svc, st := newBookService(t, ad)

	_, cancel1, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	ch2, cancel2, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)

	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 1))
	recvUpdate(t, ch2)

	cancel1()
	cancel1() // releasing twice must not double-count
	assert.Equal(t, 0, ad.unsubCount(), "stream must stay live while a consumer remains")
	_, err = st.Get(domain.VenueOKX, "BTC-USDT")
	assert.NoError(t, err)

	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 2))
	assert.Equal(t, int64(2), recvUpdate(t, ch2).Book.Timestamp)

	cancel2()
	assert.Equal(t, 1, ad.unsubCount())
	_, err = st.Get(domain.VenueOKX, "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNoBookData, "last release must remove the stored book")

	_, open := <-ch2
	assert.False(t, open, "consumer channel must be closed on release")
}

func TestStartIngestHoldsStreamWithoutConsumer(t *testing.T) {
	ad := newFakeAdapter(domain.VenueBybit, "BTCUSDT")
	svc, st := newBookService(t, ad)

	stop, err := svc.StartIngest(context.Background(), domain.VenueBybit, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, ad.subscribeCount())

	ad.push("BTCUSDT", mkBook(domain.VenueBybit, "BTCUSDT", 11))
	stored, err := st.Get(domain.VenueBybit, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(11), stored.Timestamp)

	stop()
	assert.Equal(t, 1, ad.unsubCount())
	_, err = st.Get(domain.VenueBybit, "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrNoBookData)
}

func TestIngestAndSubscribeShareRefcount(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	svc, st := newBookService(t, ad)

	stop, err := svc.StartIngest(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	ch, cancel, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, 1, ad.subscribeCount())

	stop()
	assert.Equal(t, 0, ad.unsubCount(), "consumer must keep the stream past ingest stop")

	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 3))
	assert.Equal(t, int64(3), recvUpdate(t, ch).Book.Timestamp)

	cancel()
	assert.Equal(t, 1, ad.unsubCount())
	_, err = st.Get(domain.VenueOKX, "BTC-USDT")
	assert.ErrorIs(t, err, domain.ErrNoBookData)
}

func TestSlowConsumerDropsUpdates(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	svc, _ := newBookService(t, ad)

	ch, cancel, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < consumerBuffer+5; i++ {
		ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", int64(i+1)))
	}

	assert.Equal(t, consumerBuffer, len(ch), "overflow updates must be dropped, not queued")
	first := recvUpdate(t, ch)
	assert.Equal(t, int64(1), first.Book.Timestamp, "drops discard the newest updates, not the oldest")
}

func TestSubscribeErrorLeavesNoStream(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	ad.subscribeErr = fmt.Errorf("okx/ws: connect: boom: %w", domain.ErrNetwork)
	svc, _ := newBookService(t, ad)

	_, _, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)

	ad.mu.Lock()
	ad.subscribeErr = nil
	ad.mu.Unlock()

	ch, cancel, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err, "failed acquire must not leave a phantom stream behind")
	defer cancel()
	assert.Equal(t, 1, ad.subscribeCount())

	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 5))
	assert.Equal(t, int64(5), recvUpdate(t, ch).Book.Timestamp)
}

func TestIngestHonorsStalenessGuard(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	st := book.NewStore()
	st.SetRejectStale(true)
	svc := NewBookService(venue.NewRegistry(ad), st, nil, nil, nil, testLogger())

	ch, cancel, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	defer cancel()

	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 200))
	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 100))

	assert.Equal(t, 1, len(ch), "rejected stale book must not fan out")
	stored, err := st.Get(domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(200), stored.Timestamp)
}

func TestIngestMirrorsAndPublishes(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	mirror := newFakeMirror()
	bus := &fakeBus{}
	st := book.NewStore()
	svc := NewBookService(venue.NewRegistry(ad), st, mirror, bus, nil, testLogger())

	ch, cancel, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	defer cancel()

	pushed := mkBook(domain.VenueOKX, "BTC-USDT", 77)
	ad.push("BTC-USDT", pushed)

	recvUpdate(t, ch)
	mirrored, err := mirror.GetBook(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, pushed, mirrored)
	require.Equal(t, 1, bus.count())
	assert.Equal(t, pushed, bus.published[0].Book)
}

func TestIngestSurvivesMirrorFailure(t *testing.T) {
	ad := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	mirror := newFakeMirror()
	mirror.setErr = errors.New("redis gone")
	st := book.NewStore()
	svc := NewBookService(venue.NewRegistry(ad), st, mirror, nil, nil, testLogger())

	ch, cancel, err := svc.Subscribe(context.Background(), domain.VenueOKX, "BTC-USDT")
	require.NoError(t, err)
	defer cancel()

	ad.push("BTC-USDT", mkBook(domain.VenueOKX, "BTC-USDT", 9))
	u := recvUpdate(t, ch)
	assert.Equal(t, int64(9), u.Book.Timestamp, "mirror failure must not block delivery")
	_, err = st.Get(domain.VenueOKX, "BTC-USDT")
	assert.NoError(t, err)
}

func TestListSupportedSymbols(t *testing.T) {
	ad := newFakeAdapter(domain.VenueDeribit, "BTC-PERPETUAL", "ETH-PERPETUAL")
	svc, _ := newBookService(t, ad)

	symbols, err := svc.ListSupportedSymbols(domain.VenueDeribit)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-PERPETUAL", "ETH-PERPETUAL"}, symbols)

	_, err = svc.ListSupportedSymbols(domain.VenueBybit)
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestVenuesAndTrackedBooks(t *testing.T) {
	okx := newFakeAdapter(domain.VenueOKX, "BTC-USDT")
	bybit := newFakeAdapter(domain.VenueBybit, "BTCUSDT")
	svc, st := newBookService(t, okx, bybit)

	assert.Equal(t, []domain.Venue{domain.VenueOKX, domain.VenueBybit}, svc.Venues())
	assert.Empty(t, svc.TrackedBooks())

	st.Put(mkBook(domain.VenueOKX, "BTC-USDT", 1))
	keys := svc.TrackedBooks()
	require.Len(t, keys, 1)
	assert.Equal(t, domain.BookKey{Venue: domain.VenueOKX, Symbol: "BTC-USDT"}, keys[0])
}
