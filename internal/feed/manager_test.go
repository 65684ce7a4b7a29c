package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStarter struct {
	mu     sync.Mutex
	starts []domain.BookKey
	stops  int
	fail   map[domain.BookKey]error
}

func (s *fakeStarter) StartIngest(_ context.Context, v domain.Venue, symbol string) (func(), error) {
	key := domain.BookKey{Venue: v, Symbol: symbol}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[key]; err != nil {
		return nil, err
	}
	s.starts = append(s.starts, key)
	return func() {
		s.mu.Lock()
		s.stops++
		s.mu.Unlock()
	}, nil
}

func (s *fakeStarter) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type fakeFeedAdapter struct {
	mu       sync.Mutex
	venue    domain.Venue
	statusFn domain.StatusHandler
}

func (f *fakeFeedAdapter) Venue() domain.Venue { return f.venue }

func (f *fakeFeedAdapter) FetchSnapshot(context.Context, string) (domain.Orderbook, error) {
	return domain.Orderbook{}, nil
}

func (f *fakeFeedAdapter) SubscribeToStream(context.Context, string, domain.BookHandler) error {
	return nil
}

func (f *fakeFeedAdapter) Unsubscribe(string) error { return nil }

func (f *fakeFeedAdapter) SupportedSymbols() []string { return nil }

func (f *fakeFeedAdapter) SetStatusHandler(fn domain.StatusHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFn = fn
}

func (f *fakeFeedAdapter) Close() error { return nil }

// emit drives the registered handler the way a stream goroutine would.
func (f *fakeFeedAdapter) emit(ev domain.FeedStatusEvent) {
	f.mu.Lock()
	fn := f.statusFn
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

type fakeAlerter struct {
	mu     sync.Mutex
	events []string
	ch     chan string
}

func newFakeAlerter() *fakeAlerter {
	return &fakeAlerter{ch: make(chan string, 8)}
}

func (a *fakeAlerter) Notify(_ context.Context, event, _, _ string) error {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
	a.ch <- event
	return nil
}

func (a *fakeAlerter) waitEvent(t *testing.T) string {
	t.Helper()
	select {
	case ev := <-a.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
		return ""
	}
}

func statusEvent(v domain.Venue, s domain.FeedStatus, attempt int) domain.FeedStatusEvent {
	return domain.FeedStatusEvent{Venue: v, Status: s, Attempt: attempt, At: time.Now().UTC()}
}

func TestManagerStartSubscribesConfiguredSymbols(t *testing.T) {
	starter := &fakeStarter{}
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	bybit := &fakeFeedAdapter{venue: domain.VenueBybit}
	symbols := map[domain.Venue][]string{
		domain.VenueOKX:   {"BTC-USDT", "ETH-USDT"},
		domain.VenueBybit: {"BTCUSDT"},
	}
	m := NewManager(starter, []domain.VenueAdapter{okx, bybit}, symbols, nil, nil, testLogger())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.ElementsMatch(t, []domain.BookKey{
		{Venue: domain.VenueOKX, Symbol: "BTC-USDT"},
		{Venue: domain.VenueOKX, Symbol: "ETH-USDT"},
		{Venue: domain.VenueBybit, Symbol: "BTCUSDT"},
	}, starter.starts)
	assert.NotNil(t, okx.statusFn, "status handler must be registered before subscribing")
	assert.NotNil(t, bybit.statusFn)
}

func TestManagerStartPartialFailure(t *testing.T) {
	starter := &fakeStarter{fail: map[domain.BookKey]error{
		{Venue: domain.VenueOKX, Symbol: "ETH-USDT"}: errors.New("dial refused"),
	}}
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	symbols := map[domain.Venue][]string{domain.VenueOKX: {"BTC-USDT", "ETH-USDT"}}
	m := NewManager(starter, []domain.VenueAdapter{okx}, symbols, nil, nil, testLogger())

	require.NoError(t, m.Start(context.Background()), "one bad symbol must not fail startup")
	defer m.Stop()
	assert.Equal(t, []domain.BookKey{{Venue: domain.VenueOKX, Symbol: "BTC-USDT"}}, starter.starts)
}

func TestManagerStartAllFail(t *testing.T) {
	starter := &fakeStarter{fail: map[domain.BookKey]error{
		{Venue: domain.VenueOKX, Symbol: "BTC-USDT"}: errors.New("dial refused"),
		{Venue: domain.VenueOKX, Symbol: "ETH-USDT"}: errors.New("dial refused"),
	}}
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	symbols := map[domain.Venue][]string{domain.VenueOKX: {"BTC-USDT", "ETH-USDT"}}
	m := NewManager(starter, []domain.VenueAdapter{okx}, symbols, nil, nil, testLogger())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 subscriptions failed")
}

func TestManagerStopReleasesSubscriptions(t *testing.T) {
	starter := &fakeStarter{}
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	symbols := map[domain.Venue][]string{domain.VenueOKX: {"BTC-USDT", "ETH-USDT"}}
	m := NewManager(starter, []domain.VenueAdapter{okx}, symbols, nil, nil, testLogger())

	require.NoError(t, m.Start(context.Background()))
	m.Stop()
	assert.Equal(t, 2, starter.stopCount())
	m.Stop()
	assert.Equal(t, 2, starter.stopCount(), "second Stop must be a no-op")
}

func TestStatusFanOutAndStatuses(t *testing.T) {
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	m := NewManager(&fakeStarter{}, []domain.VenueAdapter{okx}, nil, nil, nil, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	ch, cancel := m.SubscribeStatus()
	defer cancel()

	okx.emit(statusEvent(domain.VenueOKX, domain.FeedConnected, 0))

	select {
	case ev := <-ch:
		assert.Equal(t, domain.VenueOKX, ev.Venue)
		assert.Equal(t, domain.FeedConnected, ev.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status event")
	}

	statuses := m.Statuses()
	assert.Equal(t, domain.FeedConnected, statuses[domain.VenueOKX])

	okx.emit(statusEvent(domain.VenueOKX, domain.FeedReconnecting, 1))
	assert.Equal(t, domain.FeedReconnecting, m.Statuses()[domain.VenueOKX])
}

func TestStatusSubscriberCancelAfterStop(t *testing.T) {
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	m := NewManager(&fakeStarter{}, []domain.VenueAdapter{okx}, nil, nil, nil, testLogger())
	require.NoError(t, m.Start(context.Background()))

	ch, cancel := m.SubscribeStatus()
	m.Stop()

	_, open := <-ch
	assert.False(t, open, "Stop must close status consumers")
	cancel() // must not panic on the already-closed channel
}

func TestSlowStatusConsumerDrops(t *testing.T) {
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	m := NewManager(&fakeStarter{}, []domain.VenueAdapter{okx}, nil, nil, nil, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	ch, cancel := m.SubscribeStatus()
	defer cancel()

	for i := 0; i < statusBuffer+3; i++ {
		okx.emit(statusEvent(domain.VenueOKX, domain.FeedReconnecting, i+1))
	}
	assert.Equal(t, statusBuffer, len(ch), "overflow events must be dropped")
}

func TestAlertsOnDisconnectAndRecovery(t *testing.T) {
	okx := &fakeFeedAdapter{venue: domain.VenueOKX}
	alerter := newFakeAlerter()
	m := NewManager(&fakeStarter{}, []domain.VenueAdapter{okx}, nil, alerter, nil, testLogger())
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	// The first connect is not a recovery.
	okx.emit(statusEvent(domain.VenueOKX, domain.FeedConnected, 0))
	okx.emit(statusEvent(domain.VenueOKX, domain.FeedReconnecting, 1))

	okx.emit(statusEvent(domain.VenueOKX, domain.FeedConnected, 0))
	assert.Equal(t, notify.EventFeedRecovered, alerter.waitEvent(t))

	okx.emit(statusEvent(domain.VenueOKX, domain.FeedDisconnected, 5))
	assert.Equal(t, notify.EventFeedDown, alerter.waitEvent(t))

	alerter.mu.Lock()
	total := len(alerter.events)
	alerter.mu.Unlock()
	assert.Equal(t, 2, total, "plain connects and reconnect attempts must not alert")
}
