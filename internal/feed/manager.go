// Package feed starts the configured venue subscriptions and
// republishes stream health transitions to status consumers and the
// operator notifier.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/metrics"
	"github.com/prem-prasad1710/bookd/internal/notify"
)

// statusBuffer is the per-subscriber status channel depth.
const statusBuffer = 8

// BookStarter starts headless ingestion for one book key.
type BookStarter interface {
	StartIngest(ctx context.Context, v domain.Venue, symbol string) (func(), error)
}

// Alerter delivers operator notifications. *notify.Notifier satisfies
// it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Manager holds the default ingest subscriptions open and fans venue
// status transitions out to subscribers. It is the single status
// handler for every adapter.
type Manager struct {
	books    BookStarter
	adapters []domain.VenueAdapter
	symbols  map[domain.Venue][]string
	alerter  Alerter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	stops   []func()
	subs    map[int64]chan domain.FeedStatusEvent
	nextID  int64
	last    map[domain.Venue]domain.FeedStatus
	stopped bool
}

// NewManager creates a Manager. symbols maps each venue to the symbols
// ingested by default; alerter and metrics may be nil.
func NewManager(
	books BookStarter,
	adapters []domain.VenueAdapter,
	symbols map[domain.Venue][]string,
	alerter Alerter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		books:    books,
		adapters: adapters,
		symbols:  symbols,
		alerter:  alerter,
		metrics:  m,
		logger:   logger.With(slog.String("component", "feed_manager")),
		subs:     make(map[int64]chan domain.FeedStatusEvent),
		last:     make(map[domain.Venue]domain.FeedStatus),
	}
}

// Start registers the status handler on every adapter and opens the
// configured default subscriptions. Individual failures are logged and
// skipped; Start fails only when every subscription fails.
func (m *Manager) Start(ctx context.Context) error {
	// Handlers must be in place before the first subscription so the
	// initial connected event is observed.
	for _, ad := range m.adapters {
		ad.SetStatusHandler(m.handleStatus)
	}

	var started int
	var errs []string
	for _, ad := range m.adapters {
		v := ad.Venue()
		for _, symbol := range m.symbols[v] {
			stop, err := m.books.StartIngest(ctx, v, symbol)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s %s: %v", v, symbol, err))
				m.logger.Error("feed start failed",
					slog.String("venue", string(v)),
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
				continue
			}
			started++
			m.mu.Lock()
			m.stops = append(m.stops, stop)
			m.mu.Unlock()
		}
	}

	if started == 0 && len(errs) > 0 {
		return fmt.Errorf("feed: all %d subscriptions failed: %s", len(errs), strings.Join(errs, "; "))
	}
	if len(errs) > 0 {
		m.logger.Warn("some feeds failed to start",
			slog.Int("failed", len(errs)),
			slog.Int("started", started),
		)
	}
	m.logger.Info("feed manager started", slog.Int("subscriptions", started))
	return nil
}

// SubscribeStatus attaches a consumer to venue status transitions. A
// full consumer channel drops events rather than stalling the stream
// that reported them.
func (m *Manager) SubscribeStatus() (<-chan domain.FeedStatusEvent, func()) {
	ch := make(chan domain.FeedStatusEvent, statusBuffer)
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			if cur, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(cur)
			}
			m.mu.Unlock()
		})
	}
	return ch, cancel
}

// Statuses returns the last observed status per venue. Venues that have
// not reported yet are absent.
func (m *Manager) Statuses() map[domain.Venue]domain.FeedStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.Venue]domain.FeedStatus, len(m.last))
	for v, s := range m.last {
		out[v] = s
	}
	return out
}

// Stop releases the default subscriptions and closes all status
// consumers.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	stops := m.stops
	m.stops = nil
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	m.logger.Info("feed manager stopped")
}

// handleStatus is invoked from venue stream goroutines. Alert delivery
// runs detached so a slow sender never stalls a reconnect.
func (m *Manager) handleStatus(ev domain.FeedStatusEvent) {
	m.metrics.SetFeedUp(ev.Venue, ev.Status == domain.FeedConnected)
	if ev.Status == domain.FeedReconnecting {
		m.metrics.Reconnect(ev.Venue)
	}

	m.mu.Lock()
	prev := m.last[ev.Venue]
	m.last[ev.Venue] = ev.Status
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	m.mu.Unlock()

	switch ev.Status {
	case domain.FeedConnected:
		m.logger.Info("venue stream connected", slog.String("venue", string(ev.Venue)))
		if m.alerter != nil && (prev == domain.FeedReconnecting || prev == domain.FeedDisconnected) {
			go m.alert(notify.EventFeedRecovered,
				fmt.Sprintf("feed recovered: %s", ev.Venue),
				fmt.Sprintf("the %s stream is delivering books again", ev.Venue),
			)
		}
	case domain.FeedReconnecting:
		m.logger.Warn("venue stream reconnecting",
			slog.String("venue", string(ev.Venue)),
			slog.Int("attempt", ev.Attempt),
		)
	case domain.FeedDisconnected:
		m.logger.Error("venue stream disconnected",
			slog.String("venue", string(ev.Venue)),
			slog.String("detail", ev.Detail),
		)
		if m.alerter != nil {
			go m.alert(notify.EventFeedDown,
				fmt.Sprintf("feed down: %s", ev.Venue),
				fmt.Sprintf("the %s stream is terminal: %s", ev.Venue, ev.Detail),
			)
		}
	}
}

func (m *Manager) alert(event, title, message string) {
	if err := m.alerter.Notify(context.Background(), event, title, message); err != nil {
		m.logger.Warn("alert dispatch failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
