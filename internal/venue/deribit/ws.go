package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prem-prasad1710/bookd/internal/domain"
	"github.com/prem-prasad1710/bookd/internal/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends protocol pings at this interval. Must be less
	// than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before a reconnect attempt.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second

	// bookChannelDepth is the level depth of the book channel.
	bookChannelDepth = 20
)

// Stream consumes Deribit book channels over a single WebSocket
// connection multiplexing all subscribed instruments. Subscriptions
// survive reconnects; after the bounded attempt budget is spent the
// stream reports a terminal disconnected status.
type Stream struct {
	wsURL       string
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	subs   map[string]domain.BookHandler
	nextID int64

	statusMu sync.RWMutex
	statusFn domain.StatusHandler

	done chan struct{}
}

// NewStream creates a Stream for the given Deribit WebSocket endpoint,
// e.g. "wss://www.deribit.com/ws/api/v2".
func NewStream(wsURL string, maxAttempts int, logger *slog.Logger) *Stream {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Stream{
		wsURL:       wsURL,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "deribit_ws")),
		subs:        make(map[string]domain.BookHandler),
		done:        make(chan struct{}),
	}
}

// SetStatusHandler registers the receiver for stream status changes.
func (s *Stream) SetStatusHandler(fn domain.StatusHandler) {
	s.statusMu.Lock()
	s.statusFn = fn
	s.statusMu.Unlock()
}

// SetMetrics attaches the instrumentation sink. Must be called before
// the first Subscribe; a nil sink is a no-op.
func (s *Stream) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Subscribe starts delivering replacement books for the instrument. On
// the first subscription the connection is dialed lazily. Subscribing
// an already subscribed instrument only swaps the handler.
func (s *Stream) Subscribe(ctx context.Context, symbol string, onUpdate domain.BookHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("deribit/ws: %w", domain.ErrStreamDisconnected)
	}
	if _, ok := s.subs[symbol]; ok {
		s.subs[symbol] = onUpdate
		return nil
	}
	s.subs[symbol] = onUpdate

	if s.conn == nil {
		if err := s.connectLocked(ctx); err != nil {
			delete(s.subs, symbol)
			return fmt.Errorf("deribit/ws: connect: %s: %w", err, domain.ErrNetwork)
		}
		return nil
	}
	if err := s.writeCommand("public/subscribe", symbol); err != nil {
		delete(s.subs, symbol)
		return fmt.Errorf("deribit/ws: subscribe %q: %s: %w", symbol, err, domain.ErrNetwork)
	}
	return nil
}

// Unsubscribe stops delivery for the instrument. When the last
// instrument is removed the connection is torn down (policy: an idle
// stream holds no socket).
func (s *Stream) Unsubscribe(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[symbol]; !ok {
		return nil
	}
	delete(s.subs, symbol)

	if s.conn == nil {
		return nil
	}
	// Best effort; the handler is already detached.
	_ = s.writeCommand("public/unsubscribe", symbol)
	if len(s.subs) == 0 {
		s.teardownLocked()
	}
	return nil
}

// Close shuts down the stream and all subscriptions.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.subs = map[string]domain.BookHandler{}
	if s.conn != nil {
		s.teardownLocked()
	}
	return nil
}

// connectLocked dials the endpoint, starts the read and ping loops, and
// replays subscribe frames for every active instrument. Caller holds mu.
func (s *Stream) connectLocked(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.conn = conn
	go s.readLoop(conn)
	go s.pingLoop(conn)

	for symbol := range s.subs {
		if err := s.writeCommand("public/subscribe", symbol); err != nil {
			return fmt.Errorf("restore subscription %q: %w", symbol, err)
		}
	}

	s.emitStatus(domain.FeedConnected, 0, "")
	return nil
}

// teardownLocked closes the current connection without marking the
// stream closed. Caller holds mu.
func (s *Stream) teardownLocked() {
	if s.conn == nil {
		return
	}
	_ = s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	_ = s.conn.Close()
	s.conn = nil
}

// writeCommand sends a subscribe or unsubscribe RPC frame. Caller holds mu.
func (s *Stream) writeCommand(method, symbol string) error {
	s.nextID++
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.nextID,
		Method:  method,
		Params:  rpcParams{Channels: []string{channelFor(symbol)}},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop consumes frames from one connection until it fails or the
// stream shuts down.
func (s *Stream) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.mu.RLock()
			current := s.conn == conn
			active := len(s.subs) > 0
			s.mu.RUnlock()
			if !current || !active {
				// Deliberate teardown or a newer connection took over.
				return
			}
			s.reconnect()
			return
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleMessage(raw)
	}
}

// pingLoop keeps one connection alive until it fails or the stream
// shuts down. Deribit answers protocol-level pings.
func (s *Stream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage routes one inbound frame. Book notifications for
// subscribed instruments become canonical books; RPC replies are
// handled in place; malformed payloads are logged and dropped so one
// bad frame cannot end the stream.
func (s *Stream) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("dropping unparseable frame", slog.String("error", err.Error()))
		return
	}

	if env.Method != "subscription" {
		// RPC reply to a subscribe or unsubscribe request.
		if env.Error != nil {
			s.logger.Warn("venue stream error",
				slog.Int("code", env.Error.Code),
				slog.String("msg", env.Error.Message),
			)
		}
		return
	}

	symbol, ok := symbolFromChannel(env.Params.Channel)
	if !ok {
		return
	}

	b, err := toBook(symbol, env.Params.Data)
	if err != nil {
		s.metrics.BookRejected(domain.VenueDeribit, "parse")
		s.logger.Warn("dropping malformed book frame",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}

	// Re-check the subscription right before delivery so unsubscribe
	// detaches in-flight frames.
	s.mu.RLock()
	h := s.subs[symbol]
	s.mu.RUnlock()
	if h == nil {
		return
	}
	h(context.Background(), b)
}

// reconnect re-establishes the connection with exponential backoff and
// a bounded attempt budget. Exhausting the budget emits a terminal
// disconnected status.
func (s *Stream) reconnect() {
	delay := reconnectDelay

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.emitStatus(domain.FeedReconnecting, attempt, "")

		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		s.mu.Lock()
		if s.closed || len(s.subs) == 0 {
			s.mu.Unlock()
			cancel()
			return
		}
		err := s.connectLocked(ctx)
		s.mu.Unlock()
		cancel()

		if err == nil {
			return
		}
		s.logger.Warn("reconnect failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}

	s.logger.Error("reconnect attempts exhausted")
	s.emitStatus(domain.FeedDisconnected, s.maxAttempts, "reconnect attempts exhausted")
}

func (s *Stream) emitStatus(status domain.FeedStatus, attempt int, detail string) {
	s.statusMu.RLock()
	fn := s.statusFn
	s.statusMu.RUnlock()
	if fn == nil {
		return
	}
	fn(domain.FeedStatusEvent{
		Venue:   domain.VenueDeribit,
		Status:  status,
		Attempt: attempt,
		Detail:  detail,
		At:      time.Now().UTC(),
	})
}
