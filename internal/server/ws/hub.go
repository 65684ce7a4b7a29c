// Package ws streams live orderbooks and feed status over WebSocket.
//
// Clients subscribe to individual (venue, symbol) books with JSON command
// frames and receive a snapshot followed by every accepted update. Feed
// status transitions are broadcast to all connected clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming command frame.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing frames per client.
	sendBufferSize = 256

	// snapshotTimeout bounds the orderbook fetch that answers a subscribe.
	snapshotTimeout = 5 * time.Second
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// BookStreamer is the slice of the book service the hub needs: a snapshot
// read plus a live subscription per book.
type BookStreamer interface {
	GetOrderbook(ctx context.Context, v domain.Venue, symbol string, levels int) (domain.Orderbook, error)
	Subscribe(ctx context.Context, v domain.Venue, symbol string) (<-chan domain.BookUpdate, func(), error)
}

// StatusSource exposes feed status transitions for broadcast.
type StatusSource interface {
	SubscribeStatus() (<-chan domain.FeedStatusEvent, func())
}

// commandMsg is the JSON frame a client sends to manage book subscriptions:
//
//	{"action":"subscribe","venue":"okx","symbol":"BTC-USDT"}
type commandMsg struct {
	Action string `json:"action"`
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub manages connected WebSocket clients, fans accepted book updates out to
// their subscribers, and broadcasts feed status transitions to everyone.
type Hub struct {
	books      BookStreamer
	feeds      StatusSource
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a hub serving books from the given streamer. feeds may be
// nil, in which case no status frames are broadcast.
func NewHub(books BookStreamer, feeds StatusSource, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		books:      books,
		feeds:      feeds,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// It handles client registration, unregistration, and status broadcasting,
// and exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	var events <-chan domain.FeedStatusEvent
	if h.feeds != nil {
		ch, cancel := h.feeds.SubscribeStatus()
		defer cancel()
		events = ch
	}

	for {
		select {
		case <-ctx.Done():
			// Closing the connections unwinds each client through its own
			// read pump teardown.
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
			}
			clear(h.clients)
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.ClientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.ClientCount()),
			)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.broadcastStatus(ev)
		}
	}
}

// broadcastStatus sends a feed status frame to every connected client.
func (h *Hub) broadcastStatus(ev domain.FeedStatusEvent) {
	frame, err := json.Marshal(statusFrame(ev))
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(frame)
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[domain.BookKey]func()),
		done: make(chan struct{}),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	c.sendHello()

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// client represents a single WebSocket connection and its book subscriptions.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex
	subs map[domain.BookKey]func()
	wg   sync.WaitGroup
	done chan struct{}
}

// readPump reads command frames from the WebSocket connection and owns the
// client's teardown: on exit it releases every book subscription, waits for
// the forwarders to drain, and only then unregisters.
func (c *client) readPump() {
	defer func() {
		c.releaseAll()
		c.wg.Wait()
		close(c.done)
		c.conn.Close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var cmd commandMsg
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debug("ws: malformed command frame",
				slog.String("error", err.Error()),
			)
			continue
		}
		c.handleCommand(cmd)
	}
}

// handleCommand processes one subscribe/unsubscribe request from the client.
func (c *client) handleCommand(cmd commandMsg) {
	v, err := domain.ParseVenue(cmd.Venue)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	symbol := strings.TrimSpace(cmd.Symbol)
	if symbol == "" {
		c.sendError("missing symbol")
		return
	}
	key := domain.BookKey{Venue: v, Symbol: symbol}

	switch cmd.Action {
	case "subscribe":
		c.subscribe(key)
	case "unsubscribe":
		c.unsubscribe(key)
	default:
		c.sendError(fmt.Sprintf("unknown action %q", cmd.Action))
	}
}

// subscribe attaches the client to a book stream and pushes the current
// snapshot. Subscribing twice to the same book is a no-op.
func (c *client) subscribe(key domain.BookKey) {
	c.mu.Lock()
	_, exists := c.subs[key]
	c.mu.Unlock()
	if exists {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	ch, release, err := c.hub.books.Subscribe(ctx, key.Venue, key.Symbol)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.mu.Lock()
	c.subs[key] = release
	c.mu.Unlock()

	// Snapshot before streaming. Books replace wholesale, so an update that
	// lands in the channel buffer meanwhile still supersedes the snapshot.
	if book, err := c.hub.books.GetOrderbook(ctx, key.Venue, key.Symbol, 0); err != nil {
		c.sendError(fmt.Sprintf("snapshot for %s unavailable: %v", key, err))
	} else {
		c.sendBook(book)
	}

	c.wg.Add(1)
	go c.forward(ch)
}

// unsubscribe detaches the client from a book stream. Unknown keys are
// ignored.
func (c *client) unsubscribe(key domain.BookKey) {
	c.mu.Lock()
	release, ok := c.subs[key]
	delete(c.subs, key)
	c.mu.Unlock()
	if ok {
		release()
	}
}

// releaseAll cancels every book subscription, closing the update channels so
// the forwarders exit.
func (c *client) releaseAll() {
	c.mu.Lock()
	releases := make([]func(), 0, len(c.subs))
	for key, release := range c.subs {
		releases = append(releases, release)
		delete(c.subs, key)
	}
	c.mu.Unlock()

	for _, release := range releases {
		release()
	}
}

// forward drains one book subscription into the client's send buffer. It
// exits when the subscription channel is closed by release.
func (c *client) forward(ch <-chan domain.BookUpdate) {
	defer c.wg.Done()
	for u := range ch {
		frame, err := json.Marshal(bookFrame(u.Book))
		if err != nil {
			continue
		}
		c.enqueue(frame)
	}
}

// enqueue hands a frame to the write pump without blocking. Frames for slow
// clients are dropped; books replace wholesale, so a later frame catches the
// client up.
func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.hub.logger.Warn("ws: dropping frame for slow client")
	}
}

// sendHello pushes a small JSON envelope so clients can immediately mark the
// connection as healthy before any book frames flow.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	frame, err := json.Marshal(map[string]any{
		"type":           "hello",
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// sendBook pushes one orderbook frame.
func (c *client) sendBook(book domain.Orderbook) {
	frame, err := json.Marshal(bookFrame(book))
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// sendError pushes an error frame describing a rejected command.
func (c *client) sendError(msg string) {
	frame, err := json.Marshal(map[string]any{
		"type":  "error",
		"error": msg,
	})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// writePump pumps frames from the send buffer to the WebSocket connection and
// keeps the connection alive with periodic pings. It exits when the client's
// read pump finishes or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
