package handler

import (
	"net/http"
	"time"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// FeedSource reports the last observed stream status per venue.
type FeedSource interface {
	Statuses() map[domain.Venue]domain.FeedStatus
}

// BookInventory reports which books are currently tracked.
type BookInventory interface {
	TrackedBooks() []domain.BookKey
	Venues() []domain.Venue
}

// ClientCounter reports connected WebSocket clients. Optional.
type ClientCounter interface {
	ClientCount() int
}

// StatusHandler serves the operational status snapshot for the
// dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	feeds     FeedSource
	books     BookInventory
	clients   ClientCounter
}

// NewStatusHandler creates a StatusHandler. clients may be nil when no
// WebSocket hub is running.
func NewStatusHandler(mode string, startedAt time.Time, feeds FeedSource, books BookInventory, clients ClientCounter) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		feeds:     feeds,
		books:     books,
		clients:   clients,
	}
}

// GetStatus responds with the service mode, per-venue feed health, and
// the tracked book inventory.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.feeds.Statuses()
	venues := make(map[string]string)
	for _, v := range h.books.Venues() {
		venues[string(v)] = "unknown"
	}
	for v, s := range statuses {
		venues[string(v)] = string(s)
	}

	keys := h.books.TrackedBooks()
	tracked := make([]string, len(keys))
	for i, k := range keys {
		tracked[i] = k.String()
	}

	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": uptime,
		"venues":         venues,
		"book_count":     len(tracked),
		"tracked_books":  tracked,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.clients != nil {
		resp["ws_clients"] = h.clients.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
