// Package handler serves the REST API surface: book queries, analytics,
// simulations, and service status.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// writeJSON marshals v and writes it with the given status code. A
// marshal failure falls back to a plain 500 body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathParam extracts a named path parameter (Go 1.22 routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// queryInt parses an integer query parameter, returning def when absent,
// unparseable, or negative.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// venueParam parses the {venue} path segment.
func venueParam(r *http.Request) (domain.Venue, error) {
	return domain.ParseVenue(pathParam(r, "venue"))
}

// writeServiceError maps domain sentinels to HTTP status codes. Errors
// without a mapping are logged and surfaced as an opaque 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrNoBookData):
		writeError(w, http.StatusNotFound, "no book data for this venue and symbol")
	case errors.Is(err, domain.ErrUnknownVenue):
		writeError(w, http.StatusBadRequest, "unknown venue")
	case errors.Is(err, domain.ErrUnsupportedSymbol):
		writeError(w, http.StatusBadRequest, "symbol not supported on this venue")
	case errors.Is(err, domain.ErrInvalidSimulation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrVenueProtocol), errors.Is(err, domain.ErrNetwork):
		writeError(w, http.StatusBadGateway, "venue unavailable")
	default:
		logger.ErrorContext(r.Context(), "handler: "+action+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
