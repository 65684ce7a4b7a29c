package domain

import (
	"fmt"
	"strings"
)

// Venue identifies a supported exchange.
type Venue string

const (
	VenueOKX     Venue = "okx"
	VenueBybit   Venue = "bybit"
	VenueDeribit Venue = "deribit"
)

// Venues returns all supported venues in display order.
func Venues() []Venue {
	return []Venue{VenueOKX, VenueBybit, VenueDeribit}
}

// ParseVenue converts a string into a Venue, case-insensitively.
func ParseVenue(s string) (Venue, error) {
	switch Venue(strings.ToLower(strings.TrimSpace(s))) {
	case VenueOKX:
		return VenueOKX, nil
	case VenueBybit:
		return VenueBybit, nil
	case VenueDeribit:
		return VenueDeribit, nil
	default:
		return "", fmt.Errorf("venue %q: %w", s, ErrUnknownVenue)
	}
}
