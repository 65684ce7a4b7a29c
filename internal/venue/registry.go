// Package venue fronts the configured venue adapters with a single
// registry keyed by venue identifier.
package venue

import (
	"fmt"
	"strings"

	"github.com/prem-prasad1710/bookd/internal/domain"
)

// Registry holds the configured venue adapters. Lookups by venue and
// iteration in registration order are the only operations; building the
// adapters from config is the caller's job.
type Registry struct {
	adapters map[domain.Venue]domain.VenueAdapter
	order    []domain.Venue
}

// NewRegistry builds a registry from the given adapters. A later
// adapter replaces an earlier one for the same venue.
func NewRegistry(adapters ...domain.VenueAdapter) *Registry {
	r := &Registry{adapters: make(map[domain.Venue]domain.VenueAdapter)}
	for _, a := range adapters {
		v := a.Venue()
		if _, ok := r.adapters[v]; !ok {
			r.order = append(r.order, v)
		}
		r.adapters[v] = a
	}
	return r
}

// Get returns the adapter for a venue.
func (r *Registry) Get(v domain.Venue) (domain.VenueAdapter, error) {
	a, ok := r.adapters[v]
	if !ok {
		return nil, fmt.Errorf("venue: %q: %w", v, domain.ErrUnknownVenue)
	}
	return a, nil
}

// All returns the adapters in registration order.
func (r *Registry) All() []domain.VenueAdapter {
	out := make([]domain.VenueAdapter, 0, len(r.order))
	for _, v := range r.order {
		out = append(out, r.adapters[v])
	}
	return out
}

// Venues returns the registered venue identifiers in registration order.
func (r *Registry) Venues() []domain.Venue {
	out := make([]domain.Venue, len(r.order))
	copy(out, r.order)
	return out
}

// CloseAll closes every adapter. Errors from individual adapters are
// collected and returned as a combined error; a single failure does not
// prevent the remaining adapters from closing.
func (r *Registry) CloseAll() error {
	var errs []string
	for _, v := range r.order {
		if err := r.adapters[v].Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", v, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("venue: %d adapter(s) failed to close: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
