// Package selection tracks which catalog service a visitor has focused.
package selection

import (
	"sync"

	"github.com/theroutercompany/devdirect_website/internal/catalog"
)

// Selection holds at most one service from its catalog. The zero selection is
// empty. A Selection is owned by a single visitor session.
type Selection struct {
	catalog *catalog.Catalog

	mu       sync.Mutex
	current  catalog.Service
	selected bool
}

// New returns an empty selection over c.
func New(c *catalog.Catalog) *Selection {
	return &Selection{catalog: c}
}

// Services returns the catalog the selection draws from.
func (s *Selection) Services() *catalog.Catalog {
	return s.catalog
}

// Select focuses the service with the given id. An unknown id leaves the
// current selection untouched; the result reports whether the id matched.
func (s *Selection) Select(id string) bool {
	svc, ok := s.catalog.Lookup(id)
	if !ok {
		return false
	}

	s.mu.Lock()
	s.current = svc
	s.selected = true
	s.mu.Unlock()
	return true
}

// Reset clears the selection.
func (s *Selection) Reset() {
	s.mu.Lock()
	s.current = catalog.Service{}
	s.selected = false
	s.mu.Unlock()
}

// Current returns the selected service, if any.
func (s *Selection) Current() (catalog.Service, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.selected
}
