package query

import (
	"sync"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

// EndpointSelector hands out endpoints in round-robin order.
// The cursor is a plain counter over a fixed list; Next is safe for
// concurrent use.
type EndpointSelector struct {
	mu        sync.Mutex
	endpoints []domain.Endpoint
	counter   uint64
}

// NewEndpointSelector returns a selector over endpoints, starting at the
// first one. It fails with domain.ErrEmptyServerPool if the list is empty.
func NewEndpointSelector(endpoints []domain.Endpoint) (*EndpointSelector, error) {
	if len(endpoints) == 0 {
		return nil, domain.ErrEmptyServerPool
	}
	owned := make([]domain.Endpoint, len(endpoints))
	copy(owned, endpoints)
	return &EndpointSelector{endpoints: owned}, nil
}

// Next returns the next endpoint, wrapping after the last one.
func (s *EndpointSelector) Next() domain.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.endpoints[s.counter%uint64(len(s.endpoints))]
	s.counter++
	return e
}

// Len returns the size of the pool.
func (s *EndpointSelector) Len() int { return len(s.endpoints) }

// Endpoints returns a copy of the pool in configured order.
func (s *EndpointSelector) Endpoints() []domain.Endpoint {
	out := make([]domain.Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}
