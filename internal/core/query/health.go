package query

import (
	"sync"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

// EndpointHealth remembers how the latest attempt on each endpoint ended.
type EndpointHealth struct {
	mu   sync.RWMutex
	last map[domain.Endpoint]*domain.NetworkFailure
}

// NewEndpointHealth creates an empty tracker. Endpoints never attempted
// are reported as healthy.
func NewEndpointHealth() *EndpointHealth {
	return &EndpointHealth{last: make(map[domain.Endpoint]*domain.NetworkFailure)}
}

// Hooks returns next with success and failure recording added in front.
func (h *EndpointHealth) Hooks(next Hooks) Hooks {
	out := next
	out.OnSuccess = func(a Attempt) {
		h.record(a.Endpoint, nil)
		if next.OnSuccess != nil {
			next.OnSuccess(a)
		}
	}
	out.OnFailure = func(a Attempt, f *domain.NetworkFailure) {
		h.record(a.Endpoint, f)
		if next.OnFailure != nil {
			next.OnFailure(a, f)
		}
	}
	return out
}

func (h *EndpointHealth) record(ep domain.Endpoint, f *domain.NetworkFailure) {
	h.mu.Lock()
	h.last[ep] = f
	h.mu.Unlock()
}

// LastFailure is the failure of the latest attempt on ep, or nil when that
// attempt succeeded or none was made.
func (h *EndpointHealth) LastFailure(ep domain.Endpoint) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if f := h.last[ep]; f != nil {
		return f
	}
	return nil
}
