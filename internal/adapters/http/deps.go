package http

import (
	"time"

	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/core/usecases"
)

// EventStatus reports broker connectivity for readiness checks.
type EventStatus interface {
	Connected() bool
}

// UpstreamStatus reports how the latest attempt on each Overpass endpoint ended.
type UpstreamStatus interface {
	LastFailure(domain.Endpoint) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Blocks   *usecases.BlockService
	Features *usecases.FeatureService
	// Events is nil when event publishing is disabled.
	Events EventStatus
	// Upstream is nil when endpoint outcomes are not tracked.
	Upstream UpstreamStatus
	// RequestTimeout bounds block and feature requests. Defaults to 3 minutes.
	RequestTimeout time.Duration
	// RateLimit is the number of requests per minute per IP. Defaults to 30.
	RateLimit int
}

func (d *Dependencies) requestTimeout() time.Duration {
	if d.RequestTimeout > 0 {
		return d.RequestTimeout
	}
	return 3 * time.Minute
}

func (d *Dependencies) rateLimit() int {
	if d.RateLimit > 0 {
		return d.RateLimit
	}
	return 30
}
