package ports

import (
	"context"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

// OverpassClient sends one Overpass QL program to one interpreter and
// returns the decoded features.
type OverpassClient interface {
	Query(ctx context.Context, endpoint domain.Endpoint, query string) (domain.FeatureCollection, error)
}

// Geocoder normalises an intersection, e.g. expanding street abbreviations
// or naming the streets that meet at a point.
type Geocoder interface {
	ResolveIntersection(ctx context.Context, in domain.Intersection) (domain.Intersection, error)
}

// AreaResolver looks up the OSM relation id of an administrative area.
type AreaResolver interface {
	ResolveArea(ctx context.Context, area domain.Area) (osmID string, err error)
}

// EventPublisher publishes block events to a message broker.
type EventPublisher interface {
	PublishBlockResolved(ctx context.Context, block *domain.Block) error
	PublishBlockFailed(ctx context.Context, req *domain.BlockRequest, reason string) error
}
