package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/core/ports"
	"github.com/samirrijal/streetblock/internal/core/query"
	"github.com/samirrijal/streetblock/internal/pkg/geospatial"
)

// FeatureQuery selects OSM features inside a region.
type FeatureQuery struct {
	// Bounds is the region to search. Ignored when Around is set.
	Bounds domain.BoundingBox
	// Around searches a box of RadiusMeters around a point instead.
	Around *domain.GeoPoint
	// RadiusMeters applies to Around.
	RadiusMeters float64
	// Kinds are the element types to return. Defaults to nodes and ways.
	Kinds []string
	// Filters are Overpass tag filters. Defaults to query.HighwayWayFilters.
	Filters []string
	// CellSizeKm overrides the service's tiling cell size; zero keeps it.
	CellSizeKm float64
}

// FeatureService fetches filtered features, tiling large regions.
type FeatureService struct {
	executor   *query.Executor
	tiler      *query.Tiler
	client     ports.OverpassClient
	attempts   int
	cellSizeKm float64
	maxCells   int
	sleep      time.Duration
	logger     *slog.Logger
}

// FeatureSettings are the fetch defaults taken from configuration.
type FeatureSettings struct {
	Attempts   int
	CellSizeKm float64
	MaxCells   int
	Sleep      time.Duration
}

// NewFeatureService creates a new FeatureService.
func NewFeatureService(executor *query.Executor, tiler *query.Tiler, client ports.OverpassClient, settings FeatureSettings, logger *slog.Logger) *FeatureService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeatureService{
		executor:   executor,
		tiler:      tiler,
		client:     client,
		attempts:   settings.Attempts,
		cellSizeKm: settings.CellSizeKm,
		maxCells:   settings.MaxCells,
		sleep:      settings.Sleep,
		logger:     logger,
	}
}

// Fetch returns the features matching q, each once. With a positive cell
// size the region is queried cell by cell.
func (s *FeatureService) Fetch(ctx context.Context, q FeatureQuery) (domain.FeatureCollection, error) {
	bounds := q.Bounds
	if q.Around != nil {
		if q.RadiusMeters <= 0 {
			return domain.FeatureCollection{}, fmt.Errorf("%w: radius must be positive", domain.ErrInvalidRequest)
		}
		bounds = domain.NewBoundingBox(geospatial.BoundingBox(q.Around.Lat, q.Around.Lon, q.RadiusMeters))
	}
	if err := bounds.Validate(); err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = []string{domain.KindNode, domain.KindWay}
	}
	for _, k := range kinds {
		if k != domain.KindNode && k != domain.KindWay && k != domain.KindRelation {
			return domain.FeatureCollection{}, fmt.Errorf("%w: unknown element kind %q", domain.ErrInvalidRequest, k)
		}
	}
	filters := q.Filters
	if len(filters) == 0 {
		filters = []string{query.HighwayWayFilters}
	}

	cellFn := func(ctx context.Context, b domain.BoundingBox) (domain.FeatureCollection, error) {
		text := query.BuildFilterQuery(nil, query.Conditions{Filters: filters, Bounds: b}, kinds)
		return s.executor.Execute(ctx, "features", func(ctx context.Context, endpoint domain.Endpoint) (domain.FeatureCollection, error) {
			return s.client.Query(ctx, endpoint, text)
		}, s.attempts)
	}

	cellSize := s.cellSizeKm
	if q.CellSizeKm > 0 {
		cellSize = q.CellSizeKm
	}
	if cellSize <= 0 || s.tiler == nil {
		fc, err := cellFn(ctx, bounds)
		if err != nil {
			return domain.FeatureCollection{}, err
		}
		return fc.Dedupe(), nil
	}

	s.logger.DebugContext(ctx, "tiled feature fetch", "bounds", bounds, "cell_size_km", cellSize)
	fc, err := s.tiler.Execute(ctx, query.TileOptions{
		CellSizeKm: cellSize,
		Bounds:     bounds,
		Sleep:      s.sleep,
		MaxCells:   s.maxCells,
	}, cellFn)
	if errors.Is(err, geospatial.ErrTooManyCells) {
		return domain.FeatureCollection{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return fc, err
}
