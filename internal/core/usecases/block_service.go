package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/core/linker"
	"github.com/samirrijal/streetblock/internal/core/ports"
	"github.com/samirrijal/streetblock/internal/core/query"
	"github.com/samirrijal/streetblock/internal/pkg/geospatial"
)

const tracerName = "github.com/samirrijal/streetblock/internal/core/usecases"

const (
	defaultResolveTimeout = 3 * time.Minute
	publishTimeout        = 5 * time.Second
)

// errNoAreaID is returned for an area that has no osm id and no resolver.
var errNoAreaID = errors.New("area has no osm id")

// BlockService resolves the street block between two intersections.
type BlockService struct {
	executor  *query.Executor
	client    ports.OverpassClient
	publisher ports.EventPublisher
	geocoder  ports.Geocoder
	areas     ports.AreaResolver
	attempts  int
	// resolveTimeout bounds a shared resolution, which outlives its callers.
	resolveTimeout time.Duration
	clock          clock.Clock
	logger         *slog.Logger
	tracer         trace.Tracer
	inflight       singleflight.Group
}

// BlockOption configures a BlockService.
type BlockOption func(*BlockService)

// WithGeocoder normalises intersections before querying.
func WithGeocoder(g ports.Geocoder) BlockOption {
	return func(s *BlockService) { s.geocoder = g }
}

// WithAreaResolver looks up area ids for requests that do not carry one.
func WithAreaResolver(r ports.AreaResolver) BlockOption {
	return func(s *BlockService) { s.areas = r }
}

// WithAttempts bounds the attempts per Overpass query. Zero or less tries
// every configured server once.
func WithAttempts(n int) BlockOption {
	return func(s *BlockService) { s.attempts = n }
}

// WithResolveTimeout bounds one resolution, including every scope tried.
func WithResolveTimeout(d time.Duration) BlockOption {
	return func(s *BlockService) {
		if d > 0 {
			s.resolveTimeout = d
		}
	}
}

// WithBlockClock sets the clock used to stamp resolved blocks.
func WithBlockClock(c clock.Clock) BlockOption {
	return func(s *BlockService) { s.clock = c }
}

// WithBlockLogger sets the service logger.
func WithBlockLogger(l *slog.Logger) BlockOption {
	return func(s *BlockService) { s.logger = l }
}

// NewBlockService creates a new BlockService. publisher may be nil.
func NewBlockService(executor *query.Executor, client ports.OverpassClient, publisher ports.EventPublisher, opts ...BlockOption) *BlockService {
	s := &BlockService{
		executor:       executor,
		client:         client,
		publisher:      publisher,
		resolveTimeout: defaultResolveTimeout,
		clock:          clock.New(),
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve finds the ways of the street shared by both intersections that lie
// between them. Area scopes are tried from narrowest to widest; the first
// one yielding exactly two intersection nodes and at least one way is used.
//
// Identical requests in flight at the same time share one resolution. The
// shared run is detached from every caller's cancellation and bounded by the
// resolve timeout instead; a caller whose ctx ends stops waiting without
// failing the others.
func (s *BlockService) Resolve(ctx context.Context, req domain.BlockRequest) (*domain.Block, error) {
	key, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode block request: %w", err)
	}
	ch := s.inflight.DoChan(string(key), func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.resolveTimeout)
		defer cancel()
		return s.resolve(shared, req)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("block resolution: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			s.logger.DebugContext(ctx, "joined in-flight block resolution")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Block), nil
	}
}

func (s *BlockService) resolve(ctx context.Context, req domain.BlockRequest) (*domain.Block, error) {
	ctx, span := s.tracer.Start(ctx, "block.resolve")
	defer span.End()

	block, err := s.resolveBlock(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WarnContext(ctx, "block resolution failed", "error", err)
		if s.publisher != nil {
			pctx, cancel := s.publishContext(ctx)
			if perr := s.publisher.PublishBlockFailed(pctx, &req, err.Error()); perr != nil {
				s.logger.WarnContext(ctx, "publish block failure", "error", perr)
			}
			cancel()
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("block.id", block.ID),
		attribute.String("block.scope", block.Scope.Name),
		attribute.Int("block.ways", len(block.Ways)),
	)
	s.logger.InfoContext(ctx, "block resolved",
		"block_id", block.ID,
		"scope", block.Scope.Name,
		"ways", len(block.Ways),
		"length_m", block.LengthMeters,
	)
	if s.publisher != nil {
		pctx, cancel := s.publishContext(ctx)
		if perr := s.publisher.PublishBlockResolved(pctx, block); perr != nil {
			s.logger.WarnContext(ctx, "publish block", "block_id", block.ID, "error", perr)
		}
		cancel()
	}
	return block, nil
}

// publishContext keeps ctx values but not its deadline, so a resolution that
// timed out still reports its failure.
func (s *BlockService) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
}

func (s *BlockService) resolveBlock(ctx context.Context, req domain.BlockRequest) (*domain.Block, error) {
	intersections, err := s.normalise(ctx, req.Intersections)
	if err != nil {
		return nil, err
	}
	streets := [2][]string{intersections[0].Streets, intersections[1].Streets}
	if _, err := query.CommonStreet(streets); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	scopes, attempts, err := s.scopes(ctx, req.Area)
	if err != nil {
		return nil, err
	}

	for _, scope := range scopes {
		attempt, ways, nodes, err := s.queryScope(ctx, scope, streets)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
		if attempt.Error != "" {
			s.logger.InfoContext(ctx, "scope rejected", "scope", scope.Name, "nodes", attempt.Nodes, "ways", attempt.Ways)
			continue
		}

		linked, err := linker.Link(ways, nodes)
		if err != nil {
			return nil, err
		}
		return &domain.Block{
			ID:            uuid.NewString(),
			Ways:          linked,
			Nodes:         nodes,
			Intersections: intersections,
			Scope:         scope,
			LengthMeters:  blockLength(linked),
			ResolvedAt:    s.clock.Now().UTC(),
		}, nil
	}

	return nil, &domain.AmbiguousIntersectionError{
		Reason:   "no area scope yielded exactly 2 intersection nodes and at least 1 way",
		Attempts: attempts,
	}
}

// normalise runs the geocoder over both intersections and checks that each
// names at least two streets.
func (s *BlockService) normalise(ctx context.Context, in [2]domain.Intersection) ([2]domain.Intersection, error) {
	out := in
	for i := range out {
		if s.geocoder != nil {
			resolved, err := s.geocoder.ResolveIntersection(ctx, out[i])
			if err != nil {
				return out, fmt.Errorf("geocode intersection %d: %w", i+1, err)
			}
			out[i] = resolved
		}
		if len(out[i].Streets) < 2 {
			return out, fmt.Errorf("%w: intersection %d needs at least 2 street names, got %d",
				domain.ErrInvalidRequest, i+1, len(out[i].Streets))
		}
	}
	return out, nil
}

// scopes lists the areas to search in order: the area as given, then the
// whole city when a neighborhood was named. Areas that fail to resolve are
// returned as attempts rather than scopes.
func (s *BlockService) scopes(ctx context.Context, area domain.Area) ([]domain.Scope, []domain.ScopeAttempt, error) {
	candidates := []domain.Area{area}
	if area.Neighborhood != "" && area.City != "" {
		candidates = append(candidates, area.WithoutNeighborhood())
	}

	var (
		scopes   []domain.Scope
		rejected []domain.ScopeAttempt
	)
	for _, a := range candidates {
		scope, err := s.scope(ctx, a)
		if err != nil {
			if errors.Is(err, errNoAreaID) {
				continue
			}
			if errors.Is(err, domain.ErrInvalidRequest) {
				return nil, nil, err
			}
			rejected = append(rejected, domain.ScopeAttempt{Scope: scope, Error: err.Error()})
			continue
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 && len(rejected) == 0 {
		return nil, nil, fmt.Errorf("%w: area needs an osm_id or a resolvable name", domain.ErrInvalidRequest)
	}
	return scopes, rejected, nil
}

func (s *BlockService) scope(ctx context.Context, area domain.Area) (domain.Scope, error) {
	scope := domain.Scope{Name: areaName(area), OSMID: area.OSMID}
	if scope.OSMID == "" {
		if s.areas == nil {
			return scope, errNoAreaID
		}
		id, err := s.areas.ResolveArea(ctx, area)
		if err != nil {
			return scope, fmt.Errorf("resolve area %q: %w", scope.Name, err)
		}
		scope.OSMID = id
	}
	areaID, err := query.AreaID(scope.OSMID)
	if err != nil {
		return scope, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	scope.AreaID = areaID
	return scope, nil
}

// queryScope runs the way and node block queries for one scope, one after
// the other. A rejected scope is reported through the attempt's Error; err
// is only set when the servers could not answer.
func (s *BlockService) queryScope(ctx context.Context, scope domain.Scope, streets [2][]string) (domain.ScopeAttempt, []domain.Feature, []domain.Feature, error) {
	ctx, span := s.tracer.Start(ctx, "block.scope", trace.WithAttributes(
		attribute.String("block.scope", scope.Name),
		attribute.String("block.area_id", scope.AreaID),
	))
	defer span.End()

	attempt := domain.ScopeAttempt{Scope: scope}
	loc := query.BlockLocation{AreaID: scope.AreaID, Intersections: streets}

	var results [2]domain.FeatureCollection
	for i, kind := range []string{domain.KindWay, domain.KindNode} {
		q, err := query.BuildBlockQuery(kind, loc)
		if err != nil {
			return attempt, nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
		attempt.Queries = append(attempt.Queries, q)

		fc, err := s.executor.Execute(ctx, "block "+kind+"s", s.queryFunc(q), s.attempts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return attempt, nil, nil, err
		}
		results[i] = fc
	}

	ways := results[0].OfKind(domain.KindWay)
	nodes := results[1].OfKind(domain.KindNode)
	attempt.Ways, attempt.Nodes = len(ways), len(nodes)
	if len(nodes) != 2 || len(ways) == 0 {
		attempt.Error = fmt.Sprintf("expected 2 nodes and at least 1 way, got %d nodes and %d ways", len(nodes), len(ways))
	}
	return attempt, ways, nodes, nil
}

func (s *BlockService) queryFunc(q string) query.QueryFunc {
	return func(ctx context.Context, endpoint domain.Endpoint) (domain.FeatureCollection, error) {
		return s.client.Query(ctx, endpoint, q)
	}
}

// Link chains caller-supplied ways between two nodes without querying.
func (s *BlockService) Link(ctx context.Context, ways, nodes []domain.Feature) ([]domain.Feature, error) {
	_, span := s.tracer.Start(ctx, "block.link", trace.WithAttributes(
		attribute.Int("block.input_ways", len(ways)),
	))
	defer span.End()

	linked, err := linker.Link(ways, nodes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return linked, nil
}

// Servers returns the configured Overpass pool.
func (s *BlockService) Servers() []domain.Endpoint {
	return s.executor.Endpoints()
}

func blockLength(ways []domain.Feature) float64 {
	var total float64
	for _, w := range ways {
		path := make([][2]float64, len(w.Geometry.Coordinates))
		for i, p := range w.Geometry.Coordinates {
			path[i] = p
		}
		total += geospatial.PathLength(path)
	}
	return total
}

func areaName(a domain.Area) string {
	var parts []string
	for _, p := range []string{a.Neighborhood, a.City, a.State, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "osm:" + a.OSMID
	}
	return strings.Join(parts, ", ")
}
