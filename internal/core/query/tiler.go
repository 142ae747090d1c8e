package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/pkg/geospatial"
)

// DefaultMaxCells caps how many cells a single tiled fetch may query.
const DefaultMaxCells = 400

// CellFunc queries one cell of a tiled region.
type CellFunc func(ctx context.Context, bounds domain.BoundingBox) (domain.FeatureCollection, error)

// TileOptions controls how a region is split and paced.
type TileOptions struct {
	// CellSizeKm is the side of each square cell in kilometers.
	CellSizeKm float64
	// Bounds is the region to cover.
	Bounds domain.BoundingBox
	// Sleep is the pause between consecutive cell queries. Zero means none.
	Sleep time.Duration
	// MaxCells rejects grids larger than this. Zero means DefaultMaxCells.
	MaxCells int
}

// CellError reports the cell whose query failed a tiled fetch.
type CellError struct {
	Index  int
	Of     int
	Bounds domain.BoundingBox
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cell %d of %d %v: %v", e.Index+1, e.Of, e.Bounds, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// Tiler runs a query over every cell of a grid, one cell at a time.
type Tiler struct {
	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer
	onCell func(index, of int)
}

// TilerOption configures a Tiler.
type TilerOption func(*Tiler)

// WithClock replaces the wall clock used for pacing.
func WithClock(c clock.Clock) TilerOption {
	return func(t *Tiler) {
		t.clock = c
	}
}

// WithTilerLogger sets the tiler's logger.
func WithTilerLogger(l *slog.Logger) TilerOption {
	return func(t *Tiler) {
		t.logger = l
	}
}

// WithCellHook is called before each cell query.
func WithCellHook(fn func(index, of int)) TilerOption {
	return func(t *Tiler) {
		t.onCell = fn
	}
}

// NewTiler creates a Tiler.
func NewTiler(opts ...TilerOption) *Tiler {
	t := &Tiler{
		clock:  clock.New(),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Cells partitions bounds into the cells Execute would query, in order.
// It fails with geospatial.ErrTooManyCells when more than maxCells would
// be needed; maxCells <= 0 means DefaultMaxCells.
func Cells(bounds domain.BoundingBox, cellSizeKm float64, maxCells int) ([]domain.BoundingBox, error) {
	if maxCells <= 0 {
		maxCells = DefaultMaxCells
	}
	grid, err := geospatial.SquareGrid(bounds.MinLat(), bounds.MinLon(), bounds.MaxLat(), bounds.MaxLon(), cellSizeKm, maxCells)
	if err != nil {
		return nil, err
	}
	cells := make([]domain.BoundingBox, len(grid))
	for i, c := range grid {
		cells[i] = domain.NewBoundingBox(c.MinLat, c.MinLon, c.MaxLat, c.MaxLon)
	}
	return cells, nil
}

// Execute queries every cell sequentially, pausing opts.Sleep between
// calls, and merges the results in cell order. Features repeated across
// cells are kept once, from the earliest cell that returned them. If any
// cell fails the whole fetch fails with a *CellError and earlier results
// are discarded.
func (t *Tiler) Execute(ctx context.Context, opts TileOptions, fn CellFunc) (domain.FeatureCollection, error) {
	cells, err := Cells(opts.Bounds, opts.CellSizeKm, opts.MaxCells)
	if err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("tile %v: %w", opts.Bounds, err)
	}

	ctx, span := t.tracer.Start(ctx, "overpass.tiled", trace.WithAttributes(
		attribute.Int("overpass.cells", len(cells)),
		attribute.Float64("overpass.cell_size_km", opts.CellSizeKm),
	))
	defer span.End()

	results := make([]domain.FeatureCollection, 0, len(cells))
	for i, cell := range cells {
		if i > 0 && opts.Sleep > 0 {
			if err := t.sleep(ctx, opts.Sleep); err != nil {
				return t.fail(span, &CellError{Index: i, Of: len(cells), Bounds: cell, Err: err})
			}
		}
		if t.onCell != nil {
			t.onCell(i, len(cells))
		}
		t.logger.DebugContext(ctx, "querying cell", "cell", i+1, "of", len(cells), "bounds", cell)

		fc, err := fn(ctx, cell)
		if err != nil {
			return t.fail(span, &CellError{Index: i, Of: len(cells), Bounds: cell, Err: err})
		}
		results = append(results, fc)
	}

	merged := domain.Concat(results...)
	deduped := merged.Dedupe()
	span.SetAttributes(
		attribute.Int("overpass.features", deduped.Len()),
		attribute.Int("overpass.duplicates", merged.Len()-deduped.Len()),
	)
	return deduped, nil
}

func (t *Tiler) fail(span trace.Span, err *CellError) (domain.FeatureCollection, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return domain.FeatureCollection{}, err
}

func (t *Tiler) sleep(ctx context.Context, d time.Duration) error {
	timer := t.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
