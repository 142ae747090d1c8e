package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/streetblock/internal/core/domain"
	"github.com/samirrijal/streetblock/internal/pkg/geospatial"
)

// A 1x1 degree box at the equator splits into 3x3 cells of 50 km.
var equatorBox = domain.NewBoundingBox(0, 0, 1, 1)

func TestCells_CoverBox(t *testing.T) {
	cells, err := Cells(equatorBox, 50, 0)
	require.NoError(t, err)
	require.Len(t, cells, 9)
	assert.Equal(t, 0.0, cells[0].MinLat())
	assert.Equal(t, 0.0, cells[0].MinLon())
	assert.Equal(t, 1.0, cells[8].MaxLat())
	assert.Equal(t, 1.0, cells[8].MaxLon())
}

func TestTiler_SequentialMergeAndDedupe(t *testing.T) {
	tiler := NewTiler(WithTilerLogger(quietLogger))

	var seen []domain.BoundingBox
	fc, err := tiler.Execute(context.Background(), TileOptions{CellSizeKm: 50, Bounds: equatorBox},
		func(_ context.Context, b domain.BoundingBox) (domain.FeatureCollection, error) {
			seen = append(seen, b)
			switch len(seen) {
			case 1:
				return domain.FeatureCollection{Features: []domain.Feature{
					{ID: "way/1", Properties: map[string]any{"cell": 1}},
					{ID: "way/2"},
				}}, nil
			case 2:
				return domain.FeatureCollection{Features: []domain.Feature{
					{ID: "way/1", Properties: map[string]any{"cell": 2}},
					{ID: "way/3"},
				}}, nil
			default:
				return domain.FeatureCollection{}, nil
			}
		})

	require.NoError(t, err)
	assert.Len(t, seen, 9)
	require.Equal(t, 3, fc.Len())
	assert.Equal(t, "way/1", fc.Features[0].ID)
	assert.Equal(t, 1, fc.Features[0].Properties["cell"])
	assert.Equal(t, "way/2", fc.Features[1].ID)
	assert.Equal(t, "way/3", fc.Features[2].ID)
}

func TestTiler_CellFailureDiscardsResults(t *testing.T) {
	tiler := NewTiler(WithTilerLogger(quietLogger))
	upstream := errors.New("all attempts failed")

	calls := 0
	fc, err := tiler.Execute(context.Background(), TileOptions{CellSizeKm: 50, Bounds: equatorBox},
		func(context.Context, domain.BoundingBox) (domain.FeatureCollection, error) {
			calls++
			if calls == 4 {
				return domain.FeatureCollection{}, upstream
			}
			return domain.FeatureCollection{Features: []domain.Feature{{ID: "way/1"}}}, nil
		})

	assert.Equal(t, 0, fc.Len())
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, upstream)

	var cellErr *CellError
	require.ErrorAs(t, err, &cellErr)
	assert.Equal(t, 3, cellErr.Index)
	assert.Equal(t, 9, cellErr.Of)
}

func TestTiler_SleepsBetweenCells(t *testing.T) {
	mock := clock.NewMock()
	var hooked []int
	tiler := NewTiler(
		WithClock(mock),
		WithTilerLogger(quietLogger),
		WithCellHook(func(index, _ int) { hooked = append(hooked, index) }),
	)

	const pause = 2 * time.Second
	var stamps []time.Time
	done := make(chan error)
	go func() {
		_, err := tiler.Execute(context.Background(),
			TileOptions{CellSizeKm: 50, Bounds: domain.NewBoundingBox(0, 0, 0.5, 1), Sleep: pause},
			func(context.Context, domain.BoundingBox) (domain.FeatureCollection, error) {
				stamps = append(stamps, mock.Now())
				return domain.FeatureCollection{}, nil
			})
		done <- err
	}()

	var err error
wait:
	for {
		select {
		case err = <-done:
			break wait
		default:
			mock.Add(pause)
			time.Sleep(time.Millisecond)
		}
	}

	require.NoError(t, err)
	require.Len(t, stamps, 6)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, hooked)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), pause, "gap before cell %d", i)
	}
}

func TestTiler_CancelDuringSleep(t *testing.T) {
	tiler := NewTiler(WithClock(clock.NewMock()), WithTilerLogger(quietLogger))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := tiler.Execute(ctx, TileOptions{CellSizeKm: 50, Bounds: equatorBox, Sleep: time.Hour},
		func(context.Context, domain.BoundingBox) (domain.FeatureCollection, error) {
			cancel()
			return domain.FeatureCollection{}, nil
		})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestTiler_InvalidCellSize(t *testing.T) {
	_, err := NewTiler().Execute(context.Background(), TileOptions{Bounds: equatorBox},
		func(context.Context, domain.BoundingBox) (domain.FeatureCollection, error) {
			t.Fatal("cell query should not run")
			return domain.FeatureCollection{}, nil
		})
	assert.Error(t, err)
}

func TestTiler_TooManyCells(t *testing.T) {
	bay := domain.NewBoundingBox(37.80, -122.30, 37.90, -122.20)

	_, err := Cells(bay, 0.01, 0)
	assert.ErrorIs(t, err, geospatial.ErrTooManyCells)

	_, err = NewTiler().Execute(context.Background(), TileOptions{CellSizeKm: 1, Bounds: bay, MaxCells: 10},
		func(context.Context, domain.BoundingBox) (domain.FeatureCollection, error) {
			t.Fatal("cell query should not run")
			return domain.FeatureCollection{}, nil
		})
	assert.ErrorIs(t, err, geospatial.ErrTooManyCells)
}
