package geospatial

import (
	"errors"
	"fmt"
	"math"
)

// ErrTooManyCells is returned when a grid would exceed its cell cap.
var ErrTooManyCells = errors.New("grid has too many cells")

// Cell is one rectangle of a grid, in degrees.
type Cell struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// SquareGrid partitions the box into cells of roughly cellSizeKm per side
// using an equirectangular approximation at the box's middle latitude.
// Full cells start at the south-west corner; any remainder becomes narrower
// cells along the east and north edges. Cells are returned column by column
// (west to east), each column south to north.
//
// A grid that would hold more than maxCells cells fails with
// ErrTooManyCells before anything is allocated. maxCells <= 0 disables
// the check.
func SquareGrid(minLat, minLon, maxLat, maxLon, cellSizeKm float64, maxCells int) ([]Cell, error) {
	if cellSizeKm <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %v", cellSizeKm)
	}
	if minLat >= maxLat || minLon >= maxLon {
		return nil, fmt.Errorf("empty bounding box [%v %v %v %v]", minLat, minLon, maxLat, maxLon)
	}

	midLat := (minLat + maxLat) / 2
	cellLat := cellSizeKm * 1000 / metersPerDeg
	cellLon := cellSizeKm * 1000 / (metersPerDeg * math.Cos(toRad(midLat)))

	if maxCells > 0 {
		n := math.Ceil((maxLon-minLon)/cellLon) * math.Ceil((maxLat-minLat)/cellLat)
		if n > float64(maxCells) {
			return nil, fmt.Errorf("%w: %.0f cells of %v km, limit %d", ErrTooManyCells, n, cellSizeKm, maxCells)
		}
	}

	lonEdges := edges(minLon, maxLon, cellLon)
	latEdges := edges(minLat, maxLat, cellLat)

	cells := make([]Cell, 0, (len(lonEdges)-1)*(len(latEdges)-1))
	for x := 0; x < len(lonEdges)-1; x++ {
		for y := 0; y < len(latEdges)-1; y++ {
			cells = append(cells, Cell{
				MinLat: latEdges[y],
				MinLon: lonEdges[x],
				MaxLat: latEdges[y+1],
				MaxLon: lonEdges[x+1],
			})
		}
	}
	return cells, nil
}

// edges splits [lo, hi] into steps of size step, clamping the final edge to hi.
func edges(lo, hi, step float64) []float64 {
	n := int(math.Ceil((hi - lo) / step))
	// Floating point noise can leave a sliver cell of near-zero width.
	if n > 1 && lo+float64(n-1)*step >= hi-1e-12 {
		n--
	}
	out := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, lo+float64(i)*step)
	}
	return append(out, hi)
}
