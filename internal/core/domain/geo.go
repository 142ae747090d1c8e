package domain

import "fmt"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Position is a GeoJSON position: longitude first, then latitude.
type Position [2]float64

func (p Position) Lon() float64 { return p[0] }
func (p Position) Lat() float64 { return p[1] }

// BoundingBox is a geographic box ordered [latMin, lonMin, latMax, lonMax].
type BoundingBox [4]float64

// NewBoundingBox builds a BoundingBox from its four edges.
func NewBoundingBox(minLat, minLon, maxLat, maxLon float64) BoundingBox {
	return BoundingBox{minLat, minLon, maxLat, maxLon}
}

func (b BoundingBox) MinLat() float64 { return b[0] }
func (b BoundingBox) MinLon() float64 { return b[1] }
func (b BoundingBox) MaxLat() float64 { return b[2] }
func (b BoundingBox) MaxLon() float64 { return b[3] }

// Validate checks that the box is well ordered and within WGS 84 range.
func (b BoundingBox) Validate() error {
	switch {
	case b.MinLat() < -90 || b.MaxLat() > 90:
		return fmt.Errorf("bounding box latitude out of range: %v", b)
	case b.MinLon() < -180 || b.MaxLon() > 180:
		return fmt.Errorf("bounding box longitude out of range: %v", b)
	case b.MinLat() >= b.MaxLat() || b.MinLon() >= b.MaxLon():
		return fmt.Errorf("bounding box must have min < max on both axes: %v", b)
	}
	return nil
}
