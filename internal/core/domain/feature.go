package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GeometryType names the GeoJSON geometries the service understands.
type GeometryType string

const (
	GeometryPoint      GeometryType = "Point"
	GeometryLineString GeometryType = "LineString"
)

// Feature kinds as they appear in OSM identifiers ("way/123").
const (
	KindNode     = "node"
	KindWay      = "way"
	KindRelation = "relation"
)

// Geometry is a Point (exactly one position) or a LineString (ordered positions).
type Geometry struct {
	Type        GeometryType
	Coordinates []Position
}

// NewPoint returns a Point geometry.
func NewPoint(p Position) Geometry {
	return Geometry{Type: GeometryPoint, Coordinates: []Position{p}}
}

// NewLineString returns a LineString geometry over the given positions.
func NewLineString(ps ...Position) Geometry {
	return Geometry{Type: GeometryLineString, Coordinates: ps}
}

// First returns the head position of the geometry.
func (g Geometry) First() (Position, bool) {
	if len(g.Coordinates) == 0 {
		return Position{}, false
	}
	return g.Coordinates[0], true
}

// Last returns the final position of the geometry.
func (g Geometry) Last() (Position, bool) {
	if len(g.Coordinates) == 0 {
		return Position{}, false
	}
	return g.Coordinates[len(g.Coordinates)-1], true
}

type geometryJSON struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	var coords any
	switch g.Type {
	case GeometryPoint:
		if len(g.Coordinates) != 1 {
			return nil, fmt.Errorf("point geometry needs exactly one position, got %d", len(g.Coordinates))
		}
		coords = g.Coordinates[0]
	case GeometryLineString:
		ps := g.Coordinates
		if ps == nil {
			ps = []Position{}
		}
		coords = ps
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	return json.Marshal(geometryJSON{Type: g.Type, Coordinates: raw})
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw geometryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case GeometryPoint:
		var p Position
		if err := json.Unmarshal(raw.Coordinates, &p); err != nil {
			return fmt.Errorf("point coordinates: %w", err)
		}
		*g = NewPoint(p)
	case GeometryLineString:
		var ps []Position
		if err := json.Unmarshal(raw.Coordinates, &ps); err != nil {
			return fmt.Errorf("linestring coordinates: %w", err)
		}
		*g = NewLineString(ps...)
	default:
		return fmt.Errorf("unsupported geometry type %q", raw.Type)
	}
	return nil
}

// Feature is a GeoJSON feature carrying an OSM identifier of the form "<kind>/<numericId>".
type Feature struct {
	ID         string
	Geometry   Geometry
	Properties map[string]any
}

// FeatureID formats an OSM identifier.
func FeatureID(kind string, id int64) string {
	return kind + "/" + strconv.FormatInt(id, 10)
}

// Kind returns the part of the identifier before the slash ("way", "node").
func (f Feature) Kind() string {
	kind, _, _ := strings.Cut(f.ID, "/")
	return kind
}

// NumericID parses the part of the identifier after the slash.
func (f Feature) NumericID() (int64, error) {
	_, num, ok := strings.Cut(f.ID, "/")
	if !ok {
		return 0, fmt.Errorf("feature id %q has no kind prefix", f.ID)
	}
	return strconv.ParseInt(num, 10, 64)
}

type featureJSON struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

func (f Feature) MarshalJSON() ([]byte, error) {
	props := f.Properties
	if props == nil {
		props = map[string]any{}
	}
	return json.Marshal(featureJSON{Type: "Feature", ID: f.ID, Geometry: f.Geometry, Properties: props})
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw featureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Feature{ID: raw.ID, Geometry: raw.Geometry, Properties: raw.Properties}
	return nil
}

// FeatureCollection is an ordered sequence of features.
type FeatureCollection struct {
	Features []Feature
}

// Len returns the number of features.
func (fc FeatureCollection) Len() int { return len(fc.Features) }

// OfKind returns the features whose identifier has the given kind, in order.
func (fc FeatureCollection) OfKind(kind string) []Feature {
	var out []Feature
	for _, f := range fc.Features {
		if f.Kind() == kind {
			out = append(out, f)
		}
	}
	return out
}

// Dedupe drops every feature whose identifier was already seen earlier in
// the collection. The first occurrence wins even when later copies differ.
func (fc FeatureCollection) Dedupe() FeatureCollection {
	seen := make(map[string]struct{}, len(fc.Features))
	out := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return FeatureCollection{Features: out}
}

// Concat joins collections in order without removing duplicates.
func Concat(collections ...FeatureCollection) FeatureCollection {
	n := 0
	for _, c := range collections {
		n += len(c.Features)
	}
	out := make([]Feature, 0, n)
	for _, c := range collections {
		out = append(out, c.Features...)
	}
	return FeatureCollection{Features: out}
}

type featureCollectionJSON struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func (fc FeatureCollection) MarshalJSON() ([]byte, error) {
	features := fc.Features
	if features == nil {
		features = []Feature{}
	}
	return json.Marshal(featureCollectionJSON{Type: "FeatureCollection", Features: features})
}

func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	var raw featureCollectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fc.Features = raw.Features
	return nil
}
