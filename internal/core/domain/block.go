package domain

import "time"

// Endpoint is the URL of one Overpass interpreter in the configured pool.
type Endpoint string

func (e Endpoint) String() string { return string(e) }

// Intersection describes one end of a block. Streets holds the full names of
// the streets meeting there (e.g. "Main Street", not "Main St"); Point is an
// optional coordinate used by geocoders to normalise the names.
type Intersection struct {
	Streets []string  `json:"streets,omitempty"`
	Point   *GeoPoint `json:"point,omitempty"`
}

// Area scopes a block query to an administrative region.
type Area struct {
	Country      string `json:"country,omitempty"`
	State        string `json:"state,omitempty"`
	City         string `json:"city,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	// OSMID is the OpenStreetMap relation id of the area when already known.
	OSMID string `json:"osm_id,omitempty"`
}

// WithoutNeighborhood returns a copy of the area widened to the whole city.
func (a Area) WithoutNeighborhood() Area {
	a.Neighborhood = ""
	a.OSMID = ""
	return a
}

// BlockRequest asks for the block between two intersections.
type BlockRequest struct {
	Intersections [2]Intersection `json:"intersections"`
	Area          Area            `json:"area"`
}

// Scope is one resolved area the block query was run against.
type Scope struct {
	Name   string `json:"name"`
	OSMID  string `json:"osm_id"`
	AreaID string `json:"area_id"`
}

// ScopeAttempt records what a single scope produced, for diagnostics.
type ScopeAttempt struct {
	Scope   Scope    `json:"scope"`
	Queries []string `json:"queries,omitempty"`
	Nodes   int      `json:"nodes"`
	Ways    int      `json:"ways"`
	Error   string   `json:"error,omitempty"`
}

// Block is a resolved street block: the ordered ways between two
// intersection nodes.
type Block struct {
	ID            string          `json:"id"`
	Ways          []Feature       `json:"ways"`
	Nodes         []Feature       `json:"nodes"`
	Intersections [2]Intersection `json:"intersections"`
	Scope         Scope           `json:"scope"`
	LengthMeters  float64         `json:"length_meters"`
	ResolvedAt    time.Time       `json:"resolved_at"`
}

// FeatureCollection returns the block as GeoJSON: nodes first, then ways in
// block order.
func (b *Block) FeatureCollection() FeatureCollection {
	features := make([]Feature, 0, len(b.Nodes)+len(b.Ways))
	features = append(features, b.Nodes...)
	features = append(features, b.Ways...)
	return FeatureCollection{Features: features}
}
