package overpass

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

type response struct {
	Elements []element `json:"elements"`
	Remark   string    `json:"remark"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type element struct {
	Type      string            `json:"type"`
	ID        int64             `json:"id"`
	Lat       *float64          `json:"lat"`
	Lon       *float64          `json:"lon"`
	Nodes     []int64           `json:"nodes"`
	Geometry  []*latLon         `json:"geometry"`
	Tags      map[string]string `json:"tags"`
	Timestamp string            `json:"timestamp"`
	Version   int               `json:"version"`
	Changeset int64             `json:"changeset"`
	User      string            `json:"user"`
	UID       int64             `json:"uid"`
}

// RemarkError is returned when the interpreter answered but reported a
// runtime error, e.g. a query timeout or memory exhaustion.
type RemarkError struct {
	Remark string
}

func (e *RemarkError) Error() string { return "overpass: " + e.Remark }

// Decode converts an Overpass JSON response into GeoJSON features in element
// order. Nodes become Points unless they are untagged vertices of a returned
// way. Ways become LineStrings, from inline geometry when the query used
// "out geom" and from their node references otherwise. Relations and ways
// with fewer than two known positions are dropped. Each id appears once.
func Decode(body []byte) (domain.FeatureCollection, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FeatureCollection{}, fmt.Errorf("decode overpass response: %w", err)
	}
	if strings.Contains(resp.Remark, "runtime error") {
		return domain.FeatureCollection{}, &RemarkError{Remark: resp.Remark}
	}

	positions := make(map[int64]domain.Position)
	vertices := make(map[int64]struct{})
	for _, el := range resp.Elements {
		switch el.Type {
		case domain.KindNode:
			if el.Lat != nil && el.Lon != nil {
				positions[el.ID] = domain.Position{*el.Lon, *el.Lat}
			}
		case domain.KindWay:
			for _, ref := range el.Nodes {
				vertices[ref] = struct{}{}
			}
		}
	}

	fc := domain.FeatureCollection{Features: make([]domain.Feature, 0, len(resp.Elements))}
	for _, el := range resp.Elements {
		switch el.Type {
		case domain.KindNode:
			p, ok := positions[el.ID]
			if !ok {
				continue
			}
			if _, vertex := vertices[el.ID]; vertex && len(el.Tags) == 0 {
				continue
			}
			fc.Features = append(fc.Features, el.feature(domain.NewPoint(p)))
		case domain.KindWay:
			path := el.path(positions)
			if len(path) < 2 {
				continue
			}
			fc.Features = append(fc.Features, el.feature(domain.NewLineString(path...)))
		}
	}
	return fc.Dedupe(), nil
}

func (el element) path(positions map[int64]domain.Position) []domain.Position {
	if len(el.Geometry) > 0 {
		path := make([]domain.Position, 0, len(el.Geometry))
		for _, g := range el.Geometry {
			if g != nil {
				path = append(path, domain.Position{g.Lon, g.Lat})
			}
		}
		return path
	}
	path := make([]domain.Position, 0, len(el.Nodes))
	for _, ref := range el.Nodes {
		if p, ok := positions[ref]; ok {
			path = append(path, p)
		}
	}
	return path
}

func (el element) feature(g domain.Geometry) domain.Feature {
	tags := make(map[string]any, len(el.Tags))
	for k, v := range el.Tags {
		tags[k] = v
	}
	props := map[string]any{
		"type": el.Type,
		"id":   el.ID,
		"tags": tags,
	}
	if el.Version > 0 {
		props["meta"] = map[string]any{
			"timestamp": el.Timestamp,
			"version":   el.Version,
			"changeset": el.Changeset,
			"user":      el.User,
			"uid":       el.UID,
		}
	}
	return domain.Feature{ID: domain.FeatureID(el.Type, el.ID), Geometry: g, Properties: props}
}
