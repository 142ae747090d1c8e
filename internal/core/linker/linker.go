// Package linker reconstructs a street block from an unordered set of ways.
//
// Overpass returns every way of the common street that touches either
// intersection node, so the result usually spills past the block at both
// ends. Link chains the ways head-to-last and keeps only the run that starts
// at one boundary node and ends at the other.
package linker

import (
	"fmt"
	"strconv"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

// Link returns the ways forming the block between the two node features, in
// chain order. Consecutive ways share an endpoint, the first way starts at
// one node and the last way ends at the other.
//
// Exactly two Point nodes and at least one LineString way are required,
// otherwise a *domain.AmbiguousIntersectionError is returned. Ways that
// cannot be chained between the nodes yield a *domain.MalformedChainError.
func Link(ways, nodes []domain.Feature) ([]domain.Feature, error) {
	targets, err := nodeHashes(nodes)
	if err != nil {
		return nil, err
	}

	usable := usableWays(ways)
	if len(usable) == 0 {
		return nil, &domain.AmbiguousIntersectionError{
			Reason: fmt.Sprintf("no usable way segments among %d ways", len(ways)),
		}
	}

	idx := buildIndex(usable)
	seeds := idx.seeds()
	if len(seeds) == 0 {
		return nil, malformed(ways, nodes, "no way starts an unambiguous chain end")
	}

	var lastReason string
	for _, seed := range seeds {
		block, reason := idx.traverse(seed, targets)
		if block != nil {
			return block, nil
		}
		lastReason = reason
	}
	return nil, malformed(ways, nodes, lastReason)
}

// hashPosition is the stable key under which chain endpoints are matched.
func hashPosition(p domain.Position) string {
	return strconv.FormatFloat(p[0], 'f', -1, 64) + ":" + strconv.FormatFloat(p[1], 'f', -1, 64)
}

func nodeHashes(nodes []domain.Feature) (map[string]struct{}, error) {
	if len(nodes) != 2 {
		return nil, &domain.AmbiguousIntersectionError{
			Reason: fmt.Sprintf("expected exactly 2 intersection nodes, got %d", len(nodes)),
		}
	}
	targets := make(map[string]struct{}, 2)
	for _, n := range nodes {
		p, ok := n.Geometry.First()
		if n.Geometry.Type != domain.GeometryPoint || !ok {
			return nil, &domain.AmbiguousIntersectionError{
				Reason: fmt.Sprintf("intersection node %s is not a point", n.ID),
			}
		}
		targets[hashPosition(p)] = struct{}{}
	}
	if len(targets) != 2 {
		return nil, &domain.AmbiguousIntersectionError{
			Reason: "both intersection nodes are at the same position",
		}
	}
	return targets, nil
}

// usableWays keeps LineStrings with at least two positions, first occurrence
// per id.
func usableWays(ways []domain.Feature) []*domain.Feature {
	seen := make(map[string]struct{}, len(ways))
	out := make([]*domain.Feature, 0, len(ways))
	for i := range ways {
		w := &ways[i]
		if w.Geometry.Type != domain.GeometryLineString || len(w.Geometry.Coordinates) < 2 {
			continue
		}
		if _, dup := seen[w.ID]; dup {
			continue
		}
		seen[w.ID] = struct{}{}
		out = append(out, w)
	}
	return out
}

func malformed(ways, nodes []domain.Feature, reason string) error {
	return &domain.MalformedChainError{Ways: ways, Nodes: nodes, Reason: reason}
}
