package linker

import (
	"fmt"

	"github.com/samirrijal/streetblock/internal/core/domain"
)

// bucket holds the ways whose first (head) or final (last) position hashes
// to one key.
type bucket struct {
	head []*domain.Feature
	last []*domain.Feature
}

// endpointIndex maps position hashes to buckets. order keeps keys in the
// order they were first seen so seed selection follows the input order.
type endpointIndex struct {
	buckets map[string]*bucket
	order   []string
}

func buildIndex(ways []*domain.Feature) *endpointIndex {
	idx := &endpointIndex{buckets: make(map[string]*bucket, 2*len(ways))}
	for _, w := range ways {
		head, _ := w.Geometry.First()
		last, _ := w.Geometry.Last()
		idx.bucket(hashPosition(head)).head = append(idx.bucket(hashPosition(head)).head, w)
		idx.bucket(hashPosition(last)).last = append(idx.bucket(hashPosition(last)).last, w)
	}
	return idx
}

// bucket returns the bucket for key, creating it on first use.
func (idx *endpointIndex) bucket(key string) *bucket {
	b, ok := idx.buckets[key]
	if !ok {
		b = &bucket{}
		idx.buckets[key] = b
		idx.order = append(idx.order, key)
	}
	return b
}

// seeds returns the ways that begin a chain: the only way starting at a
// position where no way ends.
func (idx *endpointIndex) seeds() []*domain.Feature {
	var out []*domain.Feature
	for _, key := range idx.order {
		b := idx.buckets[key]
		if len(b.head) == 1 && len(b.last) == 0 {
			out = append(out, b.head[0])
		}
	}
	return out
}

// matchState tracks whether the walk has entered (head) and left (last) the
// block. Both flags only ever turn on, and last never before head.
type matchState struct {
	head bool
	last bool
}

func (s matchState) advance(headHit, lastHit bool) matchState {
	head := s.head || headHit
	return matchState{head: head, last: (s.last || lastHit) && head}
}

func endMatches(w *domain.Feature, targets map[string]struct{}) (headHit, lastHit bool) {
	head, _ := w.Geometry.First()
	last, _ := w.Geometry.Last()
	_, headHit = targets[hashPosition(head)]
	_, lastHit = targets[hashPosition(last)]
	return headHit, lastHit
}

// next returns the single unvisited way whose head is where current ends.
// A nil way comes with the reason the chain cannot continue.
func (idx *endpointIndex) next(current *domain.Feature, visited map[*domain.Feature]bool) (*domain.Feature, string) {
	last, _ := current.Geometry.Last()
	var candidates []*domain.Feature
	if b, ok := idx.buckets[hashPosition(last)]; ok {
		for _, w := range b.head {
			if !visited[w] {
				candidates = append(candidates, w)
			}
		}
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Sprintf("chain ends at %s before reaching the second intersection", current.ID)
	case 1:
		return candidates[0], ""
	default:
		return nil, fmt.Sprintf("chain branches after %s into %d ways", current.ID, len(candidates))
	}
}

// traverse walks the chain from seed, collecting ways once the first
// boundary node is matched and stopping when the second one is. It returns
// nil and a reason if the walk cannot reach the second node.
func (idx *endpointIndex) traverse(seed *domain.Feature, targets map[string]struct{}) ([]domain.Feature, string) {
	visited := make(map[*domain.Feature]bool)
	var (
		state matchState
		block []domain.Feature
	)
	current := seed
	for {
		visited[current] = true
		state = state.advance(endMatches(current, targets))
		if state.head {
			block = append(block, *current)
		}
		if state.last {
			return block, ""
		}

		next, reason := idx.next(current, visited)
		if next == nil {
			return nil, reason
		}
		current = next
	}
}
