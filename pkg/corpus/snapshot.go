// Package corpus holds the labelled example set used for nearest-neighbour
// routing. Readers get an immutable Snapshot; writers build a new one and
// publish it by pointer swap.
package corpus

import (
	"slices"
	"sort"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/embedding"
)

// Snapshot is one immutable version of the example corpus. Nothing reachable
// from a Snapshot may be modified after NewSnapshot returns.
type Snapshot struct {
	version  int64
	examples []agent.RoutingExample
	embedded int
}

// Neighbor is an example and its similarity to a query.
type Neighbor struct {
	Example    agent.RoutingExample
	Similarity float64
}

// NewSnapshot copies examples into a new snapshot.
func NewSnapshot(version int64, examples []agent.RoutingExample) *Snapshot {
	s := &Snapshot{version: version, examples: make([]agent.RoutingExample, len(examples))}
	for i, ex := range examples {
		ex.Embedding = slices.Clone(ex.Embedding)
		s.examples[i] = ex
		if len(ex.Embedding) > 0 {
			s.embedded++
		}
	}
	return s
}

// Version returns the corpus version this snapshot was built from.
func (s *Snapshot) Version() int64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Len returns the number of examples, embedded or not.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.examples)
}

// Embedded returns how many examples carry an embedding.
func (s *Snapshot) Embedded() int {
	if s == nil {
		return 0
	}
	return s.embedded
}

// Examples returns a copy of the example list. Embedding slices are shared
// and must be treated as read-only.
func (s *Snapshot) Examples() []agent.RoutingExample {
	if s == nil {
		return nil
	}
	return slices.Clone(s.examples)
}

// Nearest returns up to k examples most similar to query by cosine
// similarity, best first. Examples without an embedding or with a different
// dimension are skipped. Equal similarities keep corpus order.
func (s *Snapshot) Nearest(query []float32, k int) []Neighbor {
	if s == nil || k <= 0 || len(query) == 0 {
		return nil
	}
	neighbors := make([]Neighbor, 0, s.embedded)
	for _, ex := range s.examples {
		if len(ex.Embedding) != len(query) {
			continue
		}
		neighbors = append(neighbors, Neighbor{Example: ex, Similarity: embedding.Cosine(query, ex.Embedding)})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}
