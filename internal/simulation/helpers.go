package simulation

import (
	"fmt"

	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

// Chain builds a snapshot of ids linked in a path, in order.
func Chain(interactive bool, ids ...string) *snapshot.Snapshot {
	s := &snapshot.Snapshot{Interactive: interactive}
	for _, id := range ids {
		s.Nodes = append(s.Nodes, snapshot.Node{ID: id})
	}
	for i := 1; i < len(ids); i++ {
		s.Edges = append(s.Edges, snapshot.Edge{ID: fmt.Sprintf("%s-%s", ids[i-1], ids[i]), Source: i - 1, Target: i})
	}
	return s
}

// Star builds a snapshot with hub linked to every other id.
func Star(interactive bool, hub string, spokes ...string) *snapshot.Snapshot {
	s := &snapshot.Snapshot{Interactive: interactive, Nodes: []snapshot.Node{{ID: hub}}}
	for i, id := range spokes {
		s.Nodes = append(s.Nodes, snapshot.Node{ID: id})
		s.Edges = append(s.Edges, snapshot.Edge{ID: hub + "-" + id, Source: 0, Target: i + 1})
	}
	return s
}

// IDs returns n ids with the given prefix: p0, p1, ...
func IDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return ids
}

// At returns a pointer to a surface point, for Step.Pointer.
func At(x, y float64) *lens.Point {
	return &lens.Point{X: x, Y: y}
}
