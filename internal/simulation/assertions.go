package simulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/livegraph/internal/layout"
)

// AssertPositionsKept asserts that the given ids hold exactly the same
// position right after step `to`'s merge as after step `from` finished.
// With no ids, every node present after `from` is checked.
func AssertPositionsKept(t *testing.T, result SimulationResult, from, to int, ids ...string) {
	t.Helper()
	before := result.Steps[from].Positions
	after := result.Steps[to].Merged
	if len(ids) == 0 {
		for id := range before {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		b, ok := before[id]
		if !ok {
			t.Errorf("AssertPositionsKept: node %s not present after step %d", id, from)
			continue
		}
		a, ok := after[id]
		if !ok {
			t.Errorf("AssertPositionsKept: node %s missing after step %d", id, to)
			continue
		}
		if a != b {
			t.Errorf("AssertPositionsKept: node %s moved from %v to %v between steps %d and %d", id, b, a, from, to)
		}
	}
}

// AssertStable asserts that no node moved at all during the given steps'
// ticks.
func AssertStable(t *testing.T, result SimulationResult, steps ...int) {
	t.Helper()
	for _, i := range steps {
		sr := result.Steps[i]
		for id, p := range sr.Merged {
			if q := sr.Positions[id]; q != p {
				t.Errorf("AssertStable: step %d: node %s moved from %v to %v", i, id, p, q)
			}
		}
	}
}

// AssertAllFinite asserts that every projected coordinate of a step is a
// finite number.
func AssertAllFinite(t *testing.T, result SimulationResult, step int) {
	t.Helper()
	for _, n := range result.Steps[step].Frame.Nodes {
		for _, v := range []float64{n.X, n.Y, n.R} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("AssertAllFinite: step %d: node %s has non-finite geometry %+v", step, n.ID, n)
				break
			}
		}
	}
}

// AssertMergeKind asserts how a step's snapshot was applied.
func AssertMergeKind(t *testing.T, result SimulationResult, step int, kind layout.MergeKind) {
	t.Helper()
	sr := result.Steps[step]
	if sr.Err != nil {
		t.Errorf("AssertMergeKind: step %d: merge failed: %v", step, sr.Err)
		return
	}
	if sr.Merge.Kind != kind {
		t.Errorf("AssertMergeKind: step %d: kind = %v, want %v", step, sr.Merge.Kind, kind)
	}
}

// AssertRejected asserts that a step's snapshot was rejected with target.
func AssertRejected(t *testing.T, result SimulationResult, step int, target error) {
	t.Helper()
	if err := result.Steps[step].Err; !errors.Is(err, target) {
		t.Errorf("AssertRejected: step %d: err = %v, want %v", step, err, target)
	}
}

// AssertTracked asserts the number of nodes in a step's frame.
func AssertTracked(t *testing.T, result SimulationResult, step, want int) {
	t.Helper()
	if got := len(result.Steps[step].Frame.Nodes); got != want {
		t.Errorf("AssertTracked: step %d: %d nodes, want %d", step, got, want)
	}
}

// AssertMinSeparation asserts that no two nodes are closer than min after
// a step.
func AssertMinSeparation(t *testing.T, result SimulationResult, step int, min float64) {
	t.Helper()
	nodes := result.Steps[step].Frame.Nodes
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			d := math.Hypot(nodes[i].X-nodes[j].X, nodes[i].Y-nodes[j].Y)
			if d < min {
				t.Errorf("AssertMinSeparation: step %d: %s and %s are %.4f apart (min %.4f)", step, nodes[i].ID, nodes[j].ID, d, min)
			}
		}
	}
}

// AssertRecorded asserts that the scenario's session holds want snapshots.
func AssertRecorded(t *testing.T, result SimulationResult, want int) {
	t.Helper()
	if result.SessionID == "" {
		t.Fatal("AssertRecorded: scenario was not recorded")
	}
	records, err := result.Recorder.LoadSession(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("AssertRecorded: LoadSession: %v", err)
	}
	if len(records) != want {
		t.Errorf("AssertRecorded: %d snapshots recorded, want %d", len(records), want)
	}
}
