// Package simulation provides a multi-step test harness for validating the
// behavior of the layout engine as a graph evolves.
//
// The harness drives the real layout.Engine and records every accepted
// snapshot in a real store.Recorder. Nothing is mocked. Scenarios are Go
// builders listing the snapshots a driving process would send, interleaved
// with frame ticks, pointer moves and resets. Each step captures node
// positions right after the merge and again after its ticks, so assertions
// can check continuity properties across steps.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestGrowthKeepsPositions(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name: "growth",
//	        Steps: []simulation.Step{
//	            {Snapshot: simulation.Chain(true, "a", "b"), Ticks: 30},
//	            {Snapshot: simulation.Chain(true, "a", "b", "c")},
//	        },
//	    })
//	    simulation.AssertPositionsKept(t, result, 0, 1, "a", "b")
//	}
package simulation
