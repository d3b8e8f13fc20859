package simulation

import (
	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/snapshot"
	"github.com/nvandessel/livegraph/internal/store"
)

// Scenario defines a complete layout experiment.
type Scenario struct {
	Name   string
	Config *layout.Config // nil = layout.DefaultConfig() with a fixed seed
	Steps  []Step

	// Record, when true, journals every accepted snapshot in the runner's
	// recorder under a fresh session.
	Record bool

	// BeforeStep, when non-nil, is called before each step executes.
	BeforeStep func(stepIndex int, e *layout.Engine)
}

// Step is one thing the driving process or the viewer does.
type Step struct {
	// Label is an optional human-readable tag for failure output.
	Label string

	// Snapshot is merged first when set. JSON is parsed and merged instead
	// when Snapshot is nil and JSON is non-empty.
	Snapshot *snapshot.Snapshot
	JSON     string

	// Reset discards the layout before anything else in the step.
	Reset bool

	// Pointer, when set, is fed as a pointer move after the merge.
	Pointer *lens.Point

	// Ticks is the number of frame ticks run after the merge.
	Ticks int
}

// StepResult captures the outcome of a single step.
type StepResult struct {
	Index int
	Label string

	Merge layout.MergeResult
	Err   error // merge or parse error, nil when the step had no snapshot

	// Merged holds positions right after the merge, before any tick.
	Merged map[string]lens.Point
	// Positions holds positions after the step's ticks.
	Positions map[string]lens.Point

	TicksRun int
	Frame    layout.Frame
}

// SimulationResult captures all steps and the final engine.
type SimulationResult struct {
	Steps     []StepResult
	Engine    *layout.Engine
	Recorder  *store.Recorder
	SessionID string // empty unless Scenario.Record
}
