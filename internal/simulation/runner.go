package simulation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/snapshot"
	"github.com/nvandessel/livegraph/internal/store"
)

// Runner orchestrates multi-step layout experiments against a real engine
// and snapshot recorder.
type Runner struct {
	t        *testing.T
	recorder *store.Recorder
}

// NewRunner creates a runner with an isolated recorder database and a
// sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	rec, err := store.NewRecorder(filepath.Join(tmpDir, ".livegraph", store.DBFile))
	if err != nil {
		t.Fatalf("NewRunner: failed to create recorder: %v", err)
	}
	t.Cleanup(func() { rec.Close() })

	return &Runner{t: t, recorder: rec}
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	ctx := context.Background()

	cfg := layout.DefaultConfig()
	cfg.Force.Seed = 1
	if scenario.Config != nil {
		cfg = *scenario.Config
	}
	engine := layout.NewEngine(cfg)

	result := SimulationResult{Engine: engine, Recorder: r.recorder}
	if scenario.Record {
		sess, err := r.recorder.StartSession(ctx, "", scenario.Name)
		if err != nil {
			r.t.Fatalf("%s: StartSession: %v", scenario.Name, err)
		}
		result.SessionID = sess.ID
	}

	result.Steps = make([]StepResult, len(scenario.Steps))
	for i, step := range scenario.Steps {
		if scenario.BeforeStep != nil {
			scenario.BeforeStep(i, engine)
		}
		result.Steps[i] = r.runStep(ctx, i, step, engine, result.SessionID)
	}
	return result
}

// runStep executes a single step: reset, merge, pointer, ticks, project.
func (r *Runner) runStep(ctx context.Context, index int, step Step, engine *layout.Engine, sessionID string) StepResult {
	r.t.Helper()
	sr := StepResult{Index: index, Label: step.Label}

	if step.Reset {
		engine.Reset()
	}

	snap := step.Snapshot
	if snap == nil && step.JSON != "" {
		snap, sr.Err = snapshot.Parse([]byte(step.JSON))
	}
	if snap != nil && sr.Err == nil {
		sr.Merge, sr.Err = engine.InitializeOrUpdate(ctx, snap)
		if sr.Err == nil && sessionID != "" {
			if _, err := r.recorder.Append(ctx, sessionID, snap); err != nil {
				r.t.Fatalf("step %d: Append: %v", index, err)
			}
		}
	}
	sr.Merged = positions(engine)

	if step.Pointer != nil {
		engine.NotifyPointerMove(*step.Pointer)
	}
	for i := 0; i < step.Ticks; i++ {
		sr.TicksRun += engine.Tick(ctx)
	}

	sr.Positions = positions(engine)
	sr.Frame = engine.Frame()
	return sr
}

// positions snapshots every tracked node's simulation position by id.
func positions(e *layout.Engine) map[string]lens.Point {
	out := make(map[string]lens.Point, e.Tracked())
	for _, id := range e.IDs() {
		if p, err := e.Position(id); err == nil {
			out[id] = p
		}
	}
	return out
}
