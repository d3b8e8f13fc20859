// Package layout keeps the live layout of a graph that is redescribed by
// full snapshots. It merges each snapshot into the running force
// simulation without disturbing nodes it already tracks, projects the
// result through the fisheye lens into drawable frames, and handles node
// dragging.
//
// An Engine is single-threaded. The frame loop in package loop owns one
// engine per pane and serializes every call on its goroutine.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/livegraph/internal/force"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/logging"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

// ErrUnknownNode is returned when an id is not tracked.
var ErrUnknownNode = errors.New("unknown node")

// Config holds the tunable parameters of the layout engine.
type Config struct {
	// Force configures the underlying simulation.
	Force force.Config

	// ReheatAlpha is the energy restored when nodes are added to a live
	// layout. Kept well below a full restart so the existing shape holds. Default: 0.05.
	ReheatAlpha float64

	// DragAlphaTarget keeps the simulation warm while a node is dragged. Default: 0.3.
	DragAlphaTarget float64

	// LensRadius and LensDistortion parameterize the fisheye when a
	// snapshot turns it on. Defaults: 300 and 1.5.
	LensRadius     float64
	LensDistortion float64

	// Fallbacks for attributes a snapshot leaves empty.
	DefaultNodeRadius float64
	DefaultNodeColor  string
	DefaultEdgeWidth  float64
	DefaultEdgeColor  string

	// View is the initial pan/zoom transform, restored on reset.
	View lens.ViewTransform
}

// DefaultConfig returns the default engine configuration for an 800x600 surface.
func DefaultConfig() Config {
	return Config{
		Force:             force.DefaultConfig(),
		ReheatAlpha:       0.05,
		DragAlphaTarget:   0.3,
		LensRadius:        300,
		LensDistortion:    1.5,
		DefaultNodeRadius: 4.5,
		DefaultNodeColor:  "#1f77b4",
		DefaultEdgeWidth:  1,
		DefaultEdgeColor:  "#999999",
		View:              lens.Centered(800, 600),
	}
}

// Engine is the layout facade: reconciliation, ticking, projection and
// interaction over one exclusively owned simulation.
type Engine struct {
	cfg Config
	sim *force.Simulation

	arena arena
	state *State // nil until the first snapshot

	lens  lens.Lens
	focus *lens.Focus
	drag  dragState
	last  *Frame

	logger *slog.Logger
	merges *logging.MergeLogger
}

// NewEngine creates an engine with no layout state.
func NewEngine(cfg Config) *Engine {
	if !cfg.View.Valid() {
		cfg.View = DefaultConfig().View
	}
	return &Engine{
		cfg:    cfg,
		sim:    force.New(cfg.Force),
		focus:  lens.NewFocus(cfg.View),
		logger: logging.OrDiscard(nil),
	}
}

// SetLogger sets the structured logger and the merge journal.
func (e *Engine) SetLogger(logger *slog.Logger, merges *logging.MergeLogger) {
	e.logger = logging.OrDiscard(logger)
	e.merges = merges
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// InitializeOrUpdate merges a snapshot into the layout. The first snapshot
// of a session builds the layout (settling it synchronously when static);
// later ones refresh attributes or grow the node set. A rejected snapshot
// leaves the layout untouched.
func (e *Engine) InitializeOrUpdate(ctx context.Context, snap *snapshot.Snapshot) (MergeResult, error) {
	if snap == nil {
		return MergeResult{}, &snapshot.ValidationError{Issue: "nil snapshot"}
	}
	result, err := e.merge(ctx, snap)
	if err != nil {
		e.logger.Warn("snapshot rejected", "error", err, "nodes", len(snap.Nodes))
		e.merges.Log(map[string]any{
			"event": "rejected",
			"nodes": len(snap.Nodes),
			"error": err.Error(),
		})
		return MergeResult{}, fmt.Errorf("merge snapshot: %w", err)
	}

	e.logger.Debug("snapshot merged",
		"kind", result.Kind.String(),
		"added", result.Added,
		"tracked", result.Tracked,
		"edges", result.Edges,
		"mode", e.sim.Mode().String())
	e.merges.Log(map[string]any{
		"event":       "merged",
		"kind":        result.Kind.String(),
		"added":       result.Added,
		"tracked":     result.Tracked,
		"edges":       result.Edges,
		"settled":     result.Settled,
		"interactive": snap.Interactive,
		"fisheye":     snap.Fisheye,
	})
	return result, nil
}

// Tick advances the simulation by one frame: a single tick when
// interactive, or any owed settle burst when static. The burst checks ctx
// between ticks and defers the remainder on cancellation. It returns the
// number of ticks run.
func (e *Engine) Tick(ctx context.Context) int {
	if e.state == nil {
		return 0
	}
	if e.sim.Mode() == force.ModeInteractive {
		return e.sim.Step()
	}
	ran, err := e.sim.Settle(ctx)
	if err != nil {
		e.logger.Debug("settle burst deferred", "ran", ran, "pending", e.sim.Pending())
	}
	return ran
}

// Frame projects the current layout and caches it for hit-testing.
func (e *Engine) Frame() Frame {
	focus, _ := e.focus.Point()
	f := project(projection{
		entries: e.arena.entries,
		state:   e.state,
		lens:    e.lens,
		focus:   focus,
		view:    e.focus.View(),
		seq:     e.sim.Ticks(),
		alpha:   e.sim.Alpha(),
		cfg:     e.cfg,
	})
	e.last = &f
	return f
}

// Reset discards the layout, the cached frame and any drag, restoring the
// state before the first snapshot. Handles issued before the reset become
// stale.
func (e *Engine) Reset() {
	e.sim.Reset()
	e.arena.reset()
	e.state = nil
	e.lens = lens.Disabled()
	e.focus = lens.NewFocus(e.cfg.View)
	e.drag = dragState{}
	e.last = nil
	e.merges.Log(map[string]any{"event": "reset"})
}

// Initialized reports whether a snapshot has been accepted since the last reset.
func (e *Engine) Initialized() bool { return e.state != nil }

// State returns the live state, or nil before the first snapshot.
func (e *Engine) State() *State { return e.state }

// Tracked returns the number of tracked nodes.
func (e *Engine) Tracked() int { return e.arena.len() }

// IDs returns the tracked ids in the order they were first seen.
func (e *Engine) IDs() []string {
	ids := make([]string, len(e.arena.entries))
	for i, ent := range e.arena.entries {
		ids[i] = ent.id
	}
	return ids
}

// Alpha returns the simulation energy.
func (e *Engine) Alpha() float64 { return e.sim.Alpha() }

// Pending returns the number of settle ticks owed in static mode.
func (e *Engine) Pending() int { return e.sim.Pending() }

// Lookup returns the handle of a tracked id.
func (e *Engine) Lookup(id string) (Handle, bool) {
	if e.state == nil {
		return Handle{}, false
	}
	h, ok := e.state.byID[id]
	return h, ok
}

// NodeView is a read-only copy of a tracked node.
type NodeView struct {
	ID      string
	X, Y    float64
	VX, VY  float64
	Pinned  bool
	Size    float64
	Color   string
	Tooltip string
}

// Node returns a copy of the node behind h.
func (e *Engine) Node(h Handle) (NodeView, error) {
	ent, err := e.arena.get(h)
	if err != nil {
		return NodeView{}, err
	}
	b := ent.body
	return NodeView{
		ID:      ent.id,
		X:       b.X,
		Y:       b.Y,
		VX:      b.VX,
		VY:      b.VY,
		Pinned:  b.Pinned,
		Size:    ent.size,
		Color:   ent.color,
		Tooltip: ent.tooltip,
	}, nil
}

// Position returns the simulation-space position of a tracked id.
func (e *Engine) Position(id string) (lens.Point, error) {
	h, ok := e.Lookup(id)
	if !ok {
		return lens.Point{}, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	ent, err := e.arena.get(h)
	if err != nil {
		return lens.Point{}, err
	}
	return lens.Point{X: ent.body.X, Y: ent.body.Y}, nil
}
