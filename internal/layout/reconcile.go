package layout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nvandessel/livegraph/internal/force"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

// ErrUnsupportedTransition is returned when a snapshot drops nodes the layout
// is tracking. Removal is not supported within a session; reset first.
var ErrUnsupportedTransition = errors.New("unsupported snapshot transition")

// TransitionError reports which tracked ids an incoming snapshot is missing.
type TransitionError struct {
	Tracked  int
	Incoming int
	Missing  []string
}

func (e *TransitionError) Error() string {
	missing := e.Missing
	suffix := ""
	if len(missing) > 5 {
		suffix = fmt.Sprintf(" (+%d more)", len(missing)-5)
		missing = missing[:5]
	}
	return fmt.Sprintf("%s: %d tracked, %d incoming, missing [%s]%s",
		ErrUnsupportedTransition, e.Tracked, e.Incoming, strings.Join(missing, ", "), suffix)
}

// Unwrap lets callers match with errors.Is(err, ErrUnsupportedTransition).
func (e *TransitionError) Unwrap() error { return ErrUnsupportedTransition }

// MergeKind classifies how a snapshot was applied.
type MergeKind int

const (
	// MergeInit built the layout from scratch.
	MergeInit MergeKind = iota
	// MergeRefresh updated attributes of an unchanged node set.
	MergeRefresh
	// MergeGrow added nodes to the tracked set.
	MergeGrow
)

func (k MergeKind) String() string {
	switch k {
	case MergeInit:
		return "init"
	case MergeRefresh:
		return "refresh"
	case MergeGrow:
		return "grow"
	default:
		return fmt.Sprintf("MergeKind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k MergeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *MergeKind) UnmarshalText(text []byte) error {
	for _, c := range []MergeKind{MergeInit, MergeRefresh, MergeGrow} {
		if string(text) == c.String() {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown merge kind %q", text)
}

// MergeResult summarizes one accepted snapshot.
type MergeResult struct {
	Kind    MergeKind `json:"kind"`
	Added   int       `json:"added"`
	Tracked int       `json:"tracked"`
	Edges   int       `json:"edges"`

	// Settled is the number of ticks run synchronously by a static
	// initialization.
	Settled int `json:"settled"`
}

// State is the live layout state of one session: the id index, the edge
// list and the mode flags of the last accepted snapshot. Node records live
// in the engine's arena.
type State struct {
	byID        map[string]Handle
	edges       []edge
	interactive bool
	fisheye     bool
}

type edge struct {
	id     string
	source Handle
	target Handle
	width  float64
	color  string
}

func newState(capacity int) *State {
	return &State{byID: make(map[string]Handle, capacity)}
}

// Tracked returns the number of tracked nodes.
func (s *State) Tracked() int { return len(s.byID) }

// Interactive reports the mode flag of the last accepted snapshot.
func (s *State) Interactive() bool { return s.interactive }

// Fisheye reports whether the lens was requested by the last snapshot.
func (s *State) Fisheye() bool { return s.fisheye }

// missing returns tracked ids absent from ids, in arena order.
func (e *Engine) missing(incoming map[string]int) []string {
	var out []string
	for _, ent := range e.arena.entries {
		if _, ok := incoming[ent.id]; !ok {
			out = append(out, ent.id)
		}
	}
	return out
}

// merge reconciles snap into the live state. On error the state is left
// exactly as it was.
func (e *Engine) merge(ctx context.Context, snap *snapshot.Snapshot) (MergeResult, error) {
	if err := snap.Validate(); err != nil {
		return MergeResult{}, err
	}

	incoming := make(map[string]int, len(snap.Nodes))
	for i, n := range snap.Nodes {
		incoming[n.ID] = i
	}

	result := MergeResult{Kind: MergeInit}
	if e.state != nil {
		if missing := e.missing(incoming); len(missing) > 0 {
			return MergeResult{}, &TransitionError{
				Tracked:  e.state.Tracked(),
				Incoming: len(snap.Nodes),
				Missing:  missing,
			}
		}
		result.Kind = MergeRefresh
	} else {
		e.state = newState(len(snap.Nodes))
	}

	// Existing records are refreshed in place; unknown ids get a fresh
	// body appended in snapshot order.
	var fresh []*force.Node
	for _, n := range snap.Nodes {
		if h, ok := e.state.byID[n.ID]; ok {
			ent, _ := e.arena.get(h)
			refresh(ent, n)
			continue
		}
		ent := &entry{id: n.ID, body: force.NewNode()}
		refresh(ent, n)
		e.state.byID[n.ID] = e.arena.alloc(ent)
		fresh = append(fresh, ent.body)
	}
	e.sim.AddNodes(fresh...)
	result.Added = len(fresh)
	if result.Kind == MergeRefresh && result.Added > 0 {
		result.Kind = MergeGrow
	}

	e.rebuildEdges(snap)
	result.Tracked = e.state.Tracked()
	result.Edges = len(e.state.edges)

	e.applyFlags(snap)

	switch result.Kind {
	case MergeGrow:
		e.sim.Reheat(e.cfg.ReheatAlpha)
	case MergeInit:
		if !snap.Interactive {
			ran, err := e.sim.Settle(ctx)
			result.Settled = ran
			if err != nil {
				e.logger.Debug("static settle interrupted, remainder deferred",
					"ran", ran, "pending", e.sim.Pending(), "error", err)
			}
		}
	}
	return result, nil
}

func refresh(ent *entry, n snapshot.Node) {
	ent.size = n.Size
	ent.color = n.Color
	ent.tooltip = n.Tooltip
	ent.attrs = n.Attrs
}

// rebuildEdges replaces the edge list wholesale. Snapshot indices are
// resolved through ids, so reordered snapshots map to the right bodies.
func (e *Engine) rebuildEdges(snap *snapshot.Snapshot) {
	edges := make([]edge, 0, len(snap.Edges))
	links := make([]force.Link, 0, len(snap.Edges))
	for _, se := range snap.Edges {
		src := e.state.byID[snap.Nodes[se.Source].ID]
		tgt := e.state.byID[snap.Nodes[se.Target].ID]
		edges = append(edges, edge{id: se.ID, source: src, target: tgt, width: se.Width, color: se.Color})
		links = append(links, force.Link{Source: src.Index, Target: tgt.Index})
	}
	e.state.edges = edges
	e.sim.SetLinks(links)
}

// applyFlags re-reads the mode flags. Leaving interactive mode schedules a
// settle burst for the next tick; the fisheye flag swaps the lens.
func (e *Engine) applyFlags(snap *snapshot.Snapshot) {
	e.state.interactive = snap.Interactive
	e.state.fisheye = snap.Fisheye

	if snap.Interactive {
		e.sim.SetMode(force.ModeInteractive)
	} else {
		if e.drag.active {
			e.endDrag()
		}
		e.sim.SetMode(force.ModeStatic)
	}

	if snap.Fisheye {
		e.lens = lens.New(e.cfg.LensRadius, e.cfg.LensDistortion)
	} else {
		e.lens = lens.Disabled()
	}
}
