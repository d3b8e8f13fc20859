package layout

import (
	"context"
	"errors"

	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/logging"
)

var (
	// ErrStaticLayout is returned when a drag is attempted on a layout that
	// is not in interactive mode.
	ErrStaticLayout = errors.New("layout is static")

	// ErrNoNode is returned when a drag starts over empty space.
	ErrNoNode = errors.New("no node at point")
)

// dragState is the interaction controller: idle, or dragging one node.
type dragState struct {
	active bool
	node   Handle
}

// DragStart begins dragging the node under the surface point, hit-tested
// against the last projected frame. The node is pinned at the pointer's
// simulation position and the simulation is kept warm until DragEnd.
func (e *Engine) DragStart(surface lens.Point) (Handle, error) {
	h, ok := e.NodeAt(surface)
	if !ok {
		return Handle{}, ErrNoNode
	}
	return h, e.DragNode(h, surface)
}

// DragNode begins dragging a specific node.
func (e *Engine) DragNode(h Handle, surface lens.Point) error {
	if e.state == nil || !e.state.interactive {
		return ErrStaticLayout
	}
	if _, err := e.arena.get(h); err != nil {
		return err
	}
	if e.drag.active && e.drag.node != h {
		e.sim.Unpin(e.drag.node.Index)
	}

	p := e.focus.ToSimulation(surface)
	e.sim.SetAlphaTarget(e.cfg.DragAlphaTarget)
	e.sim.Pin(h.Index, p.X, p.Y)
	e.drag = dragState{active: true, node: h}
	e.logger.Log(context.Background(), logging.LevelTrace, "drag start", "node", e.arena.entries[h.Index].id, "x", p.X, "y", p.Y)
	return nil
}

// DragEnd releases the dragged node. It is a no-op when idle.
func (e *Engine) DragEnd() {
	if !e.drag.active {
		return
	}
	e.endDrag()
}

func (e *Engine) endDrag() {
	e.sim.Unpin(e.drag.node.Index)
	e.sim.SetAlphaTarget(0)
	e.drag = dragState{}
}

// Dragging returns the dragged node, if any.
func (e *Engine) Dragging() (Handle, bool) {
	return e.drag.node, e.drag.active
}

// NotifyPointerMove feeds a pointer position in surface coordinates. It
// moves the lens focus when the lens is on and the drag pin while dragging;
// otherwise it does nothing.
func (e *Engine) NotifyPointerMove(surface lens.Point) {
	if !e.lens.Enabled() && !e.drag.active {
		return
	}
	p := e.focus.Update(surface)
	if e.drag.active {
		e.sim.Pin(e.drag.node.Index, p.X, p.Y)
	}
}

// SetViewTransform installs a pan/zoom transform. Invalid transforms are
// ignored. The lens re-derives its inverse on the next pointer move.
func (e *Engine) SetViewTransform(t lens.ViewTransform) bool {
	if !t.Valid() {
		return false
	}
	e.focus.SetView(t)
	return true
}

// ViewTransform returns the current pan/zoom transform.
func (e *Engine) ViewTransform() lens.ViewTransform { return e.focus.View() }

// NodeAt hit-tests a surface point against the last projected frame.
func (e *Engine) NodeAt(surface lens.Point) (Handle, bool) {
	if e.last == nil || e.state == nil {
		return Handle{}, false
	}
	i, ok := e.last.hit(e.focus.ToSimulation(surface))
	if !ok {
		return Handle{}, false
	}
	h, ok := e.state.byID[e.last.Nodes[i].ID]
	return h, ok
}
