package layout

import (
	"errors"

	"github.com/nvandessel/livegraph/internal/force"
)

// ErrStaleHandle is returned when a handle from an earlier session (before a
// reset) or outside the arena is used.
var ErrStaleHandle = errors.New("stale node handle")

// Handle refers to a tracked node. Index is the node's slot in the arena
// and in the simulation; Gen is the session the handle was issued in.
type Handle struct {
	Index int
	Gen   uint32
}

// entry is the per-node record kept alongside the simulation body.
type entry struct {
	id      string
	body    *force.Node
	size    float64
	color   string
	tooltip string
	attrs   map[string]any
}

// arena owns the node entries of one session. Slots are only ever appended;
// reset bumps the generation so earlier handles stop resolving.
type arena struct {
	gen     uint32
	entries []*entry
}

func (a *arena) alloc(e *entry) Handle {
	h := Handle{Index: len(a.entries), Gen: a.gen}
	a.entries = append(a.entries, e)
	return h
}

func (a *arena) get(h Handle) (*entry, error) {
	if h.Gen != a.gen || h.Index < 0 || h.Index >= len(a.entries) {
		return nil, ErrStaleHandle
	}
	return a.entries[h.Index], nil
}

func (a *arena) handle(i int) Handle { return Handle{Index: i, Gen: a.gen} }

func (a *arena) len() int { return len(a.entries) }

func (a *arena) reset() {
	a.gen++
	a.entries = nil
}
