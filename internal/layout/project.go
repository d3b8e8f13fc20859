package layout

import (
	"maps"

	"github.com/nvandessel/livegraph/internal/lens"
)

// Frame is the renderable output of one projection. Coordinates are in
// simulation space with the lens already applied; View maps them onto the
// surface.
type Frame struct {
	Seq         uint64             `json:"seq"`
	Interactive bool               `json:"interactive"`
	Fisheye     bool               `json:"fisheye"`
	Alpha       float64            `json:"alpha"`
	View        lens.ViewTransform `json:"view"`
	Nodes       []FrameNode        `json:"nodes"`
	Edges       []FrameEdge        `json:"edges"`
}

// FrameNode is a circle to draw.
type FrameNode struct {
	ID      string         `json:"id"`
	X       float64        `json:"x"`
	Y       float64        `json:"y"`
	R       float64        `json:"r"`
	Fill    string         `json:"fill"`
	Tooltip string         `json:"tooltip,omitempty"`
	Pinned  bool           `json:"pinned,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// FrameEdge is a line to draw.
type FrameEdge struct {
	ID     string  `json:"id,omitempty"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Width  float64 `json:"width"`
	Stroke string  `json:"stroke"`
}

// Empty reports whether the frame has nothing to draw.
func (f *Frame) Empty() bool { return len(f.Nodes) == 0 }

// projection carries everything Project reads. It is assembled by the
// engine so Project itself never touches mutable state.
type projection struct {
	entries []*entry
	state   *State
	lens    lens.Lens
	focus   lens.Point
	view    lens.ViewTransform
	seq     uint64
	alpha   float64
	cfg     Config
}

// project builds a frame. It is a pure function of its input: projecting
// the same state twice yields identical frames.
func project(p projection) Frame {
	f := Frame{
		Seq:   p.seq,
		Alpha: p.alpha,
		View:  p.view,
		Nodes: make([]FrameNode, 0, len(p.entries)),
	}
	if p.state == nil {
		f.Edges = []FrameEdge{}
		return f
	}
	f.Interactive = p.state.interactive
	f.Fisheye = p.state.fisheye

	drawn := make([]lens.Point, len(p.entries))
	for i, ent := range p.entries {
		pos, scale := p.lens.Apply(lens.Point{X: ent.body.X, Y: ent.body.Y}, p.focus)
		drawn[i] = pos

		radius := ent.size
		if radius == 0 {
			radius = p.cfg.DefaultNodeRadius
		}
		fill := ent.color
		if fill == "" {
			fill = p.cfg.DefaultNodeColor
		}
		f.Nodes = append(f.Nodes, FrameNode{
			ID:      ent.id,
			X:       pos.X,
			Y:       pos.Y,
			R:       radius * scale,
			Fill:    fill,
			Tooltip: ent.tooltip,
			Pinned:  ent.body.Pinned,
			Attrs:   maps.Clone(ent.attrs),
		})
	}

	f.Edges = make([]FrameEdge, 0, len(p.state.edges))
	for _, e := range p.state.edges {
		a, b := drawn[e.source.Index], drawn[e.target.Index]
		width := e.width
		if width == 0 {
			width = p.cfg.DefaultEdgeWidth
		}
		stroke := e.color
		if stroke == "" {
			stroke = p.cfg.DefaultEdgeColor
		}
		f.Edges = append(f.Edges, FrameEdge{
			ID:     e.id,
			Source: p.entries[e.source.Index].id,
			Target: p.entries[e.target.Index].id,
			X1:     a.X,
			Y1:     a.Y,
			X2:     b.X,
			Y2:     b.Y,
			Width:  width,
			Stroke: stroke,
		})
	}
	return f
}

// hit returns the topmost node whose drawn circle contains p (simulation
// space). Later nodes are drawn on top, so the search runs backwards.
func (f *Frame) hit(p lens.Point) (int, bool) {
	for i := len(f.Nodes) - 1; i >= 0; i-- {
		n := f.Nodes[i]
		dx, dy := p.X-n.X, p.Y-n.Y
		if dx*dx+dy*dy <= n.R*n.R {
			return i, true
		}
	}
	return 0, false
}
