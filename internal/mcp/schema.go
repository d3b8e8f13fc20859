package mcp

import "github.com/nvandessel/livegraph/internal/lens"

// UpdateInput defines the input for the livegraph_update tool.
type UpdateInput struct {
	Pane     string         `json:"pane,omitempty" jsonschema:"Pane to update (default: main)"`
	Snapshot map[string]any `json:"snapshot" jsonschema:"Full graph snapshot: {nodes: [{id, size, color, tooltip, ...}], edges: [{id, source_index, target_index, width, color}], interactive, fisheye}"`
}

// UpdateOutput defines the output for the livegraph_update tool.
type UpdateOutput struct {
	Pane    string `json:"pane" jsonschema:"Pane that was updated"`
	Kind    string `json:"kind" jsonschema:"How the snapshot was applied: init, refresh, or grow"`
	Added   int    `json:"added" jsonschema:"Number of nodes added by this snapshot"`
	Tracked int    `json:"tracked" jsonschema:"Number of nodes now tracked"`
	Edges   int    `json:"edges" jsonschema:"Number of edges in the layout"`
	Settled int    `json:"settled" jsonschema:"Ticks run synchronously to settle a static layout"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// ResetInput defines the input for the livegraph_reset tool.
type ResetInput struct {
	Pane string `json:"pane,omitempty" jsonschema:"Pane to reset (default: main)"`
}

// ResetOutput defines the output for the livegraph_reset tool.
type ResetOutput struct {
	Pane    string `json:"pane" jsonschema:"Pane that was reset"`
	Message string `json:"message" jsonschema:"Human-readable result message"`
}

// FrameInput defines the input for the livegraph_frame tool.
type FrameInput struct {
	Pane   string `json:"pane,omitempty" jsonschema:"Pane to read (default: main)"`
	Format string `json:"format,omitempty" jsonschema:"Output format: summary (default), json, svg, or dot"`
}

// FrameOutput defines the output for the livegraph_frame tool.
type FrameOutput struct {
	Pane        string  `json:"pane" jsonschema:"Pane the frame belongs to"`
	Seq         uint64  `json:"seq" jsonschema:"Simulation tick counter when the frame was projected"`
	Interactive bool    `json:"interactive" jsonschema:"Whether the layout runs continuously"`
	Fisheye     bool    `json:"fisheye" jsonschema:"Whether the fisheye lens is on"`
	Alpha       float64 `json:"alpha" jsonschema:"Remaining simulation energy"`
	NodeCount   int     `json:"node_count" jsonschema:"Number of nodes drawn"`
	EdgeCount   int     `json:"edge_count" jsonschema:"Number of edges drawn"`
	Bounds      *Bounds `json:"bounds,omitempty" jsonschema:"Bounding box of the drawn nodes in simulation space"`
	Format      string  `json:"format" jsonschema:"Format of the rendered field"`
	Rendered    string  `json:"rendered,omitempty" jsonschema:"Frame rendered in the requested format"`
}

// Bounds is an axis-aligned box.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// PositionInput defines the input for the livegraph_position tool.
type PositionInput struct {
	Pane string `json:"pane,omitempty" jsonschema:"Pane to query (default: main)"`
	ID   string `json:"id" jsonschema:"Node id"`
}

// PositionOutput defines the output for the livegraph_position tool.
type PositionOutput struct {
	Pane     string     `json:"pane" jsonschema:"Pane that was queried"`
	ID       string     `json:"id" jsonschema:"Node id"`
	Position lens.Point `json:"position" jsonschema:"Simulation-space position of the node"`
}
