package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/loop"
	"github.com/nvandessel/livegraph/internal/snapshot"
	"github.com/nvandessel/livegraph/internal/visualization"
)

// PanesURI is the resource listing the live panes.
const PanesURI = "livegraph://panes"

// registerTools registers all livegraph MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "livegraph_update",
		Description: "Send a full snapshot of the graph. Nodes already shown keep their positions; new nodes are placed and the layout is gently reheated. Removing nodes requires livegraph_reset first.",
	}, s.handleUpdate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "livegraph_reset",
		Description: "Discard a pane's layout so the next snapshot starts from scratch",
	}, s.handleReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "livegraph_frame",
		Description: "Describe the current frame of a pane, optionally rendered as JSON, SVG, or Graphviz DOT",
	}, s.handleFrame)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "livegraph_position",
		Description: "Get the current layout position of a node",
	}, s.handlePosition)
}

// registerResources registers MCP resources.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         PanesURI,
		Name:        "livegraph-panes",
		Description: "Panes with a live layout and their node counts.",
		MIMEType:    "application/json",
	}, s.handlePanesResource)
}

func (s *Server) handleUpdate(ctx context.Context, req *sdk.CallToolRequest, args UpdateInput) (_ *sdk.CallToolResult, _ UpdateOutput, retErr error) {
	start := time.Now()
	pane := paneOrDefault(args.Pane)
	defer func() {
		s.auditTool("livegraph_update", pane, start, retErr, sanitizeToolParams(map[string]any{
			"pane":     args.Pane,
			"snapshot": args.Snapshot,
		}))
	}()

	if err := s.limits.Check("livegraph_update", "mcp"); err != nil {
		return nil, UpdateOutput{}, err
	}

	data, err := json.Marshal(args.Snapshot)
	if err != nil {
		return nil, UpdateOutput{}, fmt.Errorf("encode snapshot: %w", err)
	}
	snap, err := snapshot.Parse(data)
	if err != nil {
		return nil, UpdateOutput{}, err
	}

	result, err := s.loop.Update(ctx, pane, snap)
	if err != nil {
		return nil, UpdateOutput{}, err
	}

	return nil, UpdateOutput{
		Pane:    pane,
		Kind:    result.Kind.String(),
		Added:   result.Added,
		Tracked: result.Tracked,
		Edges:   result.Edges,
		Settled: result.Settled,
		Message: updateMessage(result),
	}, nil
}

func updateMessage(r layout.MergeResult) string {
	switch r.Kind {
	case layout.MergeInit:
		return fmt.Sprintf("Laid out %d nodes and %d edges", r.Tracked, r.Edges)
	case layout.MergeGrow:
		return fmt.Sprintf("Added %d nodes (%d tracked)", r.Added, r.Tracked)
	default:
		return fmt.Sprintf("Refreshed %d nodes", r.Tracked)
	}
}

func (s *Server) handleReset(ctx context.Context, req *sdk.CallToolRequest, args ResetInput) (_ *sdk.CallToolResult, _ ResetOutput, retErr error) {
	start := time.Now()
	pane := paneOrDefault(args.Pane)
	defer func() {
		s.auditTool("livegraph_reset", pane, start, retErr, sanitizeToolParams(map[string]any{"pane": args.Pane}))
	}()

	if err := s.limits.Check("livegraph_reset", "mcp"); err != nil {
		return nil, ResetOutput{}, err
	}
	if err := s.loop.Reset(ctx, pane); err != nil {
		return nil, ResetOutput{}, err
	}
	return nil, ResetOutput{Pane: pane, Message: "Layout discarded; the next snapshot starts fresh"}, nil
}

func (s *Server) handleFrame(ctx context.Context, req *sdk.CallToolRequest, args FrameInput) (_ *sdk.CallToolResult, _ FrameOutput, retErr error) {
	start := time.Now()
	pane := paneOrDefault(args.Pane)
	defer func() {
		s.auditTool("livegraph_frame", pane, start, retErr, sanitizeToolParams(map[string]any{
			"pane":   args.Pane,
			"format": args.Format,
		}))
	}()

	if err := s.limits.Check("livegraph_frame", "mcp"); err != nil {
		return nil, FrameOutput{}, err
	}

	f, ok := s.loop.Frame(pane)
	if !ok {
		return nil, FrameOutput{}, fmt.Errorf("no frame for pane %q: send a snapshot first", pane)
	}

	out := FrameOutput{
		Pane:        pane,
		Seq:         f.Seq,
		Interactive: f.Interactive,
		Fisheye:     f.Fisheye,
		Alpha:       f.Alpha,
		NodeCount:   len(f.Nodes),
		EdgeCount:   len(f.Edges),
		Bounds:      bounds(f),
		Format:      "summary",
	}
	if args.Format == "" || args.Format == "summary" {
		return nil, out, nil
	}

	format, err := visualization.ParseFormat(args.Format)
	if err != nil {
		return nil, FrameOutput{}, err
	}
	data, err := visualization.Render(f, format, s.width, s.height)
	if err != nil {
		return nil, FrameOutput{}, fmt.Errorf("render frame: %w", err)
	}
	out.Format = string(format)
	out.Rendered = string(data)
	return nil, out, nil
}

func bounds(f layout.Frame) *Bounds {
	if f.Empty() {
		return nil
	}
	b := &Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, n := range f.Nodes {
		b.MinX = min(b.MinX, n.X)
		b.MinY = min(b.MinY, n.Y)
		b.MaxX = max(b.MaxX, n.X)
		b.MaxY = max(b.MaxY, n.Y)
	}
	return b
}

func (s *Server) handlePosition(ctx context.Context, req *sdk.CallToolRequest, args PositionInput) (_ *sdk.CallToolResult, _ PositionOutput, retErr error) {
	start := time.Now()
	pane := paneOrDefault(args.Pane)
	defer func() {
		s.auditTool("livegraph_position", pane, start, retErr, sanitizeToolParams(map[string]any{
			"pane": args.Pane,
			"id":   args.ID,
		}))
	}()

	if err := s.limits.Check("livegraph_position", "mcp"); err != nil {
		return nil, PositionOutput{}, err
	}
	if args.ID == "" {
		return nil, PositionOutput{}, fmt.Errorf("'id' parameter is required")
	}

	p, err := s.loop.Position(ctx, pane, args.ID)
	if err != nil {
		return nil, PositionOutput{}, err
	}
	return nil, PositionOutput{Pane: pane, ID: args.ID, Position: p}, nil
}

type paneSummary struct {
	Name        string `json:"name"`
	Nodes       int    `json:"nodes"`
	Edges       int    `json:"edges"`
	Interactive bool   `json:"interactive"`
}

// handlePanesResource lists the panes that have published frames.
func (s *Server) handlePanesResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	panes := make([]paneSummary, 0)
	for _, name := range s.loop.Panes() {
		f, ok := s.loop.Frame(name)
		if !ok {
			continue
		}
		panes = append(panes, paneSummary{
			Name:        name,
			Nodes:       len(f.Nodes),
			Edges:       len(f.Edges),
			Interactive: f.Interactive,
		})
	}

	data, err := json.Marshal(map[string]any{"panes": panes})
	if err != nil {
		return nil, fmt.Errorf("encode panes: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{
			URI:      PanesURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func paneOrDefault(p string) string {
	if p == "" {
		return loop.DefaultPane
	}
	return p
}
