package visualization

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/lens"
)

func testFrame() layout.Frame {
	return layout.Frame{
		Seq:         7,
		Interactive: true,
		View:        lens.Centered(800, 600),
		Nodes: []layout.FrameNode{
			{ID: "a", X: -10, Y: 5.5, R: 4.5, Fill: "#1f77b4", Tooltip: "alpha <1>"},
			{ID: "b", X: 10, Y: -5.25, R: 6, Fill: "tomato"},
		},
		Edges: []layout.FrameEdge{
			{ID: "ab", Source: "a", Target: "b", X1: -10, Y1: 5.5, X2: 10, Y2: -5.25, Width: 1, Stroke: "#999999"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"svg", FormatSVG, false},
		{"DOT", FormatDOT, false},
		{"json", FormatJSON, false},
		{"png", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderSVG(t *testing.T) {
	svg := string(RenderSVG(testFrame(), 800, 600))

	for _, want := range []string{
		`<svg xmlns="http://www.w3.org/2000/svg" width="800" height="600"`,
		`<g transform="translate(400,300) scale(1)">`,
		`<line x1="-10" y1="5.5" x2="10" y2="-5.25" stroke="#999999" stroke-width="1" data-id="ab"/>`,
		`<circle cx="-10" cy="5.5" r="4.5" fill="#1f77b4" data-id="a"><title>alpha &lt;1&gt;</title></circle>`,
		`<circle cx="10" cy="-5.25" r="6" fill="tomato" data-id="b"/>`,
	} {
		if !strings.Contains(svg, want) {
			t.Errorf("SVG missing %q\n%s", want, svg)
		}
	}
	if strings.Index(svg, "<line") > strings.Index(svg, "<circle") {
		t.Error("edges should be drawn beneath nodes")
	}
}

func TestRenderSVG_Empty(t *testing.T) {
	svg := string(RenderSVG(layout.Frame{View: lens.Centered(100, 100)}, 100, 100))
	if strings.Contains(svg, "<circle") || strings.Contains(svg, "<line") {
		t.Errorf("empty frame should draw nothing:\n%s", svg)
	}
	if !strings.HasSuffix(svg, "</svg>\n") {
		t.Error("SVG not terminated")
	}
}

func TestRenderDOT(t *testing.T) {
	dot := RenderDOT(testFrame())

	if !strings.HasPrefix(dot, "graph livegraph {\n") {
		t.Errorf("DOT should start with graph header, got:\n%s", dot)
	}
	for _, want := range []string{
		`layout=neato;`,
		`"a" [pos="-10,-5.5!", width=0.125, fillcolor="#1f77b4", tooltip="alpha <1>"];`,
		`"b" [pos="10,5.25!", width=0.167, fillcolor="tomato"];`,
		`"a" -- "b" [penwidth=1, color="#999999"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("DOT should end with closing brace")
	}
}

func TestRenderJSON(t *testing.T) {
	data, err := RenderJSON(testFrame())
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}

	var got layout.Frame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Seq != 7 || len(got.Nodes) != 2 || len(got.Edges) != 1 {
		t.Errorf("decoded frame = %+v", got)
	}
	if got.Edges[0].Source != "a" || got.Edges[0].Target != "b" {
		t.Errorf("edge endpoints = %s -> %s", got.Edges[0].Source, got.Edges[0].Target)
	}
}

func TestRender_UnknownFormat(t *testing.T) {
	if _, err := Render(testFrame(), Format("gif"), 10, 10); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNum(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{-0.0001, "0"},
		{1.5, "1.5"},
		{-2.25, "-2.25"},
		{100, "100"},
		{1.23456, "1.235"},
	}
	for _, tt := range tests {
		if got := num(tt.in); got != tt.want {
			t.Errorf("num(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
