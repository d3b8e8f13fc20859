// Package visualization renders layout frames and serves them to a browser.
package visualization

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/nvandessel/livegraph/internal/layout"
)

// Format specifies the output format for frame rendering.
type Format string

const (
	FormatSVG  Format = "svg"
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatSVG, FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: svg, dot, json)", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatJSON:
		return "application/json"
	default:
		return "text/vnd.graphviz; charset=utf-8"
	}
}

// Render renders f in the given format on a width x height surface.
func Render(f layout.Frame, format Format, width, height int) ([]byte, error) {
	switch format {
	case FormatSVG:
		return RenderSVG(f, width, height), nil
	case FormatDOT:
		return []byte(RenderDOT(f)), nil
	case FormatJSON:
		return RenderJSON(f)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// RenderSVG draws the frame as a standalone SVG document. The frame's view
// transform is applied as a group transform, so the picture matches what
// the browser shows.
func RenderSVG(f layout.Frame, width, height int) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		width, height, width, height)
	v := f.View
	fmt.Fprintf(&b, `  <g transform="translate(%s,%s) scale(%s)">`+"\n", num(v.X), num(v.Y), num(v.K))

	b.WriteString(`    <g class="edges">` + "\n")
	for _, e := range f.Edges {
		fmt.Fprintf(&b, `      <line x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s"`,
			num(e.X1), num(e.Y1), num(e.X2), num(e.Y2), attr(e.Stroke), num(e.Width))
		if e.ID != "" {
			fmt.Fprintf(&b, ` data-id="%s"`, attr(e.ID))
		}
		b.WriteString("/>\n")
	}
	b.WriteString("    </g>\n")

	b.WriteString(`    <g class="nodes">` + "\n")
	for _, n := range f.Nodes {
		fmt.Fprintf(&b, `      <circle cx="%s" cy="%s" r="%s" fill="%s" data-id="%s"`,
			num(n.X), num(n.Y), num(n.R), attr(n.Fill), attr(n.ID))
		if n.Tooltip == "" {
			b.WriteString("/>\n")
			continue
		}
		fmt.Fprintf(&b, "><title>%s</title></circle>\n", attr(n.Tooltip))
	}
	b.WriteString("    </g>\n")

	b.WriteString("  </g>\n</svg>\n")
	return b.Bytes()
}

// RenderDOT produces a Graphviz graph with every node pinned at its frame
// position, for `neato -n`. Graphviz's y axis points up, so y is flipped.
func RenderDOT(f layout.Frame) string {
	var b strings.Builder
	b.WriteString("graph livegraph {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  node [shape=circle, style=filled, label=\"\", fixedsize=true];\n\n")

	for _, n := range f.Nodes {
		// Graphviz sizes are in inches at 72 points each.
		fmt.Fprintf(&b, "  %q [pos=\"%s,%s!\", width=%s, fillcolor=%q",
			n.ID, num(n.X), num(-n.Y), num(2*n.R/72), n.Fill)
		if n.Tooltip != "" {
			fmt.Fprintf(&b, ", tooltip=%q", n.Tooltip)
		}
		b.WriteString("];\n")
	}
	if len(f.Edges) > 0 {
		b.WriteString("\n")
	}
	for _, e := range f.Edges {
		fmt.Fprintf(&b, "  %q -- %q [penwidth=%s, color=%q];\n", e.Source, e.Target, num(e.Width), e.Stroke)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces the indented JSON encoding of the frame.
func RenderJSON(f layout.Frame) ([]byte, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return append(data, '\n'), nil
}

// num formats a coordinate compactly.
func num(v float64) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func attr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
