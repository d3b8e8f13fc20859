// Package snapshot defines the graph snapshot a driving process sends on every
// update cycle, along with its wire decoding and validation rules.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
)

// ErrMalformed marks a snapshot that cannot be merged: a required field is
// missing, a value is out of range, or an edge points outside the node list.
var ErrMalformed = errors.New("malformed snapshot")

// NoIndex marks an edge endpoint that was absent from the wire payload.
const NoIndex = -1

// Snapshot is one full description of the current nodes and edges.
// A Snapshot is treated as immutable once handed to the layout engine.
type Snapshot struct {
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
	Interactive bool   `json:"interactive"`
	Fisheye     bool   `json:"fisheye"`
}

// Node is a single entity in a snapshot. Size and Color fall back to the
// configured defaults when zero.
type Node struct {
	ID      string
	Size    float64
	Color   string
	Tooltip string

	// Attrs holds every field the driving process sent beyond the known ones.
	Attrs map[string]any
}

// Edge connects two nodes by their index in the same snapshot's node list.
type Edge struct {
	ID     string
	Source int
	Target int
	Width  float64
	Color  string
}

// ValidationError describes why a snapshot was rejected.
type ValidationError struct {
	Path  string `json:"path"`  // e.g. "nodes[3].id"
	Issue string `json:"issue"` // e.g. "missing", "duplicate", "out of range"
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrMalformed, e.Issue)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformed, e.Path, e.Issue)
}

// Unwrap lets callers match with errors.Is(err, ErrMalformed).
func (e *ValidationError) Unwrap() error { return ErrMalformed }

// Parse decodes and validates a JSON snapshot.
func Parse(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, &ValidationError{Issue: err.Error()}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Decode reads a single JSON snapshot from r.
func Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Parse(data)
}

// Validate checks the structural rules the layout engine relies on.
func (s *Snapshot) Validate() error {
	seen := make(map[string]int, len(s.Nodes))
	for i, n := range s.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			return &ValidationError{Path: path + ".id", Issue: "missing"}
		}
		if prev, dup := seen[n.ID]; dup {
			return &ValidationError{Path: path + ".id", Issue: fmt.Sprintf("duplicate of nodes[%d] (%q)", prev, n.ID)}
		}
		seen[n.ID] = i
		if !validMagnitude(n.Size) {
			return &ValidationError{Path: path + ".size", Issue: fmt.Sprintf("invalid value %v", n.Size)}
		}
		if !ValidColor(n.Color) {
			return &ValidationError{Path: path + ".color", Issue: fmt.Sprintf("unrecognized color %q", n.Color)}
		}
	}

	for i, e := range s.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if err := checkEndpoint(path+".source_index", e.Source, len(s.Nodes)); err != nil {
			return err
		}
		if err := checkEndpoint(path+".target_index", e.Target, len(s.Nodes)); err != nil {
			return err
		}
		if !validMagnitude(e.Width) {
			return &ValidationError{Path: path + ".width", Issue: fmt.Sprintf("invalid value %v", e.Width)}
		}
		if !ValidColor(e.Color) {
			return &ValidationError{Path: path + ".color", Issue: fmt.Sprintf("unrecognized color %q", e.Color)}
		}
	}
	return nil
}

// IDs returns the node identifiers in snapshot order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

func checkEndpoint(path string, idx, n int) error {
	if idx == NoIndex {
		return &ValidationError{Path: path, Issue: "missing"}
	}
	if idx < 0 || idx >= n {
		return &ValidationError{Path: path, Issue: fmt.Sprintf("index %d out of range [0,%d)", idx, n)}
	}
	return nil
}

func validMagnitude(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

var (
	hexColor   = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	namedColor = regexp.MustCompile(`^[a-zA-Z]+$`)
	funcColor  = regexp.MustCompile(`^(rgb|rgba|hsl|hsla)\([0-9.,%\s]+\)$`)
)

// ValidColor reports whether c is empty (use the default) or a CSS color the
// browser surface understands: hex, a named color, or rgb()/hsl() notation.
func ValidColor(c string) bool {
	return c == "" || hexColor.MatchString(c) || namedColor.MatchString(c) || funcColor.MatchString(c)
}

// flag accepts JSON booleans as well as the 0/1 integers older drivers send.
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return &ValidationError{Path: "flag", Issue: fmt.Sprintf("expected boolean or 0/1, got %s", data)}
	}
	return nil
}

// UnmarshalJSON requires the nodes key and accepts 0/1 mode flags.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var wire struct {
		Nodes       *[]Node `json:"nodes"`
		Edges       []Edge  `json:"edges"`
		Interactive flag    `json:"interactive"`
		Fisheye     flag    `json:"fisheye"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Nodes == nil {
		return &ValidationError{Path: "nodes", Issue: "missing"}
	}
	s.Nodes = *wire.Nodes
	s.Edges = wire.Edges
	s.Interactive = bool(wire.Interactive)
	s.Fisheye = bool(wire.Fisheye)
	return nil
}

var knownNodeKeys = map[string]bool{"id": true, "size": true, "color": true, "tooltip": true}

// UnmarshalJSON splits the known node fields from the free-form attribute payload.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*n = Node{}
	if v, ok := raw["id"]; ok {
		id, err := decodeID(v)
		if err != nil {
			return &ValidationError{Path: "node.id", Issue: err.Error()}
		}
		n.ID = id
	}
	if v, ok := raw["size"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &n.Size); err != nil {
			return &ValidationError{Path: "node.size", Issue: err.Error()}
		}
	}
	if v, ok := raw["color"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &n.Color); err != nil {
			return &ValidationError{Path: "node.color", Issue: err.Error()}
		}
	}
	if v, ok := raw["tooltip"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &n.Tooltip); err != nil {
			return &ValidationError{Path: "node.tooltip", Issue: err.Error()}
		}
	}

	for k, v := range raw {
		if knownNodeKeys[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return &ValidationError{Path: "node." + k, Issue: err.Error()}
		}
		if n.Attrs == nil {
			n.Attrs = make(map[string]any)
		}
		n.Attrs[k] = val
	}
	return nil
}

// MarshalJSON flattens Attrs back alongside the known fields.
func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Attrs)+4)
	for k, v := range n.Attrs {
		out[k] = v
	}
	out["id"] = n.ID
	if n.Size != 0 {
		out["size"] = n.Size
	}
	if n.Color != "" {
		out["color"] = n.Color
	}
	if n.Tooltip != "" {
		out["tooltip"] = n.Tooltip
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts source/target as aliases of source_index/target_index.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID          json.RawMessage `json:"id"`
		SourceIndex *int            `json:"source_index"`
		TargetIndex *int            `json:"target_index"`
		Source      *int            `json:"source"`
		Target      *int            `json:"target"`
		Width       float64         `json:"width"`
		Color       string          `json:"color"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*e = Edge{Source: NoIndex, Target: NoIndex, Width: wire.Width, Color: wire.Color}
	if len(wire.ID) > 0 && string(wire.ID) != "null" {
		id, err := decodeID(wire.ID)
		if err != nil {
			return &ValidationError{Path: "edge.id", Issue: err.Error()}
		}
		e.ID = id
	}
	switch {
	case wire.SourceIndex != nil:
		e.Source = *wire.SourceIndex
	case wire.Source != nil:
		e.Source = *wire.Source
	}
	switch {
	case wire.TargetIndex != nil:
		e.Target = *wire.TargetIndex
	case wire.Target != nil:
		e.Target = *wire.Target
	}
	return nil
}

// MarshalJSON always writes the canonical *_index keys.
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string  `json:"id,omitempty"`
		SourceIndex int     `json:"source_index"`
		TargetIndex int     `json:"target_index"`
		Width       float64 `json:"width,omitempty"`
		Color       string  `json:"color,omitempty"`
	}{e.ID, e.Source, e.Target, e.Width, e.Color})
}

// decodeID normalizes string and numeric identifiers to a string.
func decodeID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	if i, err := num.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	// 1.0 and 1e3 name the same node as 1 and 1000.
	if f, err := num.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return num.String(), nil
}
