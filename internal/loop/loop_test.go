package loop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/snapshot"
	"github.com/nvandessel/livegraph/internal/store"
)

func chain(interactive bool, ids ...string) *snapshot.Snapshot {
	s := &snapshot.Snapshot{Interactive: interactive}
	for _, id := range ids {
		s.Nodes = append(s.Nodes, snapshot.Node{ID: id})
	}
	for i := 1; i < len(ids); i++ {
		s.Edges = append(s.Edges, snapshot.Edge{ID: ids[i-1] + ids[i], Source: i - 1, Target: i})
	}
	return s
}

// startLoop runs a fast loop until the test ends.
func startLoop(t *testing.T, opts Options) *Loop {
	t.Helper()
	if opts.Interval == 0 {
		opts.Interval = time.Millisecond
	}
	opts.Engine = layout.DefaultConfig()
	opts.Engine.Force.Seed = 3
	l := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// nextFrame waits for a published frame matching ok.
func nextFrame(t *testing.T, s *Subscription, ok func(Published) bool) Published {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, open := <-s.C():
			if !open {
				t.Fatal("subscription closed")
			}
			if ok(p) {
				return p
			}
		case <-timeout:
			t.Fatal("timed out waiting for frame")
		}
	}
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				switch {
				case m.Counter != nil:
					return m.GetCounter().GetValue()
				case m.Gauge != nil:
					return m.GetGauge().GetValue()
				case m.Histogram != nil:
					return float64(m.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestUpdatePublishesFrames(t *testing.T) {
	l := startLoop(t, Options{})
	ctx := testContext(t)

	sub := l.Subscribe(DefaultPane)
	defer sub.Close()

	res, err := l.Update(ctx, "", chain(true, "a", "b", "c"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Kind != layout.MergeInit || res.Tracked != 3 {
		t.Errorf("result = %+v, want init with 3 tracked", res)
	}

	p := nextFrame(t, sub, func(p Published) bool { return len(p.Frame.Nodes) == 3 })
	if p.Pane != DefaultPane {
		t.Errorf("pane = %q, want %q", p.Pane, DefaultPane)
	}
	if len(p.Frame.Edges) != 2 {
		t.Errorf("edges = %d, want 2", len(p.Frame.Edges))
	}

	f, ok := l.Frame("")
	if !ok || len(f.Nodes) != 3 {
		t.Errorf("Frame() = %v nodes, ok=%v", len(f.Nodes), ok)
	}
}

func TestRejectedUpdateKeepsLayout(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := startLoop(t, Options{Metrics: NewMetrics(reg)})
	ctx := testContext(t)

	if _, err := l.Update(ctx, "", chain(true, "a", "b", "c")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	tests := []struct {
		name   string
		snap   *snapshot.Snapshot
		target error
		reason string
	}{
		{"shrink", chain(true, "a", "b"), layout.ErrUnsupportedTransition, "unsupported_transition"},
		{"malformed", &snapshot.Snapshot{Nodes: []snapshot.Node{{ID: "a"}, {ID: "a"}}}, snapshot.ErrMalformed, "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Update(ctx, "", tt.snap)
			if !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
			if got := metricValue(t, reg, "livegraph_layout_rejected_total", map[string]string{"reason": tt.reason}); got != 1 {
				t.Errorf("rejected{reason=%s} = %v, want 1", tt.reason, got)
			}
		})
	}

	// The layout is still live and still tracks three nodes.
	if _, err := l.Position(ctx, "", "c"); err != nil {
		t.Errorf("Position(c) after rejections: %v", err)
	}
	if got := metricValue(t, reg, "livegraph_layout_merges_total", map[string]string{"kind": "init"}); got != 1 {
		t.Errorf("merges{kind=init} = %v, want 1", got)
	}
	if got := metricValue(t, reg, "livegraph_layout_tracked_nodes", nil); got != 3 {
		t.Errorf("tracked = %v, want 3", got)
	}
}

func TestPanesAreIndependent(t *testing.T) {
	l := startLoop(t, Options{})
	ctx := testContext(t)

	if _, err := l.Update(ctx, "left", chain(true, "a", "b", "c")); err != nil {
		t.Fatalf("Update left: %v", err)
	}
	// A smaller graph on another pane is an init there, not a shrink.
	res, err := l.Update(ctx, "right", chain(true, "x", "y"))
	if err != nil {
		t.Fatalf("Update right: %v", err)
	}
	if res.Kind != layout.MergeInit {
		t.Errorf("right kind = %v, want init", res.Kind)
	}
	if _, err := l.Position(ctx, "right", "a"); !errors.Is(err, layout.ErrUnknownNode) {
		t.Errorf("Position(right, a) err = %v, want ErrUnknownNode", err)
	}

	sub := l.Subscribe("")
	defer sub.Close()
	seen := map[string]bool{}
	nextFrame(t, sub, func(p Published) bool {
		seen[p.Pane] = true
		return seen["left"] && seen["right"]
	})
	if got := l.Panes(); len(got) != 2 || got[0] != "left" || got[1] != "right" {
		t.Errorf("Panes() = %v", got)
	}
}

func TestResetAcceptsUnrelatedGraph(t *testing.T) {
	l := startLoop(t, Options{})
	ctx := testContext(t)

	if _, err := l.Update(ctx, "", chain(true, "a", "b", "c")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := l.Reset(ctx, ""); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	res, err := l.Update(ctx, "", chain(true, "x"))
	if err != nil {
		t.Fatalf("Update after reset: %v", err)
	}
	if res.Kind != layout.MergeInit || res.Tracked != 1 {
		t.Errorf("result = %+v, want init with 1 tracked", res)
	}
}

func TestStaticLayoutStopsPublishing(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := startLoop(t, Options{Metrics: NewMetrics(reg)})
	ctx := testContext(t)

	sub := l.Subscribe("")
	if _, err := l.Update(ctx, "", chain(false, "a", "b", "c")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Wait for the post-merge frame.
	nextFrame(t, sub, func(Published) bool { return true })
	sub.Close()
	time.Sleep(20 * time.Millisecond)

	labels := map[string]string{"pane": DefaultPane}
	before := metricValue(t, reg, "livegraph_loop_frames_total", labels)
	time.Sleep(30 * time.Millisecond)
	if after := metricValue(t, reg, "livegraph_loop_frames_total", labels); after != before {
		t.Errorf("frozen layout published %v more frames", after-before)
	}
}

func TestDragThroughLoop(t *testing.T) {
	l := startLoop(t, Options{})
	ctx := testContext(t)

	sub := l.Subscribe("")
	defer sub.Close()

	// A lone node is held at the origin by the centering force, so its
	// surface position is stable across frames.
	if _, err := l.Update(ctx, "", chain(true, "a")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	p := nextFrame(t, sub, func(p Published) bool {
		return len(p.Frame.Nodes) == 1 && p.Frame.Nodes[0].X == 0 && p.Frame.Nodes[0].Y == 0
	})

	surface := p.Frame.View.Apply(lens.Point{})
	id, err := l.DragStart(ctx, "", surface)
	if err != nil {
		t.Fatalf("DragStart: %v", err)
	}
	if id != "a" {
		t.Errorf("dragged %q, want a", id)
	}

	moved := lens.Point{X: surface.X + 40, Y: surface.Y - 25}
	if err := l.PointerMove(ctx, "", moved); err != nil {
		t.Fatalf("PointerMove: %v", err)
	}
	want := p.Frame.View.Invert(moved)
	nextFrame(t, sub, func(p Published) bool {
		n := p.Frame.Nodes[0]
		return n.Pinned && n.X == want.X && n.Y == want.Y
	})

	if err := l.DragEnd(ctx, ""); err != nil {
		t.Fatalf("DragEnd: %v", err)
	}
	// Once released, the centering force pulls the node back.
	nextFrame(t, sub, func(p Published) bool {
		n := p.Frame.Nodes[0]
		return !n.Pinned && (n.X != want.X || n.Y != want.Y)
	})
}

func TestDragOnEmptySpace(t *testing.T) {
	l := startLoop(t, Options{})
	ctx := testContext(t)

	if _, err := l.Update(ctx, "", chain(true, "a")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, err := l.DragStart(ctx, "", lens.Point{X: -5000, Y: -5000})
	if !errors.Is(err, layout.ErrNoNode) {
		t.Errorf("err = %v, want ErrNoNode", err)
	}
}

func TestSetViewRejectsInvalid(t *testing.T) {
	l := startLoop(t, Options{})
	ctx := testContext(t)

	if _, err := l.Update(ctx, "", chain(true, "a")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := l.SetView(ctx, "", lens.ViewTransform{K: 0}); err == nil {
		t.Error("expected error for zero scale")
	}
	if err := l.SetView(ctx, "", lens.ViewTransform{K: 2, X: 10, Y: 10}); err != nil {
		t.Errorf("SetView: %v", err)
	}
}

func TestOnlyUpdateCreatesPanes(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := startLoop(t, Options{Metrics: NewMetrics(reg)})
	ctx := testContext(t)

	for i := range 50 {
		name := fmt.Sprintf("ghost-%d", i)
		if err := l.PointerMove(ctx, name, lens.Point{X: 10, Y: 10}); err != nil {
			t.Fatalf("PointerMove(%s): %v", name, err)
		}
		if err := l.DragEnd(ctx, name); err != nil {
			t.Fatalf("DragEnd(%s): %v", name, err)
		}
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"drag start", func() error {
			_, err := l.DragStart(ctx, "ghost", lens.Point{})
			return err
		}},
		{"set view", func() error { return l.SetView(ctx, "ghost", lens.ViewTransform{K: 1}) }},
		{"position", func() error {
			_, err := l.Position(ctx, "ghost", "a")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrUnknownPane) {
				t.Errorf("err = %v, want ErrUnknownPane", err)
			}
		})
	}

	if err := l.Reset(ctx, "ghost"); err != nil {
		t.Errorf("Reset on unknown pane: %v", err)
	}

	// A first snapshot that is rejected leaves no pane behind.
	bad := &snapshot.Snapshot{Nodes: []snapshot.Node{{ID: "a"}, {ID: "a"}}}
	if _, err := l.Update(ctx, "rejected", bad); !errors.Is(err, snapshot.ErrMalformed) {
		t.Fatalf("Update err = %v, want ErrMalformed", err)
	}
	if _, err := l.Position(ctx, "rejected", "a"); !errors.Is(err, ErrUnknownPane) {
		t.Errorf("Position after rejected init err = %v, want ErrUnknownPane", err)
	}

	// Let several frames pass; nothing should have been published.
	time.Sleep(20 * time.Millisecond)
	if got := l.Panes(); len(got) != 0 {
		t.Errorf("Panes() = %v, want none", got)
	}

	// An accepted snapshot creates the pane, and a later rejection keeps it.
	if _, err := l.Update(ctx, "real", chain(true, "a", "b")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := l.Update(ctx, "real", chain(true, "a")); !errors.Is(err, layout.ErrUnsupportedTransition) {
		t.Fatalf("shrink err = %v, want ErrUnsupportedTransition", err)
	}
	if _, err := l.Position(ctx, "real", "b"); err != nil {
		t.Errorf("Position(real, b): %v", err)
	}
}

func TestRecordsAcceptedSnapshots(t *testing.T) {
	rec, err := store.NewRecorder(filepath.Join(t.TempDir(), "recordings.db"))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer rec.Close()

	l := startLoop(t, Options{Recorder: rec, Label: "test"})
	ctx := testContext(t)

	for _, snap := range []*snapshot.Snapshot{
		chain(true, "a", "b"),
		chain(true, "a"), // rejected, not recorded
		chain(true, "a", "b", "c"),
	} {
		_, _ = l.Update(ctx, "", snap)
	}
	if err := l.Reset(ctx, ""); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := l.Update(ctx, "", chain(true, "z")); err != nil {
		t.Fatalf("Update: %v", err)
	}

	sessions, err := rec.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2 (reset starts a new one)", len(sessions))
	}
	counts := map[int]bool{}
	for _, s := range sessions {
		counts[s.Snapshots] = true
		if s.Pane != DefaultPane || s.Label != "test" {
			t.Errorf("session = %+v", s)
		}
	}
	if !counts[2] || !counts[1] {
		t.Errorf("session snapshot counts = %v, want 2 and 1", counts)
	}
}

func TestStoppedLoop(t *testing.T) {
	l := New(Options{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := l.Update(context.Background(), "", chain(true, "a")); !errors.Is(err, ErrStopped) {
		t.Errorf("Update err = %v, want ErrStopped", err)
	}
	sub := l.Subscribe("")
	if _, open := <-sub.C(); open {
		t.Error("subscription on a stopped loop should be closed")
	}
	sub.Close()
}

func TestUpdateHonoursCallerContext(t *testing.T) {
	// No Run: the message is never handled.
	l := New(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := l.Update(ctx, "", chain(true, "a")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}
