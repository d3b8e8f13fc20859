package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

type update struct {
	pane string
	ids  []string
}

type fakeSink struct {
	mu      sync.Mutex
	updates []update
	err     error
}

func (f *fakeSink) Update(ctx context.Context, pane string, snap *snapshot.Snapshot) (layout.MergeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return layout.MergeResult{}, f.err
	}
	u := update{pane: pane}
	for _, n := range snap.Nodes {
		u.ids = append(u.ids, n.ID)
	}
	f.updates = append(f.updates, u)
	return layout.MergeResult{Tracked: len(snap.Nodes)}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// startWatcher runs w and returns a channel of load outcomes.
func startWatcher(t *testing.T, w *Watcher) <-chan error {
	t.Helper()
	results := make(chan error, 16)
	w.applied = func(_ layout.MergeResult, err error) { results <- err }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return results
}

func waitResult(t *testing.T, results <-chan error) error {
	t.Helper()
	select {
	case err := <-results:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a reload")
		return nil
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(&fakeSink{}, Options{}); err == nil {
		t.Fatal("expected an error without a path")
	}
}

func TestWatcher_LoadsExistingAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	writeFile(t, path, `{"nodes":[{"id":"a"},{"id":"b"}],"edges":[{"source_index":0,"target_index":1}]}`)

	sink := &fakeSink{}
	w, err := New(sink, Options{Path: path, Pane: "side", Debounce: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results := startWatcher(t, w)

	if err := waitResult(t, results); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	writeFile(t, path, `{"nodes":[{"id":"a"},{"id":"b"},{"id":"c"}]}`)
	if err := waitResult(t, results); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(sink.updates))
	}
	last := sink.updates[1]
	if last.pane != "side" || strings.Join(last.ids, ",") != "a,b,c" {
		t.Errorf("unexpected update: %+v", last)
	}
}

func TestWatcher_SkipsMalformedWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")

	sink := &fakeSink{}
	w, err := New(sink, Options{Path: path, Debounce: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results := startWatcher(t, w)

	// The file does not exist yet, so nothing loads until it is created.
	writeFile(t, path, `{"nodes": [`)
	if err := waitResult(t, results); !errors.Is(err, snapshot.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}

	writeFile(t, path, `{"nodes":[{"id":"x"}]}`)
	if err := waitResult(t, results); err != nil {
		t.Fatalf("valid write failed: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.updates) != 1 {
		t.Errorf("got %d updates, want 1", len(sink.updates))
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")

	sink := &fakeSink{}
	w, err := New(sink, Options{Path: path, Debounce: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results := startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "other.json"), `{"nodes":[{"id":"x"}]}`)
	select {
	case err := <-results:
		t.Fatalf("unexpected reload: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_ReportsSinkErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	writeFile(t, path, `{"nodes":[{"id":"x"}]}`)

	sink := &fakeSink{err: layout.ErrUnsupportedTransition}
	w, err := New(sink, Options{Path: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results := startWatcher(t, w)

	if err := waitResult(t, results); !errors.Is(err, layout.ErrUnsupportedTransition) {
		t.Fatalf("err = %v, want ErrUnsupportedTransition", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantIDs string
		wantErr bool
	}{
		{
			name:    "json",
			file:    "g.json",
			content: `{"nodes":[{"id":"a"},{"id":2}],"interactive":1}`,
			wantIDs: "a,2",
		},
		{
			name:    "yaml",
			file:    "g.yaml",
			content: "nodes:\n  - id: a\n  - id: b\n    color: red\nedges:\n  - source_index: 0\n    target_index: 1\n",
			wantIDs: "a,b",
		},
		{
			name:    "yml extension",
			file:    "g.YML",
			content: "nodes:\n  - id: only\n",
			wantIDs: "only",
		},
		{
			name:    "invalid yaml",
			file:    "bad.yaml",
			content: "nodes: [\n",
			wantErr: true,
		},
		{
			name:    "missing nodes",
			file:    "empty.json",
			content: `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)

			snap, err := Load(path)
			if tt.wantErr {
				if !errors.Is(err, snapshot.ErrMalformed) {
					t.Fatalf("err = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			var ids []string
			for _, n := range snap.Nodes {
				ids = append(ids, n.ID)
			}
			if got := strings.Join(ids, ","); got != tt.wantIDs {
				t.Errorf("ids = %s, want %s", got, tt.wantIDs)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
