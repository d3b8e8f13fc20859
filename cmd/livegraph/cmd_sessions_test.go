package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/livegraph/internal/snapshot"
	"github.com/nvandessel/livegraph/internal/store"
)

func chain(ids ...string) *snapshot.Snapshot {
	s := &snapshot.Snapshot{}
	for _, id := range ids {
		s.Nodes = append(s.Nodes, snapshot.Node{ID: id})
	}
	for i := 1; i < len(ids); i++ {
		s.Edges = append(s.Edges, snapshot.Edge{Source: i - 1, Target: i})
	}
	return s
}

// recordSession writes a session of snaps to a fresh database.
func recordSession(t *testing.T, snaps ...*snapshot.Snapshot) (dbPath, id string) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "recordings.db")
	rec, err := store.NewRecorder(dbPath)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer rec.Close()

	ctx := context.Background()
	s, err := rec.StartSession(ctx, "main", "test")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	for _, snap := range snaps {
		if _, err := rec.Append(ctx, s.ID, snap); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return dbPath, s.ID
}

func TestSessionsListAndDelete(t *testing.T) {
	isolateHome(t)
	db, id := recordSession(t, chain("a", "b"), chain("a", "b", "c"))

	out, err := run(t, "sessions", "list", "--db", db)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "test") {
		t.Errorf("list missing the session:\n%s", out)
	}

	out, err = run(t, "sessions", "list", "--db", db, "--json")
	if err != nil {
		t.Fatalf("sessions list --json failed: %v", err)
	}
	var listed struct {
		Sessions []store.Session `json:"sessions"`
		Count    int             `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if listed.Count != 1 || listed.Sessions[0].Snapshots != 2 {
		t.Errorf("unexpected listing: %+v", listed)
	}

	out, err = run(t, "sessions", "delete", id[:8], "--db", db)
	if err != nil {
		t.Fatalf("sessions delete failed: %v", err)
	}
	if !strings.Contains(out, "Deleted session "+id) {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = run(t, "sessions", "list", "--db", db)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	if !strings.Contains(out, "No recorded sessions.") {
		t.Errorf("session still listed:\n%s", out)
	}

	if _, err := run(t, "sessions", "delete", id, "--db", db); err == nil {
		t.Error("deleting a missing session should fail")
	}
}

func TestReplay(t *testing.T) {
	isolateHome(t)
	// The shrink is rejected and reported; the layout keeps three nodes.
	db, id := recordSession(t, chain("a", "b"), chain("a", "b", "c"), chain("a", "b", "c"), chain("a"))

	out, err := run(t, "replay", id[:8], "--db", db)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	for _, want := range []string{"4 snapshots", "init", "grow", "refresh", "rejected", "Final layout: 3 nodes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "replay", id, "--db", db, "--json")
	if err != nil {
		t.Fatalf("replay --json failed: %v", err)
	}
	var got struct {
		Session string       `json:"session"`
		Steps   []replayStep `json:"steps"`
		Tracked int          `json:"tracked"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Session != id || len(got.Steps) != 4 || got.Tracked != 3 {
		t.Errorf("unexpected replay: %+v", got)
	}
	if got.Steps[3].Error == "" {
		t.Error("shrinking snapshot was not reported as rejected")
	}

	out, err = run(t, "replay", id, "--db", db, "--format", "dot")
	if err != nil {
		t.Fatalf("replay --format failed: %v", err)
	}
	if !strings.Contains(out, `"c"`) {
		t.Errorf("final frame missing node c:\n%s", out)
	}
}

func TestReplay_UnknownSession(t *testing.T) {
	isolateHome(t)
	db, _ := recordSession(t, chain("a"))
	if _, err := run(t, "replay", "ffffffff", "--db", db); err == nil {
		t.Error("expected an error for an unknown session")
	}
}
