package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

var urlPattern = regexp.MustCompile(`livegraph running at (http://\S+)`)

func TestServeCmd_WatchesFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte(triangle), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out lockedBuffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"serve", "--addr", "localhost:0", "--no-open", "--watch", path})

	done := make(chan error, 1)
	go func() { done <- rootCmd.ExecuteContext(ctx) }()

	var base string
	deadline := time.Now().Add(5 * time.Second)
	for base == "" && time.Now().Before(deadline) {
		if m := urlPattern.FindStringSubmatch(out.String()); m != nil {
			base = m[1]
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if base == "" {
		cancel()
		t.Fatalf("server did not report its URL; output: %q", out.String())
	}

	// The watched file is loaded into the default pane.
	var body string
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "api/frame.dot")
		if err == nil {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				body = string(data)
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(body, `"a" -- "b"`) {
		t.Errorf("frame not served from the watched file: %q", body)
	}

	resp, err := http.Get(base + "metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(metrics), "livegraph_layout_tracked_nodes") {
		t.Error("metrics missing livegraph_layout_tracked_nodes")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v after cancellation", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
