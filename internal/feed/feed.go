// Package feed pushes a snapshot file into the frame loop every time the
// file changes on disk.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/logging"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Sink receives decoded snapshots. *loop.Loop satisfies it.
type Sink interface {
	Update(ctx context.Context, pane string, snap *snapshot.Snapshot) (layout.MergeResult, error)
}

// Options configures a Watcher.
type Options struct {
	// Path is the snapshot file. JSON, or YAML for .yaml/.yml files.
	Path string

	// Pane receives the snapshots. Empty means the loop's default pane.
	Pane string

	// Debounce is the quiet period after the last change before the file
	// is read. Zero means DefaultDebounce.
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher reloads a snapshot file into a Sink.
type Watcher struct {
	sink     Sink
	path     string
	pane     string
	debounce time.Duration
	logger   *slog.Logger

	// applied is signalled after each load attempt; tests use it.
	applied func(layout.MergeResult, error)
}

// New creates a watcher. The file need not exist yet.
func New(sink Sink, opts Options) (*Watcher, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("feed: no snapshot file given")
	}
	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("feed: resolve %s: %w", opts.Path, err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		sink:     sink,
		path:     path,
		pane:     opts.Pane,
		debounce: opts.Debounce,
		logger:   logging.OrDiscard(opts.Logger).With("feed", path),
	}, nil
}

// Run loads the file once, then reloads it after every change until ctx
// is cancelled. A file that fails to decode is logged and skipped; the
// next write gets another chance.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("feed: create watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory: editors replace files by rename, which drops a
	// watch on the file itself.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("feed: watch %s: %w", filepath.Dir(w.path), err)
	}

	if _, err := os.Stat(w.path); err == nil {
		w.reload(ctx)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	result, err := w.load(ctx)
	switch {
	case err != nil:
		w.logger.Warn("snapshot file not applied", "error", err)
	default:
		w.logger.Info("snapshot file applied", "kind", result.Kind, "tracked", result.Tracked, "added", result.Added)
	}
	if w.applied != nil {
		w.applied(result, err)
	}
}

func (w *Watcher) load(ctx context.Context) (layout.MergeResult, error) {
	snap, err := Load(w.path)
	if err != nil {
		return layout.MergeResult{}, err
	}
	return w.sink.Update(ctx, w.pane, snap)
}

// Load reads and validates a snapshot file.
func Load(path string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, err
		}
	}
	return snapshot.Parse(data)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON re-encodes a YAML document so the snapshot parser sees the same
// shape a JSON file would give it.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &snapshot.ValidationError{Issue: "yaml: " + err.Error()}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, &snapshot.ValidationError{Issue: "yaml: " + err.Error()}
	}
	return out, nil
}
