// Package logging provides leveled logging and merge tracing for livegraph.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A MergeLogger for a structured JSONL journal of reconciliation
//     decisions (~/.livegraph/merges.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every frame
// tick and pointer event is logged.
const LevelTrace = slog.LevelDebug - 4

// MergeJournal is the file name of the merge journal inside its directory.
const MergeJournal = "merges.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "warn", "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OrDiscard returns l, or a logger that drops everything when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MergeLogger appends one JSON line per reconciliation decision.
// It is safe for concurrent use. A nil MergeLogger is valid and drops
// every event.
type MergeLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewMergeLogger opens dir/merges.jsonl for append.
// At "info" level and above it returns nil and creates nothing; the journal
// is only kept at "debug" or "trace". A file that cannot be opened also
// yields nil.
func NewMergeLogger(dir string, level string) *MergeLogger {
	if ParseLevel(level) >= slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, MergeJournal), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &MergeLogger{file: f}
}

// Log writes an event as a single JSONL line with a "time" field added.
// The caller's map is not mutated.
func (ml *MergeLogger) Log(event map[string]any) {
	if ml == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.file == nil {
		return
	}
	_, _ = ml.file.Write(data)
}

// Close closes the journal. Safe to call on nil receiver.
func (ml *MergeLogger) Close() {
	if ml == nil {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.file != nil {
		ml.file.Close()
		ml.file = nil
	}
}
