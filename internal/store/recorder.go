package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/livegraph/internal/snapshot"
)

var (
	// ErrSessionNotFound is returned when no session matches an id or prefix.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAmbiguousSession is returned when an id prefix matches several sessions.
	ErrAmbiguousSession = errors.New("ambiguous session prefix")
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Session describes one recorded stream of snapshots.
type Session struct {
	ID        string    `json:"id"`
	Pane      string    `json:"pane"`
	Label     string    `json:"label,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Snapshots int       `json:"snapshots"`
}

// Record is one stored snapshot.
type Record struct {
	Seq        int64              `json:"seq"`
	ReceivedAt time.Time          `json:"received_at"`
	Snapshot   *snapshot.Snapshot `json:"snapshot"`
}

// Recorder journals snapshots into a SQLite database.
// It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewRecorder opens (creating if needed) the recorder database at path.
func NewRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recorder directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Recorder{db: db, path: path}, nil
}

// Path returns the database file path.
func (r *Recorder) Path() string { return r.path }

// StartSession creates a new session and returns it.
func (r *Recorder) StartSession(ctx context.Context, pane, label string) (Session, error) {
	s := Session{
		ID:        uuid.NewString(),
		Pane:      pane,
		Label:     label,
		StartedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, pane, label, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Pane, nullString(s.Label), s.StartedAt.Format(timeFormat))
	if err != nil {
		return Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// Append stores snap as the next snapshot of a session and returns its
// sequence number, starting at 1.
func (r *Recorder) Append(ctx context.Context, sessionID string, snap *snapshot.Snapshot) (int64, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("failed to look up session: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, seq, received_at, node_count, edge_count, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, seq, time.Now().UTC().Format(timeFormat),
		len(snap.Nodes), len(snap.Edges), string(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return seq, nil
}

// ListSessions returns every session, newest first, with snapshot counts.
func (r *Recorder) ListSessions(ctx context.Context) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.pane, s.label, s.started_at, COUNT(n.seq)
		FROM sessions s
		LEFT JOIN snapshots n ON n.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ResolveSession expands an id or unique id prefix to a full session id.
func (r *Recorder) ResolveSession(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrSessionNotFound)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`,
		prefix, escapeLike(prefix)+"%")
	if err != nil {
		return "", fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan session id: %w", err)
		}
		if id == prefix {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousSession, prefix)
	}
}

// GetSession returns a single session by full id.
func (r *Recorder) GetSession(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.pane, s.label, s.started_at, COUNT(n.seq)
		FROM sessions s
		LEFT JOIN snapshots n ON n.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSession returns a session's snapshots in sequence order.
func (r *Recorder) LoadSession(ctx context.Context, id string) ([]Record, error) {
	if _, err := r.GetSession(ctx, id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, received_at, payload FROM snapshots WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			received string
			payload  string
		)
		if err := rows.Scan(&rec.Seq, &received, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		rec.ReceivedAt, _ = time.Parse(timeFormat, received)
		rec.Snapshot, err = snapshot.Parse([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("snapshot %d of session %s: %w", rec.Seq, id, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteSession removes a session and its snapshots.
func (r *Recorder) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s       Session
		label   sql.NullString
		started string
	)
	if err := row.Scan(&s.ID, &s.Pane, &label, &started, &s.Snapshots); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("failed to scan session: %w", err)
	}
	s.Label = label.String
	s.StartedAt, _ = time.Parse(timeFormat, started)
	return s, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// escapeLike escapes LIKE wildcards in a user-supplied prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
