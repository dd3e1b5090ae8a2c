// Package session persists task sessions and their message history in
// SQLite. History is append-only; sessions move from running to a terminal
// status exactly once.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Session is one task run's persistent record.
type Session struct {
	ID        string    `json:"id"`
	Profile   string    `json:"profile"`
	Purpose   string    `json:"purpose"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one history entry within a session.
type Message struct {
	SessionID  string    `json:"session_id"`
	Seq        int       `json:"seq"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a SQLite-backed session store.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the session database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open db: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: wal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			profile    TEXT NOT NULL,
			purpose    TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			session_id   TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_name    TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create records a new running session.
func (s *Store) Create(ctx context.Context, id, profile, purpose string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, profile, purpose, status, created_at, updated_at)
		 VALUES(?, ?, ?, 'running', ?, ?)`,
		id, profile, purpose, now, now)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// AppendMessage adds the next history entry for a session. Sequence numbers
// are assigned here, under the store lock.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE session_id = ?`,
		m.SessionID).Scan(&next); err != nil {
		return fmt.Errorf("session: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages(session_id, seq, role, content, tool_call_id, tool_name, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, next, m.Role, m.Content, m.ToolCallID, m.ToolName, time.Now().Unix()); err != nil {
		return fmt.Errorf("session: append: %w", err)
	}
	return tx.Commit()
}

// Complete moves a session to its terminal status.
func (s *Store) Complete(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status = 'running'`,
		status, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("session: complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session: %s is not running", id)
	}
	return nil
}

// Get returns one session and its full history.
func (s *Store) Get(ctx context.Context, id string) (*Session, []Message, error) {
	var sess Session
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, profile, purpose, status, created_at, updated_at FROM sessions WHERE id = ?`,
		id).Scan(&sess.ID, &sess.Profile, &sess.Purpose, &sess.Status, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("session: %s not found", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("session: get: %w", err)
	}
	sess.CreatedAt = time.Unix(created, 0)
	sess.UpdatedAt = time.Unix(updated, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, role, content, tool_call_id, tool_name, created_at
		 FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("session: messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		if err := rows.Scan(&m.SessionID, &m.Seq, &m.Role, &m.Content, &m.ToolCallID, &m.ToolName, &ts); err != nil {
			return nil, nil, err
		}
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	return &sess, msgs, rows.Err()
}

// List returns the most recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile, purpose, status, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		var sess Session
		var created, updated int64
		if err := rows.Scan(&sess.ID, &sess.Profile, &sess.Purpose, &sess.Status, &created, &updated); err != nil {
			return nil, err
		}
		sess.CreatedAt = time.Unix(created, 0)
		sess.UpdatedAt = time.Unix(updated, 0)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
