package eventlog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists records to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) an event log database.
// The path should be a file path (e.g., "./events.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// :memory: databases are per-connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			tree_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (session_id, sequence)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Record{}, ErrStoreClosed
	}

	rec.Timestamp = time.Now().UTC()
	if rec.Data == nil {
		rec.Data = []byte{}
	}

	err := s.db.QueryRow(`
		INSERT INTO events (session_id, sequence, tree_id, kind, timestamp, data)
		VALUES (
			?,
			COALESCE((SELECT MAX(sequence) FROM events WHERE session_id = ?), 0) + 1,
			?, ?, ?, ?
		)
		RETURNING sequence
	`, rec.SessionID, rec.SessionID, rec.TreeID, rec.Kind,
		rec.Timestamp.Format(time.RFC3339Nano), rec.Data).Scan(&rec.Sequence)
	if err != nil {
		return Record{}, fmt.Errorf("append event: %w", err)
	}
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(sessionID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT sequence, tree_id, kind, timestamp, data
		FROM events
		WHERE session_id = ?
		ORDER BY sequence
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		rec := Record{SessionID: sessionID}
		var timestamp string
		if err := rows.Scan(&rec.Sequence, &rec.TreeID, &rec.Kind, &timestamp, &rec.Data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return recs, nil
}

// Sessions implements Store.
func (s *SQLiteStore) Sessions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT session_id FROM events
		GROUP BY session_id
		ORDER BY MIN(rowid)
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return ids, nil
}

// DeleteSession implements Store.
func (s *SQLiteStore) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
