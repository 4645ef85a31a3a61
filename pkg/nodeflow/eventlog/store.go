// Package eventlog persists classified edit events for later replay and
// inspection.
package eventlog

import (
	"errors"
	"time"
)

// Store persists event records grouped by session.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores a record at the end of its session.
	// Sequence and Timestamp are assigned by the store; the stored copy is returned.
	Append(rec Record) (Record, error)

	// List returns all records of a session ordered by sequence.
	// Returns empty slice (not error) if the session has no records.
	List(sessionID string) ([]Record, error)

	// Sessions returns the known session IDs, oldest first.
	Sessions() ([]string, error)

	// DeleteSession removes all records of a session.
	// Returns nil if the session has no records.
	DeleteSession(sessionID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is one stored event.
type Record struct {
	SessionID string
	Sequence  int64
	TreeID    string
	Kind      string
	Timestamp time.Time
	Data      []byte
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("event store closed")
