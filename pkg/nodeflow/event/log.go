package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/eventlog"
)

// Log is the append-only event log of one session.
// It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	session string
	events  []Event
	store   eventlog.Store
}

// NewLog creates a log for a session. A nil store keeps events in memory only.
func NewLog(sessionID string, store eventlog.Store) *Log {
	return &Log{session: sessionID, store: store}
}

// SessionID returns the session the log belongs to.
func (l *Log) SessionID() string {
	return l.session
}

// Append records an event. The in-memory copy is kept even when persisting
// to the store fails.
func (l *Log) Append(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	if l.store == nil {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	if _, err := l.store.Append(eventlog.Record{
		SessionID: l.session,
		TreeID:    ev.Source.Tree,
		Kind:      ev.Kind.String(),
		Data:      data,
	}); err != nil {
		return fmt.Errorf("persist event %s: %w", ev.ID, err)
	}
	return nil
}

// Events returns a copy of the logged events in append order.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of logged events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Reset empties the log and deletes the session from the store.
func (l *Log) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = nil
	if l.store == nil {
		return nil
	}
	return l.store.DeleteSession(l.session)
}

// Decode restores an event from a stored record.
func Decode(rec eventlog.Record) (Event, error) {
	var ev Event
	if err := json.Unmarshal(rec.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event %d: %w", rec.Sequence, err)
	}
	return ev, nil
}

// Clear empties the in-memory log. The store keeps its records.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}
