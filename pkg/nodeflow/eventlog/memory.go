package eventlog

import (
	"sync"
	"time"
)

// MemoryStore keeps records in process memory.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Record
	order    []string
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Record)}
}

// Append implements Store.
func (m *MemoryStore) Append(rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Record{}, ErrStoreClosed
	}

	recs, ok := m.sessions[rec.SessionID]
	if !ok {
		m.order = append(m.order, rec.SessionID)
	}

	rec.Sequence = int64(len(recs)) + 1
	rec.Timestamp = time.Now().UTC()
	// Copy data to avoid retaining caller's slice
	rec.Data = append([]byte(nil), rec.Data...)

	m.sessions[rec.SessionID] = append(recs, rec)
	return rec, nil
}

// List implements Store.
func (m *MemoryStore) List(sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	recs := m.sessions[sessionID]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

// Sessions implements Store.
func (m *MemoryStore) Sessions() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	return append([]string(nil), m.order...), nil
}

// DeleteSession implements Store.
func (m *MemoryStore) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if _, ok := m.sessions[sessionID]; !ok {
		return nil
	}
	delete(m.sessions, sessionID)
	for i, id := range m.order {
		if id == sessionID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.sessions = nil
	m.order = nil
	return nil
}
