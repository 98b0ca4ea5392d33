package session

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/soltixdb/ledgercast/internal/analytics"
	"github.com/soltixdb/ledgercast/internal/ledger"
)

// MemoryStore keeps sessions in process
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Save implements Store
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	cp := s.Clone()
	cp.ensureResultEntries()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cp
	return nil
}

// GetByID implements Store
func (m *MemoryStore) GetByID(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

// ListAll implements Store
func (m *MemoryStore) ListAll(_ context.Context) ([]*Session, error) {
	return m.list(func(*Session) bool { return true }), nil
}

// ListByDataSource implements Store
func (m *MemoryStore) ListByDataSource(_ context.Context, source ledger.DataSource) ([]*Session, error) {
	return m.list(func(s *Session) bool { return s.DataSource == source }), nil
}

func (m *MemoryStore) list(keep func(*Session) bool) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sortSessions(out)
	return out
}

// Delete implements Store
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// QueryResults implements Store
func (m *MemoryStore) QueryResults(_ context.Context, sessionID, scenarioID string, r analytics.DateRange) ([]ResultRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	rows := filterRows(s.ResultRows(), scenarioID, r)
	for i := range rows {
		rows[i].Metrics = maps.Clone(rows[i].Metrics)
	}
	return rows, nil
}

// Close implements Store
func (m *MemoryStore) Close() error { return nil }
