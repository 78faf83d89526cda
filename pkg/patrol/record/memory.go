package record

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and examples.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string // local IDs in creation order
	times  map[string]*TimeRecord
	verifs map[string]*Verification
	closed bool
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		times:  make(map[string]*TimeRecord),
		verifs: make(map[string]*Verification),
	}
}

// SaveTimeRecord implements Store.
func (m *MemoryStore) SaveTimeRecord(_ context.Context, rec *TimeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy so later caller mutation cannot corrupt the stored row.
	stored := *rec
	m.times[rec.ID] = &stored
	m.order = append(m.order, rec.ID)
	return nil
}

// SaveVerification implements Store.
func (m *MemoryStore) SaveVerification(_ context.Context, v *Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	stored := *v
	m.verifs[v.ID] = &stored
	m.order = append(m.order, v.ID)
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.lookup(id)
}

// lookup returns a copy of the record with the given ID.
// Callers must hold at least the read lock.
func (m *MemoryStore) lookup(id string) (Record, error) {
	if rec, ok := m.times[id]; ok {
		out := *rec
		return &out, nil
	}
	if v, ok := m.verifs[id]; ok {
		out := *v
		return &out, nil
	}
	return nil, ErrNotFound
}

// ListUnsynced implements Store.
func (m *MemoryStore) ListUnsynced(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []Record
	for _, id := range m.order {
		if rec, ok := m.times[id]; ok && (rec.Status == StatusPending || rec.Status == StatusFailed) {
			cp := *rec
			out = append(out, &cp)
		}
		if v, ok := m.verifs[id]; ok && (v.Status == StatusPending || v.Status == StatusFailed) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

// status returns a pointer to the stored record's status field.
// Callers must hold the write lock.
func (m *MemoryStore) status(id string) (*SyncStatus, error) {
	if rec, ok := m.times[id]; ok {
		return &rec.Status, nil
	}
	if v, ok := m.verifs[id]; ok {
		return &v.Status, nil
	}
	return nil, ErrNotFound
}

// Transition implements Store.
func (m *MemoryStore) Transition(_ context.Context, id string, from, to SyncStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}
	if !validTransition(from, to) {
		return false, ErrInvalidTransition
	}

	st, err := m.status(id)
	if err != nil {
		return false, err
	}
	if *st != from {
		return false, nil
	}
	*st = to
	return true, nil
}

// MarkSynced implements Store.
func (m *MemoryStore) MarkSynced(_ context.Context, id, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if rec, ok := m.times[id]; ok {
		if rec.Status != StatusSyncing {
			return ErrInvalidTransition
		}
		rec.Status = StatusSynced
		rec.RemoteID = remoteID
		return nil
	}
	if v, ok := m.verifs[id]; ok {
		if v.Status != StatusSyncing {
			return ErrInvalidTransition
		}
		v.Status = StatusSynced
		v.RemoteID = remoteID
		return nil
	}
	return ErrNotFound
}

// RequeueFailed implements Store.
func (m *MemoryStore) RequeueFailed(_ context.Context) (int, error) {
	return m.sweep(StatusFailed, StatusPending)
}

// RecoverInFlight implements Store.
func (m *MemoryStore) RecoverInFlight(_ context.Context) (int, error) {
	return m.sweep(StatusSyncing, StatusPending)
}

// sweep moves every record in from to to, returning the number moved.
func (m *MemoryStore) sweep(from, to SyncStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	n := 0
	for _, rec := range m.times {
		if rec.Status == from {
			rec.Status = to
			n++
		}
	}
	for _, v := range m.verifs {
		if v.Status == from {
			v.Status = to
			n++
		}
	}
	return n, nil
}

// CountUnsynced implements Store.
func (m *MemoryStore) CountUnsynced(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	n := 0
	for _, rec := range m.times {
		if rec.Status == StatusPending || rec.Status == StatusFailed {
			n++
		}
	}
	for _, v := range m.verifs {
		if v.Status == StatusPending || v.Status == StatusFailed {
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
