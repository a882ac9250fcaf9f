package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory MetadataStore for tests and single-node runs
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	closed  bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (m *MemoryStore) Put(ctx context.Context, record *Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrStoreClosed
	}
	if record.EventID == "" {
		return "", ErrMissingEventID
	}
	normalize(record)
	m.records[record.EventID] = clone(record)
	return record.EventID, nil
}

func (m *MemoryStore) PutBatch(ctx context.Context, records []*Record) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if record.EventID == "" {
			continue
		}
		normalize(record)
		m.records[record.EventID] = clone(record)
		ids = append(ids, record.EventID)
	}
	return ids, nil
}

func (m *MemoryStore) Get(ctx context.Context, eventID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	record, exists := m.records[eventID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	return clone(record), nil
}

func (m *MemoryStore) Update(ctx context.Context, eventID string, partial map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrStoreClosed
	}
	if len(partial) == 0 {
		return false, nil
	}
	existing, exists := m.records[eventID]
	if !exists {
		return false, nil
	}
	updated := clone(existing)
	applyPartial(updated, partial)
	normalize(updated)
	m.records[eventID] = updated
	return true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrStoreClosed
	}
	if _, exists := m.records[eventID]; !exists {
		return false, nil
	}
	delete(m.records, eventID)
	return true, nil
}

func (m *MemoryStore) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	matched := make([]*Record, 0)
	for _, record := range m.records {
		if filter.matches(record) {
			matched = append(matched, clone(record))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].EventID < matched[j].EventID
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
	return nil
}
