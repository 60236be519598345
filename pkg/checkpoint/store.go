package checkpoint

import (
	"context"
	"sync"
)

// Store persists the checkpoint record.
type Store interface {
	// Load returns the current record, or Default if none was written yet.
	Load(ctx context.Context) (Record, error)
	// Update applies fn to the current record and persists the result
	// atomically. Nothing is written if fn or validation fails.
	Update(ctx context.Context, fn func(*Record) error) (Record, error)
}

// fails if MemoryStore does not implement Store
var _ Store = &MemoryStore{}

// MemoryStore keeps the record in memory only.
type MemoryStore struct {
	mu     sync.Mutex
	record Record
}

func NewMemoryStore(initial Record) *MemoryStore {
	if initial.FlashMode == "" {
		initial.FlashMode = FlashModeNormal
	}
	return &MemoryStore{record: initial}
}

func (m *MemoryStore) Load(_ context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record, nil
}

func (m *MemoryStore) Update(_ context.Context, fn func(*Record) error) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.record
	if err := fn(&next); err != nil {
		return m.record, err
	}
	if err := next.Validate(); err != nil {
		return m.record, err
	}
	m.record = next
	return next, nil
}
