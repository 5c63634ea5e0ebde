// Package storage provides the offline snapshot cache: the last applied
// version and data of every record, persisted write-through so snapshots can
// be served while the connection is down.
package storage

import "sync"

// Store is the snapshot cache consumed by the record handler.
type Store interface {
	// Put upserts the latest applied snapshot of a record.
	Put(name string, version int64, data []byte) error
	// Get returns the cached snapshot, with ok=false when absent.
	Get(name string) (version int64, data []byte, ok bool, err error)
	// Delete removes a record's snapshot. Unknown names are a no-op.
	Delete(name string) error
	Close() error
}

// MemoryStore is an in-process Store for tests and short-lived clients.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	version int64
	data    []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Put(name string, version int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.entries[name] = memoryEntry{version: version, data: buf}
	return nil
}

func (m *MemoryStore) Get(name string) (int64, []byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[name]
	if !ok {
		return 0, nil, false, nil
	}
	buf := make([]byte, len(entry.data))
	copy(buf, entry.data)
	return entry.version, buf, true, nil
}

func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
