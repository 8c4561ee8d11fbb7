package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Stored data is copied in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	puts    int
}

type memoryEntry struct {
	data []byte
	meta Meta
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, Meta{}, ErrNotFound
	}
	if err := verify(e.data, e.meta); err != nil {
		return nil, Meta{}, fmt.Errorf("%s: %w", key, err)
	}
	return append([]byte(nil), e.data...), e.meta, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte, meta Meta) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.meta.Digest == meta.Digest {
		return false, nil
	}
	s.entries[key] = memoryEntry{data: append([]byte(nil), data...), meta: meta}
	s.puts++
	return true, nil
}

// Writes returns how many Puts actually wrote.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// Corrupt flips a byte of a stored blob.
func (s *MemoryStore) Corrupt(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && len(e.data) > 0 {
		e.data[0] ^= 0xff
	}
}
