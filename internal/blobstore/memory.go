package blobstore

import (
	"context"
	"sync"
)

// Memory is a map-backed store for dev and testing.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Get returns the blob for key, or nil when absent.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := make([]byte, len(value))
	copy(b, value)
	m.blobs[key] = b
	return nil
}

// Delete removes key if present.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}
