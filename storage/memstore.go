package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

var (
	_ Store            = (*MemStore)(nil)
	_ GarbageCollector = (*MemStore)(nil)
)

// MemStore is an in-memory Store. Removed blobs stay readable until GC, the
// way an unpinned block lingers in a node's repo until it is collected.
type MemStore struct {
	mu       sync.RWMutex
	blobs    map[Handle][]byte
	released map[Handle]struct{}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blobs:    make(map[Handle][]byte),
		released: make(map[Handle]struct{}),
	}
}

// Add stores a copy of data.
func (m *MemStore) Add(ctx context.Context, data []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	h := HandleOf(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[h]; !ok {
		m.blobs[h] = bytes.Clone(data)
	}
	delete(m.released, h)
	return h, nil
}

// Cat returns a copy of the bytes stored under h.
func (m *MemStore) Cat(ctx context.Context, h Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[h]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

// Has reports whether h is held, released or not.
func (m *MemStore) Has(ctx context.Context, h Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := h.Validate(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[h]
	return ok, nil
}

// Remove marks h for collection.
func (m *MemStore) Remove(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[h]; !ok {
		return ErrNotFound
	}
	m.released[h] = struct{}{}
	return nil
}

// List returns the handles of all blobs not yet released, sorted.
func (m *MemStore) List(ctx context.Context) ([]Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Handle, 0, len(m.blobs))
	for h := range m.blobs {
		if _, gone := m.released[h]; !gone {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// GC drops every released blob.
func (m *MemStore) GC(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for h := range m.released {
		delete(m.blobs, h)
		n++
	}
	m.released = make(map[Handle]struct{})
	return n, nil
}

// Len returns the number of blobs held, including released ones.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
