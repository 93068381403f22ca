package metadata

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bitfsorg/libdfs-go/keywrap"
)

// memBackend is an in-process database shared by every replica view created
// from it, which models several peers on one fully synchronized replica.
type memBackend struct {
	mu        sync.RWMutex
	manifests map[string]*Manifest
	docs      map[string]map[string][]byte
	closed    bool
}

var _ backend = (*memBackend)(nil)

// NewMemReplica creates an in-memory replica bound to id.
func NewMemReplica(id keywrap.Identity) *Replica {
	return newReplica(&memBackend{
		manifests: make(map[string]*Manifest),
		docs:      make(map[string]map[string][]byte),
	}, id)
}

func (b *memBackend) create(m *Manifest, genesis []Doc) error {
	if m == nil {
		return fmt.Errorf("%w: manifest", ErrNilParam)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	if _, ok := b.manifests[m.Address]; !ok {
		cp := *m
		b.manifests[m.Address] = &cp
		docs := make(map[string][]byte, len(genesis))
		for _, d := range genesis {
			docs[d.Key] = bytes.Clone(d.Value)
		}
		b.docs[m.Address] = docs
	}
	return nil
}

func (b *memBackend) manifest(address string) (*Manifest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStoreClosed
	}
	m, ok := b.manifests[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, address)
	}
	cp := *m
	return &cp, nil
}

func (b *memBackend) put(address, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.storeLocked(address)
	if err != nil {
		return err
	}
	docs[key] = bytes.Clone(value)
	return nil
}

func (b *memBackend) get(address, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	docs, err := b.storeLocked(address)
	if err != nil {
		return nil, err
	}
	v, ok := docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDocNotFound, key)
	}
	return bytes.Clone(v), nil
}

func (b *memBackend) all(address string) ([]Doc, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	docs, err := b.storeLocked(address)
	if err != nil {
		return nil, err
	}
	out := make([]Doc, 0, len(docs))
	for k, v := range docs {
		out = append(out, Doc{Key: k, Value: bytes.Clone(v)})
	}
	return out, nil
}

func (b *memBackend) del(address, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.storeLocked(address)
	if err != nil {
		return err
	}
	if _, ok := docs[key]; !ok {
		return fmt.Errorf("%w: %q", ErrDocNotFound, key)
	}
	delete(docs, key)
	return nil
}

func (b *memBackend) cas(address, key string, old, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.storeLocked(address)
	if err != nil {
		return err
	}
	cur, ok := docs[key]
	if !holds(cur, ok, old) {
		return fmt.Errorf("%w: %q", ErrConflict, key)
	}
	if value == nil {
		delete(docs, key)
	} else {
		docs[key] = bytes.Clone(value)
	}
	return nil
}

func (b *memBackend) drop(address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.storeLocked(address); err != nil {
		return err
	}
	delete(b.manifests, address)
	delete(b.docs, address)
	return nil
}

func (b *memBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// storeLocked returns the documents of address. Caller holds b.mu.
func (b *memBackend) storeLocked(address string) (map[string][]byte, error) {
	if b.closed {
		return nil, ErrStoreClosed
	}
	docs, ok := b.docs[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, address)
	}
	return docs, nil
}
