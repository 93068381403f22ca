// Package identity provides the caller identities of the filesystem: key
// pairs, keystores, HD derivation from a mnemonic, and resolution of
// human-readable names to identities.
package identity

import (
	"fmt"
	"sort"
	"sync"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libdfs-go/keywrap"
)

// Principal is an acting caller: its public identity and the private key that
// opens envelopes addressed to it.
type Principal struct {
	ID  keywrap.Identity
	Key *ec.PrivateKey
}

// NewPrincipal wraps priv.
func NewPrincipal(priv *ec.PrivateKey) (*Principal, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	return &Principal{ID: keywrap.IdentityOf(priv.PubKey()), Key: priv}, nil
}

// GeneratePrincipal creates a principal with a fresh random key.
func GeneratePrincipal() (*Principal, error) {
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return NewPrincipal(priv)
}

// Keystore returns the private key of an identity.
type Keystore interface {
	GetKey(id keywrap.Identity) (*ec.PrivateKey, error)
}

// PrincipalFor loads the principal for id from ks.
func PrincipalFor(ks Keystore, id keywrap.Identity) (*Principal, error) {
	priv, err := ks.GetKey(id)
	if err != nil {
		return nil, err
	}
	p, err := NewPrincipal(priv)
	if err != nil {
		return nil, err
	}
	if p.ID != id {
		return nil, fmt.Errorf("%w: keystore returned a key for %s", ErrKeyNotFound, p.ID.Short())
	}
	return p, nil
}

// MemKeystore is an in-memory Keystore.
type MemKeystore struct {
	mu   sync.RWMutex
	keys map[keywrap.Identity]*ec.PrivateKey
}

var _ Keystore = (*MemKeystore)(nil)

// NewMemKeystore creates an empty in-memory keystore.
func NewMemKeystore() *MemKeystore {
	return &MemKeystore{keys: make(map[keywrap.Identity]*ec.PrivateKey)}
}

// Add stores priv and returns its identity.
func (ks *MemKeystore) Add(priv *ec.PrivateKey) (keywrap.Identity, error) {
	if priv == nil {
		return "", ErrNilKey
	}
	id := keywrap.IdentityOf(priv.PubKey())
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[id] = priv
	return id, nil
}

// GetKey returns the key for id.
func (ks *MemKeystore) GetKey(id keywrap.Identity) (*ec.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	priv, ok := ks.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id.Short())
	}
	return priv, nil
}

// List returns the stored identities, sorted.
func (ks *MemKeystore) List() []keywrap.Identity {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]keywrap.Identity, 0, len(ks.keys))
	for id := range ks.keys {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
