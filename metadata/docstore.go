// Package metadata implements the replicated metadata layer: document stores
// at stable addresses, each guarded by an immutable write-access controller.
//
// A Replica is one peer's view of the replicated database. Stores are created
// under a fresh address, opened by address, or opened by a well-known name.
// Writes are checked against the store's access controller for the identity
// the replica is bound to.
package metadata

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bitfsorg/libdfs-go/keywrap"
)

// AddressPrefix starts every store address.
const AddressPrefix = "/dfs/"

// Doc is one keyed document in a store.
type Doc struct {
	Key   string
	Value []byte
}

// Manifest is the persisted description of a store.
type Manifest struct {
	Address string
	Name    string
	Writers []keywrap.Identity
	Created time.Time
}

// DocStore is a keyed document store at a stable address. Concurrent writers
// converge to last-write-wins per key.
type DocStore interface {
	// Address returns the store's address.
	Address() string

	// AccessController returns the store's write-access set.
	AccessController() *AccessController

	// Load brings the local view of the store up to date.
	Load(ctx context.Context) error

	// Put writes doc under key. Fails with ErrWriteDenied when the bound
	// identity may not write.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the document under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Query returns the documents accepted by pred, ordered by key.
	Query(ctx context.Context, pred func(Doc) bool) ([]Doc, error)

	// All returns every document, ordered by key.
	All(ctx context.Context) ([]Doc, error)

	// Del removes the document under key.
	Del(ctx context.Context, key string) error

	// CompareAndSwap replaces the document under key with value only if it
	// currently holds old. A nil old requires the key to be absent and a nil
	// value deletes it. Fails with ErrConflict when the current document
	// differs.
	CompareAndSwap(ctx context.Context, key string, old, value []byte) error

	// Drop deletes the whole store. Its address stops resolving.
	Drop(ctx context.Context) error
}

// backend is the shared database a Replica reads and writes. Every peer
// attached to the same backend observes the same stores.
type backend interface {
	create(m *Manifest, genesis []Doc) error
	manifest(address string) (*Manifest, error)
	put(address, key string, value []byte) error
	get(address, key string) ([]byte, error)
	all(address string) ([]Doc, error)
	del(address, key string) error
	cas(address, key string, old, value []byte) error
	drop(address string) error
	close() error
}

// Replica opens document stores on behalf of one identity.
type Replica struct {
	db     backend
	id     keywrap.Identity
	logger zerolog.Logger
}

func newReplica(db backend, id keywrap.Identity) *Replica {
	return &Replica{db: db, id: id, logger: zerolog.Nop()}
}

// SetLogger replaces the replica's logger.
func (r *Replica) SetLogger(l zerolog.Logger) { r.logger = l }

// Identity returns the identity writes are authorized as.
func (r *Replica) Identity() keywrap.Identity { return r.id }

// As returns a view of the same database bound to another identity.
func (r *Replica) As(id keywrap.Identity) *Replica {
	return &Replica{db: r.db, id: id, logger: r.logger}
}

// Close releases the underlying database. Views created with As share it.
func (r *Replica) Close() error { return r.db.close() }

// Create creates a store named name under a new address. Two calls with the
// same arguments never return the same address. The genesis documents are
// written together with the store and are not checked against ac, so a
// creator may seed a store it cannot write to afterwards.
func (r *Replica) Create(ctx context.Context, name string, ac *AccessController, genesis ...Doc) (DocStore, error) {
	if ac == nil {
		return nil, fmt.Errorf("%w: access controller", ErrNilParam)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := storeAddress(name, ac, uuid.NewString())
	return r.createAt(addr, name, ac, genesis)
}

// OpenNamed returns the well-known store for name, creating it on first use.
// Its address depends only on name and the access controller.
func (r *Replica) OpenNamed(ctx context.Context, name string, ac *AccessController) (DocStore, error) {
	if ac == nil {
		return nil, fmt.Errorf("%w: access controller", ErrNilParam)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr := storeAddress(name, ac, "")
	m, err := r.db.manifest(addr)
	if err == nil {
		return r.bind(m), nil
	}
	if !errors.Is(err, ErrStoreNotFound) {
		return nil, err
	}
	return r.createAt(addr, name, ac, nil)
}

// Open attaches to the store at address.
func (r *Replica) Open(ctx context.Context, address string) (DocStore, error) {
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := r.db.manifest(address)
	if err != nil {
		return nil, err
	}
	return r.bind(m), nil
}

func (r *Replica) createAt(addr, name string, ac *AccessController, genesis []Doc) (DocStore, error) {
	m := &Manifest{
		Address: addr,
		Name:    name,
		Writers: ac.Writers(),
		Created: time.Now().UTC(),
	}
	if err := r.db.create(m, genesis); err != nil {
		return nil, err
	}
	r.logger.Debug().Str("address", addr).Str("name", name).Int("writers", len(m.Writers)).Msg("store created")
	return r.bind(m), nil
}

func (r *Replica) bind(m *Manifest) *docStore {
	return &docStore{
		replica: r,
		address: m.Address,
		ac:      NewAccessController(m.Writers...),
	}
}

// storeAddress derives /dfs/<hex sha256(name|manifest|nonce)>.
func storeAddress(name string, ac *AccessController, nonce string) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{'|'})
	h.Write([]byte(ac.Manifest()))
	if nonce != "" {
		h.Write([]byte{'|'})
		h.Write([]byte(nonce))
	}
	return AddressPrefix + hex.EncodeToString(h.Sum(nil))
}

// ValidateAddress checks that address has the form /dfs/<64 hex>.
func ValidateAddress(address string) error {
	rest, ok := strings.CutPrefix(address, AddressPrefix)
	if !ok || len(rest) != sha256.Size*2 {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if _, err := hex.DecodeString(rest); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// docStore is a DocStore bound to a replica's identity.
type docStore struct {
	replica *Replica
	address string
	ac      *AccessController
}

var _ DocStore = (*docStore)(nil)

func (s *docStore) Address() string                     { return s.address }
func (s *docStore) AccessController() *AccessController { return s.ac }

func (s *docStore) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.replica.db.manifest(s.address)
	return err
}

func (s *docStore) authorize() error {
	if !s.ac.CanWrite(s.replica.id) {
		return fmt.Errorf("%w: %s on %s", ErrWriteDenied, s.replica.id.Short(), s.address)
	}
	return nil
}

func (s *docStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.authorize(); err != nil {
		return err
	}
	return s.replica.db.put(s.address, key, value)
}

func (s *docStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.replica.db.get(s.address, key)
}

func (s *docStore) Query(ctx context.Context, pred func(Doc) bool) ([]Doc, error) {
	docs, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if pred == nil || pred(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *docStore) All(ctx context.Context) ([]Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := s.replica.db.all(s.address)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

func (s *docStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.authorize(); err != nil {
		return err
	}
	return s.replica.db.del(s.address, key)
}

func (s *docStore) CompareAndSwap(ctx context.Context, key string, old, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.authorize(); err != nil {
		return err
	}
	return s.replica.db.cas(s.address, key, old, value)
}

// holds reports whether a document in the given state equals want, where a
// nil want stands for an absent document.
func holds(cur []byte, present bool, want []byte) bool {
	if want == nil {
		return !present
	}
	return present && bytes.Equal(cur, want)
}

func (s *docStore) Drop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.authorize(); err != nil {
		return err
	}
	if err := s.replica.db.drop(s.address); err != nil {
		return err
	}
	s.replica.logger.Debug().Str("address", s.address).Msg("store dropped")
	return nil
}
