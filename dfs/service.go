// Package dfs implements an access-controlled virtual filesystem over a
// content-addressed blob store and a replicated metadata layer.
//
// A file is a path bound to a record store. The record holds the handle of
// the current ciphertext and the content key wrapped for every reader; the
// record store's access controller is the file's write-access set. Reading
// is authorized by opening an envelope, writing by the access controller.
//
// Every operation names its caller explicitly. There are no internal locks:
// each call is a sequence of store calls and the replica is the point of
// synchronization.
package dfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libdfs-go/identity"
	"github.com/bitfsorg/libdfs-go/keywrap"
	"github.com/bitfsorg/libdfs-go/metadata"
	"github.com/bitfsorg/libdfs-go/pathindex"
	"github.com/bitfsorg/libdfs-go/storage"
)

// Options configures a Service.
type Options struct {
	Replica     *metadata.Replica // metadata replica; required
	Blobs       storage.Store     // ciphertext store; required
	Resolver    identity.Resolver // resolves non-hex principal names; nil accepts only identities
	Compression int32             // scheme applied to new content
	Keys        identity.Keystore // private keys for Principal; optional
	Logger      *zerolog.Logger   // nil disables logging
}

// Service is the filesystem. It is safe for concurrent use.
type Service struct {
	replica     *metadata.Replica
	blobs       storage.Store
	resolver    identity.Resolver
	compression int32
	keys        identity.Keystore
	logger      zerolog.Logger
	closers     []io.Closer
	now         func() time.Time
}

// Result holds the output of a mutating operation.
type Result struct {
	Path          string         // normalized path
	Address       string         // record address after the operation
	ContentHandle storage.Handle // ciphertext handle after the operation
	Version       uint64         // record version after the operation
	Message       string         // human-readable summary
}

// New creates a Service and opens the shared path index.
func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.Replica == nil {
		return nil, fmt.Errorf("dfs: replica is required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("dfs: blob store is required")
	}
	if _, err := storage.Compress(nil, opts.Compression); err != nil {
		return nil, fmt.Errorf("dfs: compression %d: %w", opts.Compression, err)
	}

	s := &Service{
		replica:     opts.Replica,
		blobs:       opts.Blobs,
		resolver:    opts.Resolver,
		compression: opts.Compression,
		keys:        opts.Keys,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}

	if _, err := pathindex.Open(ctx, s.replica); err != nil {
		return nil, classify(err)
	}
	return s, nil
}

// SetLogger replaces the service logger.
func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// Close releases resources opened by OpenFromConfig.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Principal loads the caller identity named by name from the service
// keystore. Names resolve like reader and writer names do.
func (s *Service) Principal(ctx context.Context, name string) (*identity.Principal, error) {
	if s.keys == nil {
		return nil, fmt.Errorf("%w: no keystore configured", ErrInvalidIdentity)
	}
	ids, err := s.resolve(ctx, []string{name})
	if err != nil {
		return nil, err
	}
	p, err := identity.PrincipalFor(s.keys, ids[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	return p, nil
}

// checkCaller verifies that caller's key matches its identity.
func checkCaller(caller *identity.Principal) error {
	if caller == nil || caller.Key == nil {
		return fmt.Errorf("%w: caller has no key", ErrInvalidIdentity)
	}
	if keywrap.IdentityOf(caller.Key.PubKey()) != caller.ID {
		return fmt.Errorf("%w: key does not match %s", ErrInvalidIdentity, caller.ID.Short())
	}
	return nil
}

// filePath normalizes p and rejects the root, which cannot hold content.
func filePath(p string) (string, error) {
	norm := pathindex.Normalize(p)
	if norm == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return norm, nil
}

// resolve turns principal names into identities.
func (s *Service) resolve(ctx context.Context, names []string) ([]keywrap.Identity, error) {
	ids, err := identity.ResolveAll(ctx, s.resolver, names)
	if err != nil {
		if errors.Is(err, keywrap.ErrInvalidIdentity) || errors.Is(err, identity.ErrUnresolvable) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
		}
		return nil, err
	}
	return ids, nil
}

const (
	// maxAttempts bounds how often an operation restarts after losing a race
	// against a concurrent change to the same path.
	maxAttempts = 16

	// retryBackoff is the delay before the second attempt; later attempts
	// wait proportionally longer.
	retryBackoff = time.Millisecond
)

// retry runs op again while it fails with ErrConflict.
func retry(ctx context.Context, op func() (*Result, error)) (*Result, error) {
	var (
		res *Result
		err error
	)
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * retryBackoff):
			}
		}
		res, err = op()
		if !errors.Is(err, ErrConflict) {
			return res, err
		}
	}
	return res, err
}

// record is a loaded file record as seen by one caller.
type record struct {
	path  string
	store metadata.DocStore
	meta  *metadata.FileMetadata
	raw   []byte // encoded document as read; the precondition of every update
	index *pathindex.Index
}

// load resolves path to its record, bound to caller's identity. A record
// dropped between the lookup and the read means the path moved, so the
// lookup is repeated.
func (s *Service) load(ctx context.Context, caller keywrap.Identity, p string) (*record, error) {
	r := s.replica.As(caller)
	index, err := pathindex.Open(ctx, r)
	if err != nil {
		return nil, classify(err)
	}
	for attempt := 1; ; attempt++ {
		addr, err := index.Lookup(ctx, p)
		if err != nil {
			return nil, classify(err)
		}
		store, err := r.Open(ctx, addr)
		var (
			meta *metadata.FileMetadata
			raw  []byte
		)
		if err == nil {
			meta, raw, err = metadata.ReadRecord(ctx, store)
		}
		if errors.Is(err, metadata.ErrStoreNotFound) && attempt < maxAttempts {
			continue
		}
		if err != nil {
			return nil, classify(fmt.Errorf("record %s: %w", addr, err))
		}
		return &record{path: p, store: store, meta: meta, raw: raw, index: index}, nil
	}
}

// loadForWrite loads path and checks that caller may change it.
func (s *Service) loadForWrite(ctx context.Context, caller keywrap.Identity, p string) (*record, error) {
	rec, err := s.load(ctx, caller, p)
	if err != nil {
		return nil, err
	}
	if err := rec.requireWriter(caller); err != nil {
		return nil, err
	}
	if rec.meta.Retired {
		return nil, fmt.Errorf("%w: %s is being replaced", ErrConflict, p)
	}
	return rec, nil
}

// requireWriter fails unless caller is in the record's write-access set.
func (rec *record) requireWriter(caller keywrap.Identity) error {
	if !rec.store.AccessController().CanWrite(caller) {
		return fmt.Errorf("%w: %s may not write %s", ErrPermissionDenied, caller.Short(), rec.path)
	}
	return nil
}

// swap replaces rec's document with meta if nobody changed it since it was
// loaded. A document changed or dropped in the meantime is ErrConflict.
func (s *Service) swap(ctx context.Context, rec *record, meta *metadata.FileMetadata) error {
	raw, err := metadata.SwapRecord(ctx, rec.store, rec.raw, meta)
	switch {
	case err == nil:
		rec.meta, rec.raw = meta, raw
		return nil
	case errors.Is(err, metadata.ErrConflict), errors.Is(err, metadata.ErrStoreNotFound):
		return fmt.Errorf("%w: %s changed: %w", ErrConflict, rec.path, err)
	default:
		return classify(fmt.Errorf("dfs: update record: %w", err))
	}
}

// dropStore deletes a record store that is no longer bound. A failure leaves
// an unreachable store behind.
func (s *Service) dropStore(ctx context.Context, store metadata.DocStore) {
	if err := metadata.DropRecord(ctx, store); err != nil && !errors.Is(err, metadata.ErrStoreNotFound) {
		s.logger.Warn().Err(err).Str("address", store.Address()).Msg("stale record left behind")
	}
}

// seal compresses and encrypts plaintext under key and stores the result.
func (s *Service) seal(ctx context.Context, plaintext []byte, key keywrap.ContentKey, scheme int32) (storage.Handle, error) {
	packed, err := storage.Compress(plaintext, scheme)
	if err != nil {
		return "", fmt.Errorf("dfs: compress: %w", err)
	}
	ciphertext, err := keywrap.Seal(packed, key)
	if err != nil {
		return "", fmt.Errorf("dfs: encrypt: %w", err)
	}
	h, err := s.blobs.Add(ctx, ciphertext)
	if err != nil {
		return "", classify(fmt.Errorf("dfs: add blob: %w", err))
	}
	return h, nil
}

// open fetches and decrypts the content of meta with key, returning the
// still-compressed bytes.
func (s *Service) open(ctx context.Context, meta *metadata.FileMetadata, key keywrap.ContentKey) ([]byte, error) {
	ciphertext, err := s.blobs.Cat(ctx, meta.ContentHandle)
	if err != nil {
		return nil, classify(fmt.Errorf("dfs: fetch %s: %w", meta.ContentHandle, err))
	}
	packed, err := keywrap.Open(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("dfs: decrypt %s: %w", meta.Path, err)
	}
	return packed, nil
}

// release drops a blob that no record references any more: one superseded by
// a successful swap, or one never published. Failures leave an orphan, which
// is logged and otherwise ignored.
func (s *Service) release(ctx context.Context, h storage.Handle, collect bool) {
	if h == "" {
		return
	}
	if err := s.blobs.Remove(ctx, h); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn().Err(err).Str("handle", string(h)).Msg("orphaned blob")
		return
	}
	if !collect {
		return
	}
	if gc, ok := s.blobs.(storage.GarbageCollector); ok {
		if n, err := gc.GC(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("blob gc failed")
		} else {
			s.logger.Debug().Int("freed", n).Msg("blob gc")
		}
	}
}

func union(sets ...[]keywrap.Identity) []keywrap.Identity {
	seen := make(map[keywrap.Identity]struct{})
	var out []keywrap.Identity
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func contains(ids []keywrap.Identity, id keywrap.Identity) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
