// Package pathindex maps normalized file paths to the addresses of their
// metadata records and lists directories derived from the set of paths.
package pathindex

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bitfsorg/libdfs-go/metadata"
)

// StoreName is the well-known name of the shared path index store.
const StoreName = "__PATHINDEX__"

// Entry binds a path to a record address.
type Entry struct {
	Path    string
	Address string
}

// Normalize returns the canonical form of p: rooted, cleaned, without a
// trailing slash. "a//b/../c" and "/a/c/" both become "/a/c".
func Normalize(p string) string {
	return path.Join("/", p)
}

// Index is the path index held in a shared document store that every
// identity may write.
type Index struct {
	store metadata.DocStore
}

// Open opens the shared path index on r.
func Open(ctx context.Context, r *metadata.Replica) (*Index, error) {
	store, err := r.OpenNamed(ctx, StoreName, metadata.NewAccessController(metadata.AnyWriter))
	if err != nil {
		return nil, fmt.Errorf("pathindex: open: %w", err)
	}
	return &Index{store: store}, nil
}

// New wraps an already opened store.
func New(store metadata.DocStore) *Index {
	return &Index{store: store}
}

// Address returns the address of the index store.
func (ix *Index) Address() string { return ix.store.Address() }

// Lookup returns the record address bound to p.
func (ix *Index) Lookup(ctx context.Context, p string) (string, error) {
	key := Normalize(p)
	v, err := ix.store.Get(ctx, key)
	if errors.Is(err, metadata.ErrDocNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// Bind points p at address, creating or replacing the entry.
func (ix *Index) Bind(ctx context.Context, p, address string) error {
	if strings.TrimSpace(p) == "" {
		return ErrInvalidPath
	}
	if err := metadata.ValidateAddress(address); err != nil {
		return err
	}
	return ix.store.Put(ctx, Normalize(p), []byte(address))
}

// Unbind removes the entry for p.
func (ix *Index) Unbind(ctx context.Context, p string) error {
	key := Normalize(p)
	err := ix.store.Del(ctx, key)
	if errors.Is(err, metadata.ErrDocNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// BindIf points p at address only while p is bound to current. An empty
// current requires p to be unbound.
func (ix *Index) BindIf(ctx context.Context, p, current, address string) error {
	if strings.TrimSpace(p) == "" {
		return ErrInvalidPath
	}
	if err := metadata.ValidateAddress(address); err != nil {
		return err
	}
	var old []byte
	if current != "" {
		old = []byte(current)
	}
	return ix.swap(ctx, p, old, []byte(address))
}

// UnbindIf removes the entry for p only while it is bound to current.
func (ix *Index) UnbindIf(ctx context.Context, p, current string) error {
	return ix.swap(ctx, p, []byte(current), nil)
}

func (ix *Index) swap(ctx context.Context, p string, old, value []byte) error {
	key := Normalize(p)
	err := ix.store.CompareAndSwap(ctx, key, old, value)
	if !errors.Is(err, metadata.ErrConflict) {
		return err
	}
	if _, lerr := ix.Lookup(ctx, key); errors.Is(lerr, ErrNotFound) && old != nil {
		return lerr
	}
	return fmt.Errorf("%w: %s", ErrConflict, key)
}

// Entries returns every binding, ordered by path.
func (ix *Index) Entries(ctx context.Context) ([]Entry, error) {
	docs, err := ix.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(docs))
	for i, d := range docs {
		out[i] = Entry{Path: d.Key, Address: string(d.Value)}
	}
	return out, nil
}

// Paths returns every indexed path.
func (ix *Index) Paths(ctx context.Context) ([]string, error) {
	entries, err := ix.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out, nil
}

// Readdir lists the immediate children of dir.
func (ix *Index) Readdir(ctx context.Context, dir string) ([]string, error) {
	paths, err := ix.Paths(ctx)
	if err != nil {
		return nil, err
	}
	return ListDir(paths, Normalize(dir)), nil
}

// ListDir returns the sorted, distinct first segments of the paths strictly
// inside dir. A path equal to dir is not inside it. paths is not modified.
func ListDir(paths []string, dir string) []string {
	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	// Paths sharing a prefix are contiguous once sorted.
	start := sort.SearchStrings(sorted, prefix)

	var names []string
	for _, p := range sorted[start:] {
		if !strings.HasPrefix(p, prefix) {
			break
		}
		rest := p[len(prefix):]
		if rest == "" {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		names = append(names, name)
	}

	// "/d" and "/d/x" may be separated by "/d-x", so dedupe after sorting names.
	sort.Strings(names)
	out := []string{}
	for _, name := range names {
		if len(out) == 0 || out[len(out)-1] != name {
			out = append(out, name)
		}
	}
	return out
}
