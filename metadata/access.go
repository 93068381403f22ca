package metadata

import (
	"sort"
	"strings"

	"github.com/bitfsorg/libdfs-go/keywrap"
)

// AnyWriter is the wildcard member that lets every identity write.
const AnyWriter keywrap.Identity = "*"

// AccessController is the immutable write-access set of a store. It is fixed
// when the store is created; changing writers means creating a new store.
type AccessController struct {
	writers []keywrap.Identity
}

// NewAccessController returns a controller for ids. Duplicates and empty ids
// are dropped.
func NewAccessController(ids ...keywrap.Identity) *AccessController {
	return &AccessController{writers: normalizeWriters(ids)}
}

// CanWrite reports whether id may write to a store guarded by ac.
func (ac *AccessController) CanWrite(id keywrap.Identity) bool {
	if ac == nil || id == "" {
		return false
	}
	for _, w := range ac.writers {
		if w == id || w == AnyWriter {
			return true
		}
	}
	return false
}

// Writers returns a sorted copy of the write-access set.
func (ac *AccessController) Writers() []keywrap.Identity {
	if ac == nil {
		return nil
	}
	out := make([]keywrap.Identity, len(ac.writers))
	copy(out, ac.writers)
	return out
}

// Manifest returns the canonical encoding of the set, which is part of the
// store's address.
func (ac *AccessController) Manifest() string {
	parts := make([]string, len(ac.writers))
	for i, w := range ac.writers {
		parts[i] = string(w)
	}
	return strings.Join(parts, ",")
}

// Grant returns a new controller with ids added.
func (ac *AccessController) Grant(ids ...keywrap.Identity) *AccessController {
	return NewAccessController(append(ac.Writers(), ids...)...)
}

// Revoke returns a new controller with ids removed.
func (ac *AccessController) Revoke(ids ...keywrap.Identity) *AccessController {
	drop := make(map[keywrap.Identity]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	var kept []keywrap.Identity
	for _, w := range ac.writers {
		if _, ok := drop[w]; !ok {
			kept = append(kept, w)
		}
	}
	return NewAccessController(kept...)
}

// Equal reports whether two controllers hold the same set.
func (ac *AccessController) Equal(other *AccessController) bool {
	return ac.Manifest() == other.Manifest()
}

func normalizeWriters(ids []keywrap.Identity) []keywrap.Identity {
	seen := make(map[keywrap.Identity]struct{}, len(ids))
	out := make([]keywrap.Identity, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
