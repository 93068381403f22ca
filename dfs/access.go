package dfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfsorg/libdfs-go/identity"
	"github.com/bitfsorg/libdfs-go/keywrap"
	"github.com/bitfsorg/libdfs-go/metadata"
	"github.com/bitfsorg/libdfs-go/storage"
)

// aclOp changes the access of one loaded record.
type aclOp func(rec *record, ids []keywrap.Identity) (*Result, error)

// changeACL validates the call, resolves names and runs op against the
// current record of path, reloading it after a lost race.
func (s *Service) changeACL(ctx context.Context, caller *identity.Principal, path string,
	names []string, op aclOp) (*Result, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	p, err := filePath(path)
	if err != nil {
		return nil, err
	}
	ids, err := s.resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	return retry(ctx, func() (*Result, error) {
		rec, err := s.loadForWrite(ctx, caller.ID, p)
		if err != nil {
			return nil, err
		}
		return op(rec, ids)
	})
}

func unchanged(rec *record, msg string) *Result {
	return &Result{
		Path:          rec.path,
		Address:       rec.store.Address(),
		ContentHandle: rec.meta.ContentHandle,
		Version:       rec.meta.Version,
		Message:       msg,
	}
}

// GrantRead adds envelopes for names to the file at path. The caller must be
// a writer and a reader. Identities that already read the file are skipped;
// when nothing is added the record is left untouched.
func (s *Service) GrantRead(ctx context.Context, caller *identity.Principal, path string, names []string) (*Result, error) {
	return s.changeACL(ctx, caller, path, names, func(rec *record, ids []keywrap.Identity) (*Result, error) {
		key, err := keywrap.Unlock(rec.meta.Envelopes, caller.ID, caller.Key)
		if err != nil {
			return nil, classify(fmt.Errorf("dfs: grant read on %s: %w", rec.path, err))
		}

		var added []keywrap.Identity
		for _, id := range ids {
			if !rec.meta.Envelopes.Has(id) && !contains(added, id) {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			return unchanged(rec, "no new readers"), nil
		}

		envelopes, err := keywrap.WrapAll(key, added)
		if err != nil {
			return nil, classify(fmt.Errorf("dfs: wrap key: %w", err))
		}
		meta := rec.meta.Clone()
		meta.Envelopes = meta.Envelopes.Merge(envelopes)
		meta.Version++
		meta.UpdatedAt = s.now().UTC()
		if err := s.swap(ctx, rec, meta); err != nil {
			return nil, err
		}

		s.logger.Info().Str("path", rec.path).Str("by", caller.ID.Short()).
			Int("added", len(added)).Msg("read access granted")

		return &Result{
			Path:          rec.path,
			Address:       rec.store.Address(),
			ContentHandle: meta.ContentHandle,
			Version:       meta.Version,
			Message:       fmt.Sprintf("granted read on %s to %d identities", rec.path, len(added)),
		}, nil
	})
}

// RevokeRead removes names from the readers of the file at path. The content
// is resealed under a fresh key for the remaining readers and the old
// ciphertext is released, so a revoked key opens nothing current. The owner
// cannot be revoked.
func (s *Service) RevokeRead(ctx context.Context, caller *identity.Principal, path string, names []string) (*Result, error) {
	return s.changeACL(ctx, caller, path, names, func(rec *record, ids []keywrap.Identity) (*Result, error) {
		if contains(ids, rec.meta.Owner) {
			return nil, fmt.Errorf("%w: revoke read on %s", ErrOwnerRequired, rec.path)
		}

		// Step 1: Recover the plaintext with the caller's key.
		oldKey, err := keywrap.Unlock(rec.meta.Envelopes, caller.ID, caller.Key)
		if err != nil {
			return nil, classify(fmt.Errorf("dfs: revoke read on %s: %w", rec.path, err))
		}
		packed, err := s.open(ctx, rec.meta, oldKey)
		if errors.Is(err, ErrNotFound) {
			// A concurrent change superseded and collected the content.
			return nil, fmt.Errorf("%w: content of %s replaced: %w", ErrConflict, rec.path, err)
		}
		if err != nil {
			return nil, err
		}

		// Step 2: Reseal under a fresh key. The compressed form is reused as is.
		key, err := keywrap.NewContentKey()
		if err != nil {
			return nil, fmt.Errorf("dfs: %w", err)
		}
		handle, err := s.seal(ctx, packed, key, storage.CompressNone)
		if err != nil {
			return nil, err
		}

		// Step 3: Wrap for the survivors.
		survivors := rec.meta.Envelopes.Without(ids...).Identities()
		envelopes, err := keywrap.WrapAll(key, survivors)
		if err != nil {
			s.release(ctx, handle, false)
			return nil, classify(fmt.Errorf("dfs: wrap key: %w", err))
		}

		// Step 4: Publish the record, then drop the old ciphertext.
		prev := rec.meta
		meta := prev.Clone()
		meta.ContentHandle = handle
		meta.Envelopes = envelopes
		meta.Version++
		meta.UpdatedAt = s.now().UTC()
		if err := s.swap(ctx, rec, meta); err != nil {
			s.release(ctx, handle, false)
			return nil, err
		}
		s.release(ctx, prev.ContentHandle, true)

		s.logger.Info().Str("path", rec.path).Str("by", caller.ID.Short()).
			Int("revoked", len(prev.Envelopes)-len(envelopes)).
			Int("readers", len(envelopes)).Msg("read access revoked")

		return &Result{
			Path:          rec.path,
			Address:       rec.store.Address(),
			ContentHandle: handle,
			Version:       meta.Version,
			Message:       fmt.Sprintf("revoked read on %s; key rotated", rec.path),
		}, nil
	})
}

// GrantWrite adds names to the write-access set of the file at path. Since a
// record store's write-access set is fixed, the record moves to a new
// address.
func (s *Service) GrantWrite(ctx context.Context, caller *identity.Principal, path string, names []string) (*Result, error) {
	return s.changeACL(ctx, caller, path, names, func(rec *record, ids []keywrap.Identity) (*Result, error) {
		return s.rebind(ctx, caller, rec, rec.store.AccessController().Grant(ids...), "granted write")
	})
}

// RevokeWrite removes names from the write-access set of the file at path.
// The record moves to a new address. The owner cannot be revoked; a caller
// may revoke itself.
func (s *Service) RevokeWrite(ctx context.Context, caller *identity.Principal, path string, names []string) (*Result, error) {
	return s.changeACL(ctx, caller, path, names, func(rec *record, ids []keywrap.Identity) (*Result, error) {
		if contains(ids, rec.meta.Owner) {
			return nil, fmt.Errorf("%w: revoke write on %s", ErrOwnerRequired, rec.path)
		}
		return s.rebind(ctx, caller, rec, rec.store.AccessController().Revoke(ids...), "revoked write")
	})
}

// rebind moves rec to a new record store guarded by ac.
//
// The old record is retired with a swap before the path moves, so changes
// made to it concurrently either land before the copy is taken or fail and
// retry against the new record. The new record is bound before the old one
// is dropped so the path never dangles.
func (s *Service) rebind(ctx context.Context, caller *identity.Principal, rec *record,
	ac *metadata.AccessController, verb string) (*Result, error) {
	if ac.Equal(rec.store.AccessController()) {
		return unchanged(rec, "write access unchanged"), nil
	}

	// Step 1: Copy the document into a store under the new write-access set.
	meta := rec.meta.Clone()
	meta.UpdatedAt = s.now().UTC()
	r := s.replica.As(caller.ID)
	store, err := metadata.CreateRecord(ctx, r, rec.path, ac, meta)
	if err != nil {
		return nil, classify(fmt.Errorf("dfs: create record: %w", err))
	}

	// Step 2: Retire the old record unless it changed since it was copied.
	live := rec.meta
	retired := live.Clone()
	retired.Retired = true
	if err := s.swap(ctx, rec, retired); err != nil {
		s.dropStore(ctx, store)
		return nil, err
	}

	// Step 3: Repoint the path.
	from := rec.store.Address()
	if err := rec.index.BindIf(ctx, rec.path, from, store.Address()); err != nil {
		if rerr := s.swap(ctx, rec, live); rerr != nil {
			s.logger.Warn().Err(rerr).Str("path", rec.path).Msg("retired record left bound")
		}
		s.dropStore(ctx, store)
		return nil, classify(fmt.Errorf("dfs: bind %s: %w", rec.path, err))
	}

	// Step 4: Drop the old record.
	s.dropStore(ctx, rec.store)

	s.logger.Info().Str("path", rec.path).Str("by", caller.ID.Short()).
		Str("from", from).Str("to", store.Address()).
		Int("writers", len(ac.Writers())).Msg(verb)

	return &Result{
		Path:          rec.path,
		Address:       store.Address(),
		ContentHandle: meta.ContentHandle,
		Version:       meta.Version,
		Message:       fmt.Sprintf("%s on %s", verb, rec.path),
	}, nil
}
