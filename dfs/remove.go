package dfs

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libdfs-go/identity"
)

// Remove deletes the file at path: its record, its binding and its
// ciphertext. The caller must be a writer.
func (s *Service) Remove(ctx context.Context, caller *identity.Principal, path string) (*Result, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	p, err := filePath(path)
	if err != nil {
		return nil, err
	}

	return retry(ctx, func() (*Result, error) {
		rec, err := s.loadForWrite(ctx, caller.ID, p)
		if err != nil {
			return nil, err
		}

		// Step 1: Retire the record so no concurrent change or move builds on it.
		live := rec.meta
		retired := live.Clone()
		retired.Retired = true
		if err := s.swap(ctx, rec, retired); err != nil {
			return nil, err
		}

		// Step 2: Unbind the path.
		if err := rec.index.UnbindIf(ctx, p, rec.store.Address()); err != nil {
			if rerr := s.swap(ctx, rec, live); rerr != nil {
				s.logger.Warn().Err(rerr).Str("path", p).Msg("retired record left bound")
			}
			return nil, classify(fmt.Errorf("dfs: unbind %s: %w", p, err))
		}

		// Step 3: Drop the record and its ciphertext.
		s.dropStore(ctx, rec.store)
		s.release(ctx, live.ContentHandle, true)

		s.logger.Info().Str("path", p).Str("by", caller.ID.Short()).Msg("file removed")

		return &Result{
			Path:    p,
			Address: rec.store.Address(),
			Version: live.Version,
			Message: fmt.Sprintf("removed %s", p),
		}, nil
	})
}
