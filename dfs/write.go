package dfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfsorg/libdfs-go/identity"
	"github.com/bitfsorg/libdfs-go/keywrap"
	"github.com/bitfsorg/libdfs-go/metadata"
	"github.com/bitfsorg/libdfs-go/pathindex"
)

// WriteOpts holds options for WriteFile.
type WriteOpts struct {
	Path string // file path; normalized before use
	Data []byte // plaintext content

	// ReadAccess and WriteAccess name principals given access in addition to
	// the caller. Names are identities or resolvable aliases. On overwrite,
	// ReadAccess adds readers and WriteAccess is ignored.
	ReadAccess  []string
	WriteAccess []string
}

// WriteFile stores opts.Data at opts.Path.
//
// A new path gets a record whose writers are the caller and WriteAccess and
// whose readers are the caller and ReadAccess. An existing path is
// overwritten only by a writer: the content is resealed under a fresh key for
// the existing readers, the owner, the caller and ReadAccess.
func (s *Service) WriteFile(ctx context.Context, caller *identity.Principal, opts *WriteOpts) (*Result, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if opts == nil {
		return nil, fmt.Errorf("dfs: write options are required")
	}
	p, err := filePath(opts.Path)
	if err != nil {
		return nil, err
	}
	readers, err := s.resolve(ctx, opts.ReadAccess)
	if err != nil {
		return nil, err
	}
	writers, err := s.resolve(ctx, opts.WriteAccess)
	if err != nil {
		return nil, err
	}

	return retry(ctx, func() (*Result, error) {
		rec, err := s.loadForWrite(ctx, caller.ID, p)
		switch {
		case err == nil:
			return s.overwrite(ctx, caller, rec, opts.Data, readers)
		case errors.Is(err, ErrNotFound):
			return s.create(ctx, caller, p, opts.Data, readers, writers)
		default:
			return nil, err
		}
	})
}

// create writes a file at a path that has no binding. Losing the binding to a
// concurrent create is ErrConflict.
func (s *Service) create(ctx context.Context, caller *identity.Principal, p string, data []byte,
	readers, writers []keywrap.Identity) (*Result, error) {
	// Step 1: Seal the content under a fresh key.
	key, err := keywrap.NewContentKey()
	if err != nil {
		return nil, fmt.Errorf("dfs: %w", err)
	}
	handle, err := s.seal(ctx, data, key, s.compression)
	if err != nil {
		return nil, err
	}

	// Step 2: Wrap the key for every reader.
	envelopes, err := keywrap.WrapAll(key, union([]keywrap.Identity{caller.ID}, readers))
	if err != nil {
		s.release(ctx, handle, false)
		return nil, classify(fmt.Errorf("dfs: wrap key: %w", err))
	}

	// Step 3: Create the record guarded by the write-access set.
	meta := &metadata.FileMetadata{
		Path:          p,
		ContentHandle: handle,
		Envelopes:     envelopes,
		Owner:         caller.ID,
		Compression:   s.compression,
		Size:          int64(len(data)),
		Version:       1,
		UpdatedAt:     s.now().UTC(),
	}
	r := s.replica.As(caller.ID)
	ac := metadata.NewAccessController(union([]keywrap.Identity{caller.ID}, writers)...)
	store, err := metadata.CreateRecord(ctx, r, p, ac, meta)
	if err != nil {
		s.release(ctx, handle, false)
		return nil, classify(fmt.Errorf("dfs: create record: %w", err))
	}

	// Step 4: Bind the path unless someone else bound it first.
	index, err := pathindex.Open(ctx, r)
	if err == nil {
		err = index.BindIf(ctx, p, "", store.Address())
	}
	if err != nil {
		s.dropStore(ctx, store)
		s.release(ctx, handle, false)
		return nil, classify(fmt.Errorf("dfs: bind %s: %w", p, err))
	}

	s.logger.Info().Str("path", p).Str("address", store.Address()).
		Str("owner", caller.ID.Short()).Int("readers", len(envelopes)).
		Int("writers", len(ac.Writers())).Msg("file created")

	return &Result{
		Path:          p,
		Address:       store.Address(),
		ContentHandle: handle,
		Version:       meta.Version,
		Message:       fmt.Sprintf("created %s (%d bytes)", p, len(data)),
	}, nil
}

// overwrite replaces the content of an existing file.
func (s *Service) overwrite(ctx context.Context, caller *identity.Principal, rec *record,
	data []byte, readers []keywrap.Identity) (*Result, error) {
	// Step 1: Seal under a fresh key so no earlier key opens the new content.
	key, err := keywrap.NewContentKey()
	if err != nil {
		return nil, fmt.Errorf("dfs: %w", err)
	}
	handle, err := s.seal(ctx, data, key, s.compression)
	if err != nil {
		return nil, err
	}

	// Step 2: Rewrap for the existing readers plus the owner, caller and additions.
	all := union(rec.meta.ReaderIDs(), []keywrap.Identity{rec.meta.Owner, caller.ID}, readers)
	envelopes, err := keywrap.WrapAll(key, all)
	if err != nil {
		s.release(ctx, handle, false)
		return nil, classify(fmt.Errorf("dfs: wrap key: %w", err))
	}

	// Step 3: Replace the record document.
	old := rec.meta.ContentHandle
	meta := rec.meta.Clone()
	meta.ContentHandle = handle
	meta.Envelopes = envelopes
	meta.Compression = s.compression
	meta.Size = int64(len(data))
	meta.Version++
	meta.UpdatedAt = s.now().UTC()
	if err := s.swap(ctx, rec, meta); err != nil {
		s.release(ctx, handle, false)
		return nil, err
	}

	// Step 4: Release the superseded ciphertext.
	s.release(ctx, old, false)

	s.logger.Info().Str("path", rec.path).Str("by", caller.ID.Short()).
		Uint64("version", meta.Version).Msg("file overwritten")

	return &Result{
		Path:          rec.path,
		Address:       rec.store.Address(),
		ContentHandle: handle,
		Version:       meta.Version,
		Message:       fmt.Sprintf("wrote %s (%d bytes, version %d)", rec.path, len(data), meta.Version),
	}, nil
}
