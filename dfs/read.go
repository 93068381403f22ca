package dfs

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfsorg/libdfs-go/identity"
	"github.com/bitfsorg/libdfs-go/keywrap"
	"github.com/bitfsorg/libdfs-go/pathindex"
	"github.com/bitfsorg/libdfs-go/storage"
)

// FileInfo describes a file without its content.
type FileInfo struct {
	Path          string
	Address       string
	ContentHandle storage.Handle
	Owner         keywrap.Identity
	Compression   string
	Size          int64
	Version       uint64
	UpdatedAt     time.Time
}

// ACL lists the identities with read and write access to a file.
type ACL struct {
	Read  []keywrap.Identity
	Write []keywrap.Identity
}

// ReadFile returns the plaintext at path. The caller must hold an envelope
// that its key opens.
func (s *Service) ReadFile(ctx context.Context, caller *identity.Principal, path string) ([]byte, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	p, err := filePath(path)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(ctx, caller.ID, p)
	if err != nil {
		return nil, err
	}

	key, err := keywrap.Unlock(rec.meta.Envelopes, caller.ID, caller.Key)
	if err != nil {
		return nil, classify(fmt.Errorf("dfs: read %s: %w", p, err))
	}
	packed, err := s.open(ctx, rec.meta, key)
	if err != nil {
		return nil, err
	}
	data, err := storage.Decompress(packed, rec.meta.Compression)
	if err != nil {
		return nil, fmt.Errorf("dfs: decompress %s: %w", p, err)
	}

	s.logger.Debug().Str("path", p).Str("by", caller.ID.Short()).Int("bytes", len(data)).Msg("file read")
	return data, nil
}

// Stat returns the record of the file at path. Any caller may stat a bound
// path; the record holds no plaintext.
func (s *Service) Stat(ctx context.Context, caller *identity.Principal, path string) (*FileInfo, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	p, err := filePath(path)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(ctx, caller.ID, p)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Path:          p,
		Address:       rec.store.Address(),
		ContentHandle: rec.meta.ContentHandle,
		Owner:         rec.meta.Owner,
		Compression:   storage.CompressionName(rec.meta.Compression),
		Size:          rec.meta.Size,
		Version:       rec.meta.Version,
		UpdatedAt:     rec.meta.UpdatedAt,
	}, nil
}

// ReadACL returns the read and write sets of the file at path, both sorted.
func (s *Service) ReadACL(ctx context.Context, caller *identity.Principal, path string) (*ACL, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	p, err := filePath(path)
	if err != nil {
		return nil, err
	}
	rec, err := s.load(ctx, caller.ID, p)
	if err != nil {
		return nil, err
	}
	return &ACL{
		Read:  rec.meta.ReaderIDs(),
		Write: rec.store.AccessController().Writers(),
	}, nil
}

// Readdir returns the sorted names of the files and subdirectories directly
// under dir. A directory exists implicitly while any path lies beneath it;
// an unknown directory yields an empty list.
func (s *Service) Readdir(ctx context.Context, caller *identity.Principal, dir string) ([]string, error) {
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	index, err := pathindex.Open(ctx, s.replica.As(caller.ID))
	if err != nil {
		return nil, classify(err)
	}
	names, err := index.Readdir(ctx, dir)
	if err != nil {
		return nil, classify(err)
	}
	return names, nil
}
