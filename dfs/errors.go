package dfs

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libdfs-go/keywrap"
	"github.com/bitfsorg/libdfs-go/metadata"
	"github.com/bitfsorg/libdfs-go/pathindex"
	"github.com/bitfsorg/libdfs-go/storage"
)

var (
	// ErrNotFound indicates the path, its record, or its content does not exist.
	ErrNotFound = errors.New("dfs: not found")

	// ErrPermissionDenied indicates the caller lacks read or write access.
	ErrPermissionDenied = errors.New("dfs: permission denied")

	// ErrInvalidIdentity indicates a malformed identity or a caller whose key
	// does not match its identity.
	ErrInvalidIdentity = errors.New("dfs: invalid identity")

	// ErrStoreUnavailable indicates the blob store or metadata replica failed.
	ErrStoreUnavailable = errors.New("dfs: store unavailable")

	// ErrInvalidPath indicates a path that cannot name a file.
	ErrInvalidPath = errors.New("dfs: invalid path")

	// ErrConflict indicates the file changed, moved or was removed by a
	// concurrent operation. Operations retry before returning it.
	ErrConflict = errors.New("dfs: concurrent update")

	// ErrOwnerRequired indicates an attempt to revoke the owner's access.
	ErrOwnerRequired = fmt.Errorf("%w: the owner's access cannot be revoked", ErrPermissionDenied)
)

// classify tags err with the kind a caller can branch on. The original error
// stays in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrInvalidIdentity), errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrInvalidPath), errors.Is(err, ErrConflict):
		return err
	case errors.Is(err, pathindex.ErrConflict), errors.Is(err, metadata.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, pathindex.ErrNotFound),
		errors.Is(err, metadata.ErrStoreNotFound),
		errors.Is(err, metadata.ErrDocNotFound),
		errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, keywrap.ErrPermissionDenied),
		errors.Is(err, metadata.ErrWriteDenied):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, keywrap.ErrInvalidIdentity):
		return fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	case errors.Is(err, pathindex.ErrInvalidPath):
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	case errors.Is(err, metadata.ErrStoreUnavailable),
		errors.Is(err, metadata.ErrStoreClosed),
		errors.Is(err, storage.ErrIOFailure):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		return err
	}
}
