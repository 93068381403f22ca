package metadata

import "errors"

var (
	// ErrStoreNotFound indicates no store exists at the address, or it was dropped.
	ErrStoreNotFound = errors.New("metadata: store not found")

	// ErrWriteDenied indicates the bound identity is not in the store's write-access set.
	ErrWriteDenied = errors.New("metadata: write denied by access controller")

	// ErrDocNotFound indicates the store has no document under the key.
	ErrDocNotFound = errors.New("metadata: document not found")

	// ErrStoreUnavailable indicates the backing database failed.
	ErrStoreUnavailable = errors.New("metadata: store unavailable")

	// ErrStoreClosed indicates the replica has been closed.
	ErrStoreClosed = errors.New("metadata: replica closed")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("metadata: required parameter is nil")

	// ErrInvalidAddress indicates a malformed store address.
	ErrInvalidAddress = errors.New("metadata: invalid store address")

	// ErrConflict indicates a conditional write found a different document
	// than expected.
	ErrConflict = errors.New("metadata: document changed concurrently")

	// ErrInvalidRecord indicates a record document that cannot be decoded.
	ErrInvalidRecord = errors.New("metadata: invalid record")
)
