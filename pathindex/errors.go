package pathindex

import "errors"

var (
	// ErrNotFound indicates no record is bound to the path.
	ErrNotFound = errors.New("pathindex: path not found")

	// ErrConflict indicates the path is bound to a different address than
	// the caller expected.
	ErrConflict = errors.New("pathindex: binding changed concurrently")

	// ErrInvalidPath indicates an empty path.
	ErrInvalidPath = errors.New("pathindex: invalid path")
)
