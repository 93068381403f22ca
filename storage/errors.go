package storage

import "errors"

var (
	// ErrNotFound indicates no content exists for the given handle.
	ErrNotFound = errors.New("storage: content not found")

	// ErrInvalidHandle indicates the handle is not 64 lowercase hex characters.
	ErrInvalidHandle = errors.New("storage: invalid content handle")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store empty content.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrHashMismatch indicates fetched content does not hash to the requested handle.
	ErrHashMismatch = errors.New("storage: content hash mismatch")

	// ErrUnsupportedCompression indicates an unsupported compression scheme.
	ErrUnsupportedCompression = errors.New("storage: unsupported compression scheme")

	// ErrDecompressedTooLarge indicates decompressed data exceeds the safety limit.
	ErrDecompressedTooLarge = errors.New("storage: decompressed data exceeds maximum size")
)
