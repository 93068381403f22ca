package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HandleLen is the length of a content handle (hex SHA256 = 64 chars).
const HandleLen = sha256.Size * 2

// Handle identifies a stored blob. It is the hex SHA256 of the stored bytes, so
// identical ciphertext always maps to the same handle.
type Handle string

// HandleOf computes the handle of data.
func HandleOf(data []byte) Handle {
	sum := sha256.Sum256(data)
	return Handle(hex.EncodeToString(sum[:]))
}

// ParseHandle validates s as a content handle.
func ParseHandle(s string) (Handle, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if err := Handle(s).Validate(); err != nil {
		return "", err
	}
	return Handle(s), nil
}

// Validate checks that h is 64 lowercase hex characters.
func (h Handle) Validate() error {
	if len(h) != HandleLen {
		return fmt.Errorf("%w: got %d chars", ErrInvalidHandle, len(h))
	}
	if _, err := hex.DecodeString(string(h)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	}
	if strings.ToLower(string(h)) != string(h) {
		return fmt.Errorf("%w: must be lowercase", ErrInvalidHandle)
	}
	return nil
}

// String returns the handle as a plain string.
func (h Handle) String() string { return string(h) }

// Store provides content-addressed storage for encrypted file data.
// Values are opaque ciphertext; the store never sees plaintext or keys.
type Store interface {
	// Add stores data and returns its handle. Adding the same bytes twice is a no-op.
	Add(ctx context.Context, data []byte) (Handle, error)

	// Cat retrieves the bytes stored under h.
	Cat(ctx context.Context, h Handle) ([]byte, error)

	// Has checks if content exists for h.
	Has(ctx context.Context, h Handle) (bool, error)

	// Remove releases the content stored under h. Space may only be
	// reclaimed by a later GC on stores that implement GarbageCollector.
	Remove(ctx context.Context, h Handle) error

	// List returns all stored handles.
	List(ctx context.Context) ([]Handle, error)
}

// GarbageCollector is implemented by stores that defer reclaiming removed content.
type GarbageCollector interface {
	// GC reclaims released content and returns the number of blobs freed.
	GC(ctx context.Context) (int, error)
}
