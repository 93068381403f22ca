package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfsorg/libdfs-go/keywrap"
	"github.com/bitfsorg/libdfs-go/storage"
)

// RecordKey is the key of the single document held by a record store.
const RecordKey = "metadata"

// FileMetadata is the document stored in a file's record store.
type FileMetadata struct {
	// Path is the path the record was created for.
	Path string

	// ContentHandle locates the current ciphertext in the blob store.
	ContentHandle storage.Handle

	// Envelopes holds the content key wrapped for every reader.
	Envelopes keywrap.EnvelopeSet

	// Owner created the file. Owners always keep read and write access.
	Owner keywrap.Identity

	// Compression is the scheme applied to the plaintext before sealing.
	Compression int32

	// Size is the plaintext length in bytes.
	Size int64

	// Version increases by one on every content or reader change.
	Version uint64

	UpdatedAt time.Time

	// Retired is set once the record has been replaced by a move or removed.
	// A retired record accepts no further changes.
	Retired bool
}

// ReaderIDs returns the identities holding an envelope.
func (m *FileMetadata) ReaderIDs() []keywrap.Identity {
	return m.Envelopes.Identities()
}

// Clone returns a deep copy of m.
func (m *FileMetadata) Clone() *FileMetadata {
	cp := *m
	cp.Envelopes = make(keywrap.EnvelopeSet, len(m.Envelopes))
	for i, env := range m.Envelopes {
		cp.Envelopes[i] = keywrap.Envelope{
			Recipient:  env.Recipient,
			WrappedKey: append([]byte(nil), env.WrappedKey...),
		}
	}
	return &cp
}

// EncodeRecord serializes a record document.
func EncodeRecord(m *FileMetadata) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: file metadata", ErrNilParam)
	}
	data, err := encodeGob(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return data, nil
}

// DecodeRecord deserializes a record document.
func DecodeRecord(data []byte) (*FileMetadata, error) {
	var m FileMetadata
	if err := decodeGob(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return &m, nil
}

// CreateRecord creates a record store for path guarded by ac, holding meta.
// The store is created at a new address. The creator need not be in ac.
func CreateRecord(ctx context.Context, r *Replica, path string, ac *AccessController, meta *FileMetadata) (DocStore, error) {
	data, err := EncodeRecord(meta)
	if err != nil {
		return nil, err
	}
	return r.Create(ctx, path, ac, Doc{Key: RecordKey, Value: data})
}

// LoadRecord opens the record store at address and reads its document.
func LoadRecord(ctx context.Context, r *Replica, address string) (DocStore, *FileMetadata, error) {
	store, err := r.Open(ctx, address)
	if err != nil {
		return nil, nil, err
	}
	meta, _, err := ReadRecord(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	return store, meta, nil
}

// ReadRecord reads the record document of store. The encoded form is
// returned for SwapRecord.
func ReadRecord(ctx context.Context, store DocStore) (*FileMetadata, []byte, error) {
	if err := store.Load(ctx); err != nil {
		return nil, nil, err
	}
	data, err := store.Get(ctx, RecordKey)
	if err != nil {
		return nil, nil, err
	}
	meta, err := DecodeRecord(data)
	if err != nil {
		return nil, nil, err
	}
	return meta, data, nil
}

// PutRecord replaces the record document.
func PutRecord(ctx context.Context, store DocStore, meta *FileMetadata) error {
	data, err := EncodeRecord(meta)
	if err != nil {
		return err
	}
	return store.Put(ctx, RecordKey, data)
}

// SwapRecord replaces the record document with meta only if it is still
// prev, the encoded form read earlier. Fails with ErrConflict otherwise.
func SwapRecord(ctx context.Context, store DocStore, prev []byte, meta *FileMetadata) ([]byte, error) {
	data, err := EncodeRecord(meta)
	if err != nil {
		return nil, err
	}
	if err := store.CompareAndSwap(ctx, RecordKey, prev, data); err != nil {
		return nil, err
	}
	return data, nil
}

// DropRecord deletes the record store.
func DropRecord(ctx context.Context, store DocStore) error {
	return store.Drop(ctx)
}
