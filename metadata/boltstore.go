package metadata

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libdfs-go/keywrap"
)

var bucketManifests = []byte("manifests")

// storePrefix prefixes the bucket holding a store's documents.
const storePrefix = "store:"

// boltBackend persists stores in a bbolt database: one manifest bucket plus a
// bucket per store address.
type boltBackend struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	closed bool
}

var _ backend = (*boltBackend)(nil)

// OpenBoltReplica opens or creates the bbolt database at dbPath and returns a
// replica bound to id. The parent directory is created if it does not exist.
func OpenBoltReplica(dbPath string, id keywrap.Identity) (*Replica, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrStoreUnavailable, err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrStoreUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketManifests); err != nil {
			return fmt.Errorf("boltstore: create bucket %q: %w", bucketManifests, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return newReplica(&boltBackend{db: db}, id), nil
}

func storeBucket(address string) []byte {
	return []byte(storePrefix + address)
}

// encodeGob serializes a value using gob encoding.
func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeGob deserializes gob-encoded data into a value.
func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// wrapBolt tags database failures as ErrStoreUnavailable and passes the
// package's own sentinel errors through.
func wrapBolt(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrStoreNotFound, ErrDocNotFound, ErrStoreClosed, ErrConflict} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (b *boltBackend) update(fn func(tx *bbolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}
	return wrapBolt(b.db.Update(fn))
}

func (b *boltBackend) view(fn func(tx *bbolt.Tx) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}
	return wrapBolt(b.db.View(fn))
}

// docs returns the document bucket of address or ErrStoreNotFound.
func docs(tx *bbolt.Tx, address string) (*bbolt.Bucket, error) {
	bkt := tx.Bucket(storeBucket(address))
	if bkt == nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, address)
	}
	return bkt, nil
}

func (b *boltBackend) create(m *Manifest, genesis []Doc) error {
	if m == nil {
		return fmt.Errorf("%w: manifest", ErrNilParam)
	}
	return b.update(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(bucketManifests)
		if mb.Get([]byte(m.Address)) != nil {
			return nil
		}
		data, err := encodeGob(m)
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		if err := mb.Put([]byte(m.Address), data); err != nil {
			return fmt.Errorf("boltstore: put manifest: %w", err)
		}
		bkt, err := tx.CreateBucketIfNotExists(storeBucket(m.Address))
		if err != nil {
			return fmt.Errorf("boltstore: create store bucket: %w", err)
		}
		for _, d := range genesis {
			if err := bkt.Put([]byte(d.Key), d.Value); err != nil {
				return fmt.Errorf("boltstore: put genesis doc: %w", err)
			}
		}
		return nil
	})
}

func (b *boltBackend) manifest(address string) (*Manifest, error) {
	var m Manifest
	err := b.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketManifests).Get([]byte(address))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrStoreNotFound, address)
		}
		if err := decodeGob(data, &m); err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (b *boltBackend) put(address, key string, value []byte) error {
	return b.update(func(tx *bbolt.Tx) error {
		bkt, err := docs(tx, address)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), value)
	})
}

func (b *boltBackend) get(address, key string) ([]byte, error) {
	var out []byte
	err := b.view(func(tx *bbolt.Tx) error {
		bkt, err := docs(tx, address)
		if err != nil {
			return err
		}
		v := bkt.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%w: %q", ErrDocNotFound, key)
		}
		// Values are only valid for the life of the transaction.
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

func (b *boltBackend) all(address string) ([]Doc, error) {
	var out []Doc
	err := b.view(func(tx *bbolt.Tx) error {
		bkt, err := docs(tx, address)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			out = append(out, Doc{Key: string(k), Value: bytes.Clone(v)})
			return nil
		})
	})
	return out, err
}

func (b *boltBackend) del(address, key string) error {
	return b.update(func(tx *bbolt.Tx) error {
		bkt, err := docs(tx, address)
		if err != nil {
			return err
		}
		if bkt.Get([]byte(key)) == nil {
			return fmt.Errorf("%w: %q", ErrDocNotFound, key)
		}
		return bkt.Delete([]byte(key))
	})
}

func (b *boltBackend) cas(address, key string, old, value []byte) error {
	return b.update(func(tx *bbolt.Tx) error {
		bkt, err := docs(tx, address)
		if err != nil {
			return err
		}
		cur := bkt.Get([]byte(key))
		if !holds(cur, cur != nil, old) {
			return fmt.Errorf("%w: %q", ErrConflict, key)
		}
		if value == nil {
			return bkt.Delete([]byte(key))
		}
		return bkt.Put([]byte(key), value)
	})
}

func (b *boltBackend) drop(address string) error {
	return b.update(func(tx *bbolt.Tx) error {
		if _, err := docs(tx, address); err != nil {
			return err
		}
		if err := tx.DeleteBucket(storeBucket(address)); err != nil {
			return fmt.Errorf("boltstore: delete store bucket: %w", err)
		}
		return tx.Bucket(bucketManifests).Delete([]byte(address))
	})
}

func (b *boltBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
