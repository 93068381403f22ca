package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	_ Store            = (*FileStore)(nil)
	_ GarbageCollector = (*FileStore)(nil)
)

// tempPrefix marks partially written blobs inside shard directories.
const tempPrefix = ".tmp-"

// FileStore implements Store using the local filesystem.
// Files are stored at: {baseDir}/{handle[:2]}/{handle}
// The first 2 hex chars are used as a subdirectory for sharding.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new file-based content store.
// baseDir is typically "~/.dfs/blobs". The directory is created if it does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &FileStore{
		baseDir: baseDir,
	}, nil
}

// HandleToPath converts a handle to its filesystem path: {base}/{ab}/{abcdef...}
func HandleToPath(baseDir string, h Handle) string {
	return filepath.Join(baseDir, string(h[:2]), string(h))
}

// BaseDir returns the root directory of the store.
func (fs *FileStore) BaseDir() string { return fs.baseDir }

// Add writes data to a temp file in the shard directory and renames it into
// place, so readers never observe a partial blob.
func (fs *FileStore) Add(ctx context.Context, data []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyContent
	}
	h := HandleOf(data)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := HandleToPath(fs.baseDir, h)
	if _, err := os.Stat(path); err == nil {
		return h, nil
	}

	shard := filepath.Dir(path)
	if err := os.MkdirAll(shard, 0700); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(shard, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return h, nil
}

// Cat retrieves the content stored under h.
func (fs *FileStore) Cat(ctx context.Context, h Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(HandleToPath(fs.baseDir, h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return data, nil
}

// Has checks if content exists for h.
func (fs *FileStore) Has(ctx context.Context, h Handle) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := h.Validate(); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(HandleToPath(fs.baseDir, h))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return true, nil
}

// Remove deletes the content stored under h.
func (fs *FileStore) Remove(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.Validate(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(HandleToPath(fs.baseDir, h))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return nil
}

// List returns all stored handles by scanning the shard directories.
func (fs *FileStore) List(ctx context.Context) ([]Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var result []Handle
	err := fs.walkShards(func(dir, name string) {
		if Handle(name).Validate() == nil {
			result = append(result, Handle(name))
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// GC removes temp files left behind by interrupted writes and empty shard
// directories. Removed blobs are already gone from disk.
func (fs *FileStore) GC(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	n := 0
	err := fs.walkShards(func(dir, name string) {
		if strings.HasPrefix(name, tempPrefix) {
			if os.Remove(filepath.Join(dir, name)) == nil {
				n++
			}
		}
	})
	if err != nil {
		return n, err
	}

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	for _, entry := range entries {
		if entry.IsDir() && len(entry.Name()) == 2 {
			// Fails harmlessly on non-empty shards.
			_ = os.Remove(filepath.Join(fs.baseDir, entry.Name()))
		}
	}
	return n, nil
}

// walkShards calls fn for every regular file inside a 2-char shard directory.
func (fs *FileStore) walkShards(fn func(dir, name string)) error {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}

		shardPath := filepath.Join(fs.baseDir, entry.Name())
		files, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if !f.IsDir() {
				fn(shardPath, f.Name())
			}
		}
	}
	return nil
}
