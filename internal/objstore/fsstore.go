package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daypack/daypack/internal/types"
)

// FSStore is a directory-backed object store. Used for local buckets and
// as the test double closest to production behavior. Writes are atomic
// (temp file + rename) so a crashed put never leaves a readable partial
// object.
type FSStore struct {
	dir string
}

// NewFSStore creates a store rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.Permanent(key, fmt.Errorf("failed to create key directory: %w", err))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return types.Permanent(key, fmt.Errorf("failed to write temp file: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return types.Permanent(key, fmt.Errorf("failed to rename temp file: %w", err))
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	if err != nil {
		return nil, types.Permanent(key, err)
	}
	return data, nil
}

func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, types.Permanent(key, err)
	}
	return true, nil
}
