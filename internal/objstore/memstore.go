package objstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/daypack/daypack/internal/types"
)

// MemStore is an in-memory object store for tests. FailPuts makes the next
// N puts fail with a transient error, which is how upload retry paths are
// exercised without a network.
type MemStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	puts     int
	gets     int
	FailPuts int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func (s *MemStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPuts > 0 {
		s.FailPuts--
		return types.Transient(key, fmt.Errorf("injected put failure"))
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	s.puts++
	return nil
}

func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
	}
	s.gets++
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// PutCount returns the number of successful puts.
func (s *MemStore) PutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Keys returns all stored keys.
func (s *MemStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Corrupt overwrites the stored object at key, for conflict tests.
func (s *MemStore) Corrupt(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}
