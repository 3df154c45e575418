package blobstore

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps blobs in a map. Used for tests and throwaway instances.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	// FailDelete makes Delete return an error, for exercising cleanup paths
	FailDelete bool
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if s.FailDelete {
		return fmt.Errorf("delete %s: store unavailable", key)
	}
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

// Get returns a stored blob
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	return data, ok
}

// Len returns the number of stored blobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
