package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process embedding cache and exclusion list, used when
// no data directory is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	embeddings map[string][]float32
	excluded   map[string]struct{}
	order      []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		embeddings: make(map[string][]float32),
		excluded:   make(map[string]struct{}),
	}
}

// Get returns the cached embedding for key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.embeddings[key]
	return v, ok, nil
}

// Put caches an embedding.
func (s *MemoryStore) Put(ctx context.Context, key string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[key] = slices.Clone(vec)
	return nil
}

// Contains reports whether key was excluded.
func (s *MemoryStore) Contains(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.excluded[key]
	return ok, nil
}

// Add appends keys to the exclusion list.
func (s *MemoryStore) Add(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := s.excluded[k]; ok {
			continue
		}
		s.excluded[k] = struct{}{}
		s.order = append(s.order, k)
	}
	return nil
}

// Keys returns the excluded keys in insertion order.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
