package idempotency

import (
	"context"
	"sync"
)

// MemoryStore keeps used keys for the lifetime of the process. Enough for a
// single booking session; the Redis store covers restarts.
type MemoryStore struct {
	mu   sync.Mutex
	used map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{used: make(map[string]struct{})}
}

func (s *MemoryStore) MarkUsed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.used[key]; ok {
		return false, nil
	}
	s.used[key] = struct{}{}
	return true, nil
}

// Clear drops all tracked keys. Used on session teardown.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = make(map[string]struct{})
}
