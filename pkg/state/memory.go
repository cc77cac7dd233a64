package state

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps values in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]interface{})}
}

func (s *MemoryStore) Get(_ context.Context, key string) (interface{}, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value interface{}) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) GetAll(_ context.Context, prefix string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{})
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateFunc(_ context.Context, key string, updateFn func(current interface{}) (interface{}, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := updateFn(s.data[key])
	if err != nil {
		return err
	}
	if next == nil {
		delete(s.data, key)
	} else {
		s.data[key] = next
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
