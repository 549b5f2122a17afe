package kv

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/agentic-research/kiln/api"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Value)}
}

// NewMemoryStoreFrom returns a store holding entries.
func NewMemoryStoreFrom(entries []api.Entry) *MemoryStore {
	s := NewMemoryStore()
	for _, e := range entries {
		s.entries[e.Key] = Value{Data: e.Value, Metadata: e.Metadata}
	}
	return s
}

// Put implements Writer.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, metadata api.Metadata) error {
	data := make([]byte, len(value))
	copy(data, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Value{Data: data, Metadata: metadata}
	return nil
}

// Get implements Reader.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.GetWithMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return v.Data, nil
}

// GetWithMetadata implements Reader.
func (s *MemoryStore) GetWithMetadata(_ context.Context, key string) (*Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Value{Data: v.Data, Metadata: v.Metadata}, nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *MemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

var _ Store = (*MemoryStore)(nil)
