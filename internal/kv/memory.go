package kv

import (
	"context"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process memory. Nothing survives a restart.
type MemoryStore struct {
	entries *cache.Cache
}

// NewMemoryStore creates an empty in-memory store whose entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, key, def string) (string, error) {
	if v, found := s.entries.Get(key); found {
		return v.(string), nil
	}
	return def, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.entries.Set(key, value, cache.NoExpiration)
	return nil
}
