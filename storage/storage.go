// Package storage provides a namespaced string key/value store used for
// settings that must survive restarts.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when the key has no value
var ErrNotFound = errors.New("storage: key not found")

// Store is a namespaced string-keyed store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// MemoryStore keeps values in process memory; nothing survives a restart
type MemoryStore struct {
	mu        sync.RWMutex
	namespace string
	values    map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(namespace string) *MemoryStore {
	return &MemoryStore{
		namespace: namespace,
		values:    make(map[string]string),
	}
}

func (s *MemoryStore) key(k string) string {
	return s.namespace + "/" + k
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[s.key(key)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[s.key(key)] = value
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, s.key(key))
	return nil
}

func (s *MemoryStore) Close() error { return nil }
