// Package memory is an in-process ports.Store, used as the default driver
// and in tests.
package memory

import (
	"context"
	"sync"
)

type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func New() *Store {
	return &Store{buckets: make(map[string]map[string][]byte)}
}

func (s *Store) Get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.buckets[bucket][key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (s *Store) Put(_ context.Context, bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[bucket] = b
	}
	b[key] = clone(value)
	return nil
}

func (s *Store) List(_ context.Context, bucket string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.buckets[bucket]))
	for k, v := range s.buckets[bucket] {
		out[k] = clone(v)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
