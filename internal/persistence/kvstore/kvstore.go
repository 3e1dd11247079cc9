// Package kvstore is the byte-keyed persistent store behind the ledger.
package kvstore

import (
	"bytes"
	"sort"
	"sync"
)

type Write struct {
	Key   []byte
	Value []byte
}

// Store is a byte-keyed get/set store. Get returns nil for missing keys.
// Apply writes a whole batch or nothing. Scan visits entries in key order.
type Store interface {
	Get(key []byte) ([]byte, error)
	Apply(batch []Write) error
	Scan(fn func(key, value []byte) error) error
	Close() error
}

// SortWrites orders a batch by key.
func SortWrites(batch []Write) {
	sort.Slice(batch, func(i, j int) bool { return bytes.Compare(batch[i].Key, batch[j].Key) < 0 })
}

// MemStore keeps everything in a map. It is safe for concurrent use.
type MemStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemStore() *MemStore { return &MemStore{m: map[string][]byte{}} }

func (s *MemStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[string(key)]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (s *MemStore) Apply(batch []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range batch {
		s.m[string(w.Key)] = bytes.Clone(w.Value)
	}
	return nil
}

func (s *MemStore) Scan(fn func(key, value []byte) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]Write, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Write{Key: []byte(k), Value: bytes.Clone(s.m[k])})
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *MemStore) Close() error { return nil }
