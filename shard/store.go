package shard

import (
	"sync/atomic"

	"github.com/krisalay/clinic-swr-cache/types"
)

/*
This file defines how entries are held inside a shard.

Reads vastly outnumber writes for a dashboard cache: every render reads, only
a completed load writes. The store is therefore copy-on-write:
- Readers load an immutable map snapshot without locking
- Writers (serialized by the shard mutex) build a new map and swap it in
*/

// ShardStore is the interface used by a shard to keep entries.
type ShardStore interface {
	Get(string) (*types.CacheEntry, bool)
	Put(string, *types.CacheEntry)
	Delete(string) bool
	DeleteFunc(func(string) bool) []string
	Keys() []string
	Size() int64
}

type cowStore struct {
	data atomic.Pointer[map[string]*types.CacheEntry]
	size atomic.Int64
}

func NewCOWStore() *cowStore {
	s := &cowStore{}
	m := make(map[string]*types.CacheEntry)
	s.data.Store(&m)
	return s
}

func (s *cowStore) snapshot() map[string]*types.CacheEntry {
	return *s.data.Load()
}

func (s *cowStore) swap(n map[string]*types.CacheEntry) {
	s.data.Store(&n)
	s.size.Store(int64(len(n)))
}

// Get retrieves an entry from the current snapshot.
func (s *cowStore) Get(key string) (*types.CacheEntry, bool) {
	ent, ok := s.snapshot()[key]
	return ent, ok
}

// Put copies the snapshot, sets key and publishes the new map.
// Entries are never mutated after publication; a replacement is a new pointer.
func (s *cowStore) Put(key string, ent *types.CacheEntry) {
	old := s.snapshot()
	n := make(map[string]*types.CacheEntry, len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	n[key] = ent
	s.swap(n)
}

// Delete removes key and reports whether it was present.
func (s *cowStore) Delete(key string) bool {
	return len(s.DeleteFunc(func(k string) bool { return k == key })) > 0
}

// DeleteFunc removes every key for which match returns true and returns them.
// If nothing matches the snapshot is left untouched.
func (s *cowStore) DeleteFunc(match func(string) bool) []string {
	old := s.snapshot()

	var removed []string
	for k := range old {
		if match(k) {
			removed = append(removed, k)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	n := make(map[string]*types.CacheEntry, len(old)-len(removed))
	for k, v := range old {
		if !match(k) {
			n[k] = v
		}
	}
	s.swap(n)
	return removed
}

func (s *cowStore) Keys() []string {
	m := s.snapshot()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (s *cowStore) Size() int64 {
	return s.size.Load()
}
