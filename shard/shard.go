package shard

import (
	"sync"

	"github.com/krisalay/clinic-swr-cache/eviction"
	"github.com/krisalay/clinic-swr-cache/types"
)

/*
A Shard is one independent slice of the cache store.

Each shard has its own copy-on-write map, its own optional eviction policy and
its own write mutex, so writes to unrelated keys never contend.
*/
type Shard struct {
	store ShardStore

	// eviction is nil when the shard is unbounded.
	eviction eviction.Policy
	limit    int

	// mu serializes writers and eviction bookkeeping. Reads of an
	// unbounded shard never take it.
	mu sync.Mutex
}

// NewShard creates a shard. limit <= 0 means unbounded.
func NewShard(limit int, policy eviction.PolicyType) *Shard {
	s := &Shard{store: NewCOWStore()}
	if limit > 0 {
		s.limit = limit
		s.eviction = eviction.NewEvictionPolicy(policy)
	}
	return s
}

// Get returns the entry for key.
func (s *Shard) Get(key string) (*types.CacheEntry, bool) {
	ent, ok := s.store.Get(key)
	if ok && s.eviction != nil {
		s.mu.Lock()
		s.eviction.OnGet(key)
		s.mu.Unlock()
	}
	return ent, ok
}

/*
PutIfNewer stores ent unless the shard already holds an entry for the same key
from a newer generation. FetchedAt never moves backwards for a key.

Returns whether ent was stored and the key evicted to make room, if any.
*/
func (s *Shard) PutIfNewer(ent *types.CacheEntry) (stored bool, evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.store.Get(ent.Key)
	if exists {
		if old.Generation >= ent.Generation {
			return false, ""
		}
		if ent.FetchedAt.Before(old.FetchedAt) {
			ent.FetchedAt = old.FetchedAt
		}
	}

	if !exists && s.eviction != nil && s.store.Size() >= int64(s.limit) {
		if victim := s.eviction.Evict(); victim != "" {
			s.store.Delete(victim)
			evicted = victim
		}
	}

	s.store.Put(ent.Key, ent)
	if s.eviction != nil {
		s.eviction.OnPut(ent.Key)
	}
	return true, evicted
}

// Delete removes key.
func (s *Shard) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eviction != nil {
		s.eviction.Remove(key)
	}
	return s.store.Delete(key)
}

// DeleteFunc removes all keys matching match and returns them.
func (s *Shard) DeleteFunc(match func(string) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.store.DeleteFunc(match)
	if s.eviction != nil {
		for _, k := range removed {
			s.eviction.Remove(k)
		}
	}
	return removed
}

func (s *Shard) Keys() []string { return s.store.Keys() }

func (s *Shard) Size() int64 { return s.store.Size() }
