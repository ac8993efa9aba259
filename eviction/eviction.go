package eviction

/*
This file defines how the store picks a victim when a bounded shard is full.

Eviction is optional. The default configuration is unbounded: entries then
leave the store only through explicit invalidation, and stale entries stay
servable forever. A capacity is only for deployments that cache many
parameterised list views (every page of every search) and need a memory cap.
*/

/*
Policy is the interface that all eviction strategies must follow.
The store does not care how eviction works internally; it calls these
methods while holding the shard lock.
*/
type Policy interface {

	// OnGet is called whenever a key is served from the store.
	OnGet(string)

	// OnPut is called whenever a key is written (inserted or replaced).
	OnPut(string)

	// Remove is called when a key is invalidated rather than evicted.
	Remove(string)

	// Evict returns the key to drop, or "" if nothing is tracked.
	Evict() string

	// Len returns the number of tracked keys.
	Len() int
}

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// LRU evicts the key that has not been served for the longest time.
	LRU PolicyType = "lru"

	// FIFO evicts the key that was first inserted, regardless of reads.
	FIFO PolicyType = "fifo"
)

// NewEvictionPolicy is a small factory function.
// Unknown types fall back to LRU.
func NewEvictionPolicy(t PolicyType) Policy {
	switch t {
	case FIFO:
		return newFIFO()
	default:
		return newLRU()
	}
}

// ParsePolicyType validates a configured policy name.
func ParsePolicyType(s string) (PolicyType, bool) {
	switch PolicyType(s) {
	case LRU, "":
		return LRU, true
	case FIFO:
		return FIFO, true
	}
	return "", false
}
