package types

import "time"

// CacheEntry is the latest known-good value for one key.
// Entries are owned by the store; callers only ever see Value.
type CacheEntry struct {
	Key       string
	Value     any
	FetchedAt time.Time

	// Generation is the load that produced Value. A write carrying an older
	// generation than the stored one is discarded.
	Generation uint64
}

// Age returns how long ago the entry was fetched.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}
