// This file defines when a cached entry counts as stale.

package expiration

import (
	"time"

	"github.com/krisalay/clinic-swr-cache/types"
)

/*
Strategy decides staleness. Stale entries are never removed by age: they
stay servable and only trigger a background revalidation. The strategy is
therefore a pure function of the entry, the family's TTL and the clock.
*/
type Strategy interface {
	IsStale(ent *types.CacheEntry, ttl time.Duration, now time.Time) bool
}

// AfterWrite treats an entry as stale once ttl has elapsed since it was fetched.
// An entry fetched at t0 is fresh during [t0, t0+ttl) and stale from t0+ttl on.
type AfterWrite struct{}

func (AfterWrite) IsStale(ent *types.CacheEntry, ttl time.Duration, now time.Time) bool {
	return ent.Age(now) >= ttl
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ent *types.CacheEntry, ttl time.Duration, now time.Time) bool

func (f StrategyFunc) IsStale(ent *types.CacheEntry, ttl time.Duration, now time.Time) bool {
	return f(ent, ttl, now)
}
