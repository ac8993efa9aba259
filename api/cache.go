package cache

import (
	"context"
	"time"

	swr "github.com/krisalay/clinic-swr-cache"
	"github.com/krisalay/clinic-swr-cache/refresh"
	"github.com/krisalay/clinic-swr-cache/types"
)

/*
Cache defines the PUBLIC API of the stale-while-revalidate cache.
Sharding, in-flight deduplication, generations, cooldowns and notifications
are hidden behind it. Consumers (the admin store, the REST client, the HTTP
server) depend on this interface, not on *SWRCache.
*/
type Cache interface {

	/*
		Get returns the value for key.

		BEHAVIOR:
		-------------------
		1. Cached and fresh: returned immediately, no load.
		2. Cached and stale (or ForceRefresh): returned immediately and a
		   background revalidation is started or joined.
		3. Not cached: the caller waits for the load, which is shared with
		   every concurrent caller of the same key.
		4. Not cached and cooling down after a failure: no load, Err wraps
		   types.ErrUnavailable. ForceRefresh bypasses the cooldown.
	*/
	Get(ctx context.Context, key string, load types.LoadFunc, opts ...swr.Option) swr.Result

	/*
		Invalidate removes a key. Loads already in flight for it still answer
		their waiters but do not repopulate the store.

		This operation is idempotent.
	*/
	Invalidate(key string) bool

	// InvalidateByPrefix removes every key starting with prefix.
	InvalidateByPrefix(prefix string) int

	// InvalidateFamily removes a family's bare and parameterised keys.
	InvalidateFamily(family string) int

	// Peek reads without loading.
	Peek(key string) (any, time.Time, bool)

	// Subscribe is notified after every settled load and invalidation.
	Subscribe(prefix string, hook func(refresh.Event)) (cancel func())

	/*
		Close waits for background revalidations to finish.

		WHEN TO CALL:
		-------------
		- Application shutdown
		- Tests cleanup
	*/
	Close()
}

var _ Cache = (*swr.SWRCache)(nil)
