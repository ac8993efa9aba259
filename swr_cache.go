package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krisalay/clinic-swr-cache/engine"
	"github.com/krisalay/clinic-swr-cache/eviction"
	"github.com/krisalay/clinic-swr-cache/inflight"
	"github.com/krisalay/clinic-swr-cache/key"
	"github.com/krisalay/clinic-swr-cache/refresh"
	"github.com/krisalay/clinic-swr-cache/shard"
	"github.com/krisalay/clinic-swr-cache/types"
)

/*
SWRCache is the stale-while-revalidate fetch cache.
This struct is the orchestrator that connects:
- shards (the store of last known-good values)
- the in-flight registry (one load per key per generation)
- the engine (TTL, cooldown and revalidation rules, metrics, notifications)

One instance is created at application start and passed to every consumer.
Callers never write values directly; they only read through Get and remove
through the Invalidate methods, so every entry goes through the generation
bookkeeping.
*/
type SWRCache struct {
	shards   []*shard.Shard
	selector shard.Selector
	engine   *engine.CacheEngine
	loads    *inflight.Registry

	// writeMu orders store writes against invalidations: a load that was
	// detached by an invalidation can never write after it.
	writeMu sync.Mutex
}

// NewSWRCache creates a cache with the given number of shards. capacity <= 0
// keeps the store unbounded; otherwise it is split evenly across shards and
// enforced with the eviction policy.
func NewSWRCache(
	shards int,
	capacity int,
	policy eviction.PolicyType,
	eng *engine.CacheEngine,
) *SWRCache {
	if shards < 1 {
		shards = 1
	}
	if eng == nil {
		eng = engine.NewCacheEngine(nil, nil, nil, nil)
	}

	perShard := 0
	if capacity > 0 {
		perShard = max(1, capacity/shards)
	}

	s := make([]*shard.Shard, shards)
	for i := range s {
		s[i] = shard.NewShard(perShard, policy)
	}

	return &SWRCache{
		shards:   s,
		selector: shard.HashSelector{},
		engine:   eng,
		loads:    inflight.NewRegistry(),
	}
}

// Engine exposes the policy layer, e.g. to configure families.
func (c *SWRCache) Engine() *engine.CacheEngine { return c.engine }

func (c *SWRCache) shardFor(k string) *shard.Shard {
	return c.selector.Select(k, c.shards)
}

/*
Get returns the value for k.

 1. Nothing cached and k is cooling down → Result with ErrUnavailable,
    load is not called (unless ForceRefresh).
 2. Something cached → returned immediately. If it is stale, or ForceRefresh
    was given, a background revalidation is started (or joined). A failed
    revalidation leaves the cached value in place.
 3. Nothing cached → the caller waits for the load, shared with every
    concurrent caller of the same key.

ctx only bounds how long this caller waits. The load itself runs detached
from ctx's cancellation so other waiters still get its result.
*/
func (c *SWRCache) Get(ctx context.Context, k string, load types.LoadFunc, opts ...Option) Result {
	ov := collect(opts)
	p := c.engine.PolicyFor(k, ov)

	var ent *types.CacheEntry
	if p.Retain() {
		if e, ok := c.shardFor(k).Get(k); ok {
			ent = e
		}
	}

	action, err := c.engine.Decide(k, ent, p, ov.Force)
	switch action {
	case engine.ServeFresh:
		c.engine.Metrics.Hit(p.Family)
		return Result{Value: ent.Value, FetchedAt: ent.FetchedAt, Err: c.engine.LastError(k), Source: SourceCache}

	case engine.ServeStale:
		stale := c.engine.IsStale(ent, p, c.engine.Now())
		if stale {
			c.engine.Metrics.StaleServe(p.Family)
		} else {
			c.engine.Metrics.Hit(p.Family)
		}
		lastErr := c.engine.LastError(k)
		c.revalidate(ctx, k, load, p, ov.Force, ent.Generation)
		return Result{Value: ent.Value, IsStale: stale, FetchedAt: ent.FetchedAt, Err: lastErr, Source: SourceCache}

	case engine.Reject:
		return Result{Err: err, Source: SourceNone}
	}

	var cached func() bool
	if p.Retain() && !ov.Force {
		cached = func() bool {
			_, ok := c.shardFor(k).Get(k)
			return ok
		}
	}
	call, _ := c.loads.StartUnless(k, c.loader(ctx, k, load, p, false), ov.Force, cached)
	if call == nil {
		// Another load stored k after it was read above.
		return c.Get(ctx, k, load, opts...)
	}
	c.engine.Metrics.Miss(p.Family)

	select {
	case <-call.Done():
	case <-ctx.Done():
		return Result{Err: ctx.Err(), Source: SourceNone}
	}

	v, err := call.Result()
	if err != nil {
		return Result{Err: err, Source: SourceNone}
	}
	return Result{Value: v, FetchedAt: c.fetchedAt(k, p), Source: SourceNetwork}
}

func (c *SWRCache) fetchedAt(k string, p Policy) time.Time {
	if !p.Retain() {
		return c.engine.Now()
	}
	if ent, ok := c.shardFor(k).Get(k); ok {
		return ent.FetchedAt
	}
	return c.engine.Now()
}

// Policy is the resolved per-family configuration.
type Policy = engine.Policy

// revalidate starts or joins a background load for k. Unless forced, it is
// skipped when the store already moved past the generation seen as stale.
func (c *SWRCache) revalidate(ctx context.Context, k string, load types.LoadFunc, p Policy, force bool, seen uint64) {
	var refreshed func() bool
	if !force {
		refreshed = func() bool {
			ent, ok := c.shardFor(k).Get(k)
			return ok && ent.Generation > seen
		}
	}
	if _, started := c.loads.StartUnless(k, c.loader(ctx, k, load, p, true), force, refreshed); started {
		c.engine.Metrics.Revalidate(p.Family)
	}
}

// loader wraps load into the registry function that runs once per
// generation: it calls the loader, writes the store and settles bookkeeping
// before any waiter is released.
func (c *SWRCache) loader(ctx context.Context, k string, load types.LoadFunc, p Policy, background bool) inflight.Func {
	base := context.WithoutCancel(ctx)

	return func(call *inflight.Call) (any, error) {
		lctx := base
		if p.LoadTimeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(base, p.LoadTimeout)
			defer cancel()
		}

		started := c.engine.Now()
		v, err := safeLoad(lctx, k, load)
		s := engine.Settled{
			Key:        k,
			Policy:     p,
			Generation: call.Generation(),
			Value:      v,
			Err:        err,
			Background: background,
			Took:       c.engine.Now().Sub(started),
		}

		switch {
		case err != nil:
			s.Outdated = c.outdated(call, k)
		case p.Retain():
			s.Stored = c.store(call, k, v)
		}
		c.engine.OnLoaded(s)
		return v, err
	}
}

func safeLoad(ctx context.Context, k string, load types.LoadFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("loader for %q panicked: %v", k, r)
		}
	}()
	return load(ctx)
}

// outdated reports whether a settled call no longer speaks for k: it was
// detached by an invalidation, replaced by a forced restart, or the store
// already holds a newer generation.
func (c *SWRCache) outdated(call *inflight.Call, k string) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if call.Detached() || call.Superseded() {
		return true
	}
	ent, ok := c.shardFor(k).Get(k)
	return ok && ent.Generation > call.Generation()
}

func (c *SWRCache) store(call *inflight.Call, k string, v any) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if call.Detached() {
		return false
	}

	stored, evicted := c.shardFor(k).PutIfNewer(&types.CacheEntry{
		Key:        k,
		Value:      v,
		FetchedAt:  c.engine.Now(),
		Generation: call.Generation(),
	})
	if evicted != "" {
		c.engine.Logger.Debug("evicted entry to make room",
			zap.String("key", k), zap.String("evicted", evicted))
	}
	return stored
}

// Invalidate removes k. A load for k that is still in flight keeps serving
// its waiters but will not repopulate the store.
func (c *SWRCache) Invalidate(k string) bool {
	return c.invalidate(func(s string) bool { return s == k }) > 0
}

// InvalidateByPrefix removes every key starting with prefix and returns how
// many entries were removed.
func (c *SWRCache) InvalidateByPrefix(prefix string) int {
	return c.invalidate(func(s string) bool { return strings.HasPrefix(s, prefix) })
}

// InvalidateFamily removes the bare family key and every parameterised key
// of the family, without touching families that merely share a prefix.
func (c *SWRCache) InvalidateFamily(family string) int {
	return c.invalidate(func(s string) bool { return key.InFamily(s, family) })
}

func (c *SWRCache) invalidate(match func(string) bool) int {
	c.writeMu.Lock()
	c.loads.Detach(match)
	var removed []string
	for _, sh := range c.shards {
		removed = append(removed, sh.DeleteFunc(match)...)
	}
	c.writeMu.Unlock()

	c.engine.OnInvalidated(match, removed)
	return len(removed)
}

// Peek returns the cached value for k without loading or touching metrics.
func (c *SWRCache) Peek(k string) (any, time.Time, bool) {
	ent, ok := c.shardFor(k).Get(k)
	if !ok {
		return nil, time.Time{}, false
	}
	return ent.Value, ent.FetchedAt, true
}

// Keys returns every cached key, in no particular order.
func (c *SWRCache) Keys() []string {
	var keys []string
	for _, sh := range c.shards {
		keys = append(keys, sh.Keys()...)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *SWRCache) Len() int {
	n := int64(0)
	for _, sh := range c.shards {
		n += sh.Size()
	}
	return int(n)
}

// InFlight returns how many callers share the load for k (0 if none runs).
func (c *SWRCache) InFlight(k string) int {
	return c.loads.Waiters(k)
}

// Subscribe calls hook for every settled load and invalidation of keys
// starting with prefix. hook runs on the loading goroutine and must not block.
func (c *SWRCache) Subscribe(prefix string, hook func(refresh.Event)) (cancel func()) {
	return c.engine.Refresh.Subscribe(prefix, refresh.HookFunc(hook))
}

// Wait blocks until every load started so far has settled.
func (c *SWRCache) Wait() {
	c.loads.Wait()
}

/*
Close waits for background revalidations to settle. The cache holds no other
resources; it stays usable after Close.
*/
func (c *SWRCache) Close() {
	c.loads.Wait()
}

// GetAs is Get with a typed loader. A cached value of a different type is
// reported as an error rather than a panic.
func GetAs[T any](ctx context.Context, c *SWRCache, k string, load func(context.Context) (T, error), opts ...Option) TypedResult[T] {
	r := c.Get(ctx, k, func(ctx context.Context) (any, error) {
		return load(ctx)
	}, opts...)

	out := TypedResult[T]{IsStale: r.IsStale, Err: r.Err, FetchedAt: r.FetchedAt, Source: r.Source}
	if r.Value == nil {
		return out
	}
	v, ok := r.Value.(T)
	if !ok {
		var zero T
		out.Source = SourceNone
		out.Err = fmt.Errorf("cached value for %q is %T, not %T", k, r.Value, zero)
		return out
	}
	out.Value = v
	return out
}
