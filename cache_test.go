package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/krisalay/clinic-swr-cache"
	"github.com/krisalay/clinic-swr-cache/engine"
	"github.com/krisalay/clinic-swr-cache/eviction"
	"github.com/krisalay/clinic-swr-cache/key"
	"github.com/krisalay/clinic-swr-cache/refresh"
	"github.com/krisalay/clinic-swr-cache/types"
)

//
// ================= TEST CLOCK & LOADERS =================
//

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingLoader returns its values in order, repeating the last one.
type countingLoader struct {
	calls  atomic.Int32
	values []any
	errs   []error
}

func (l *countingLoader) Load(context.Context) (any, error) {
	i := int(l.calls.Add(1)) - 1
	var err error
	if i < len(l.errs) {
		err = l.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return l.values[min(i, len(l.values)-1)], nil
}

//
// ================= HELPER: CREATE CACHE =================
//

func newTestCache(t *testing.T, policies ...engine.Policy) (*cache.SWRCache, *testClock) {
	t.Helper()

	clock := newTestClock()
	eng := engine.NewCacheEngine(nil, nil, nil, nil)
	eng.Now = clock.Now
	eng.SetDefault(engine.Policy{TTL: 5 * time.Minute, Cooldown: 10 * time.Second})
	for _, p := range policies {
		eng.SetPolicy(p)
	}

	c := cache.NewSWRCache(4, 0, eviction.LRU, eng)
	t.Cleanup(c.Close)
	return c, clock
}

//
// ================= DEDUPLICATION =================
//

func TestConcurrentGetsShareOneLoad(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return []string{"dr. adeyemi", "dr. okafor"}, nil
	}

	const n = 25
	results := make([]cache.Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(ctx, "doctors:page=1", load)
		}(i)
	}

	require.Eventually(t, func() bool { return c.InFlight("doctors:page=1") == n },
		time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, cache.SourceNetwork, r.Source)
		assert.Equal(t, results[0].Value, r.Value)
	}
}

func TestConcurrentGetsShareOneFailure(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	boom := errors.New("503 service unavailable")
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Get(ctx, "stats", load).Err
		}(i)
	}

	require.Eventually(t, func() bool { return c.InFlight("stats") == n },
		time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.Same(t, boom, err)
	}
}

//
// ================= TTL & STALENESS =================
//

func TestFreshWithinTTLStaleAfter(t *testing.T) {
	ctx := context.Background()
	ttl := 5 * time.Minute
	c, clock := newTestCache(t, engine.Policy{Family: "stats", TTL: ttl})
	loader := &countingLoader{values: []any{"v1", "v2"}}

	r := c.Get(ctx, "stats", loader.Load)
	require.NoError(t, r.Err)
	assert.Equal(t, "v1", r.Value)
	assert.Equal(t, int32(1), loader.calls.Load())

	clock.Advance(ttl - time.Millisecond)
	r = c.Get(ctx, "stats", loader.Load)
	assert.Equal(t, "v1", r.Value)
	assert.False(t, r.IsStale)
	assert.Equal(t, cache.SourceCache, r.Source)
	c.Wait()
	assert.Equal(t, int32(1), loader.calls.Load())

	clock.Advance(time.Millisecond)
	r = c.Get(ctx, "stats", loader.Load)
	assert.Equal(t, "v1", r.Value)
	assert.True(t, r.IsStale)
	c.Wait()
	assert.Equal(t, int32(2), loader.calls.Load())

	v, fetchedAt, ok := c.Peek("stats")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, clock.Now(), fetchedAt)
}

func TestStaleGetsJoinOneRevalidation(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, engine.Policy{Family: "stats", TTL: time.Minute})

	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) (any, error) {
		if calls.Add(1) > 1 {
			<-release
		}
		return "totals", nil
	}

	c.Get(ctx, "stats", load)
	clock.Advance(time.Minute)

	for i := 0; i < 5; i++ {
		r := c.Get(ctx, "stats", load)
		assert.True(t, r.IsStale)
	}
	close(release)
	c.Wait()

	assert.Equal(t, int32(2), calls.Load())
}

func TestStatsScenario(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, engine.Policy{Family: "stats", TTL: 300000 * time.Millisecond})
	loader := &countingLoader{values: []any{map[string]int{"doctors": 12, "orders": 40}}}

	r := c.Get(ctx, "stats", loader.Load)
	require.NoError(t, r.Err)
	assert.Equal(t, clock.Now(), r.FetchedAt)

	clock.Advance(1000 * time.Millisecond)
	r = c.Get(ctx, "stats", loader.Load)

	assert.Equal(t, map[string]int{"doctors": 12, "orders": 40}, r.Value)
	c.Wait()
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestFailedRevalidationKeepsLastGoodValue(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, engine.Policy{Family: "stats", TTL: time.Minute, Cooldown: 30 * time.Second})

	boom := errors.New("timeout")
	loader := &countingLoader{values: []any{"good"}, errs: []error{nil, boom}}

	c.Get(ctx, "stats", loader.Load)
	clock.Advance(2 * time.Minute)

	r := c.Get(ctx, "stats", loader.Load)
	assert.Equal(t, "good", r.Value)
	c.Wait()

	v, _, ok := c.Peek("stats")
	require.True(t, ok)
	assert.Equal(t, "good", v)

	r = c.Get(ctx, "stats", loader.Load)
	assert.Equal(t, "good", r.Value)
	assert.True(t, r.IsStale)
	assert.Same(t, boom, r.Err)
	c.Wait()

	// cooldown never blocks revalidation of an already cached key
	assert.Equal(t, int32(3), loader.calls.Load())
}

//
// ================= COOLDOWN =================
//

func TestCooldownSuppressesBareRetries(t *testing.T) {
	ctx := context.Background()
	cooldown := 10 * time.Second
	c, clock := newTestCache(t, engine.Policy{Family: "doctors", TTL: time.Minute, Cooldown: cooldown})

	boom := errors.New("connection refused")
	loader := &countingLoader{values: []any{"list"}, errs: []error{boom}}

	r := c.Get(ctx, "doctors", loader.Load)
	assert.Same(t, boom, r.Err)
	assert.False(t, r.OK())

	clock.Advance(cooldown - time.Millisecond)
	r = c.Get(ctx, "doctors", loader.Load)
	assert.ErrorIs(t, r.Err, types.ErrUnavailable)
	assert.ErrorIs(t, r.Err, boom)
	assert.Nil(t, r.Value)
	assert.Equal(t, int32(1), loader.calls.Load())

	clock.Advance(time.Millisecond)
	r = c.Get(ctx, "doctors", loader.Load)
	require.NoError(t, r.Err)
	assert.Equal(t, "list", r.Value)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestForceRefreshBypassesCooldown(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, engine.Policy{Family: "doctors", TTL: time.Minute, Cooldown: time.Hour})

	loader := &countingLoader{values: []any{"list"}, errs: []error{errors.New("down")}}

	c.Get(ctx, "doctors", loader.Load)
	r := c.Get(ctx, "doctors", loader.Load)
	assert.ErrorIs(t, r.Err, types.ErrUnavailable)
	assert.Equal(t, int32(1), loader.calls.Load())

	r = c.Get(ctx, "doctors", loader.Load, cache.ForceRefresh())
	require.NoError(t, r.Err)
	assert.Equal(t, "list", r.Value)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestPerCallCooldownOverride(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, engine.Policy{Family: "orders", TTL: time.Minute, Cooldown: time.Hour})
	loader := &countingLoader{values: []any{"x"}, errs: []error{errors.New("down")}}

	c.Get(ctx, "orders", loader.Load, cache.WithCooldown(0))
	r := c.Get(ctx, "orders", loader.Load)

	require.NoError(t, r.Err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestForceRefreshOnCachedKeyServesCachedAndRevalidates(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, engine.Policy{Family: "medicines", TTL: time.Hour})
	loader := &countingLoader{values: []any{"v1", "v2"}}

	c.Get(ctx, "medicines", loader.Load)
	r := c.Get(ctx, "medicines", loader.Load, cache.ForceRefresh())
	assert.Equal(t, "v1", r.Value)
	assert.False(t, r.IsStale)
	c.Wait()

	v, _, _ := c.Peek("medicines")
	assert.Equal(t, "v2", v)
}

//
// ================= INVALIDATION =================
//

func TestInvalidateByPrefix(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	value := func(v string) types.LoadFunc {
		return func(context.Context) (any, error) { return v, nil }
	}

	c.Get(ctx, "doctors:p1", value("p1"))
	c.Get(ctx, "doctors:p2", value("p2"))
	c.Get(ctx, "stats", value("s"))

	assert.Equal(t, 2, c.InvalidateByPrefix("doctors"))

	_, _, ok := c.Peek("stats")
	assert.True(t, ok)
	_, _, ok = c.Peek("doctors:p1")
	assert.False(t, ok)
	_, _, ok = c.Peek("doctors:p2")
	assert.False(t, ok)
}

func TestInvalidateFamilyDoesNotTouchSiblings(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	load := func(context.Context) (any, error) { return 1, nil }

	c.Get(ctx, key.New("lab", nil), load)
	c.Get(ctx, key.New("lab", map[string]string{"page": "2"}), load)
	c.Get(ctx, key.New("labReports", nil), load)

	assert.Equal(t, 2, c.InvalidateFamily("lab"))
	assert.Equal(t, []string{"labReports"}, c.Keys())
}

func TestInvalidateThenGetLoadsAgain(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	loader := &countingLoader{values: []any{"a", "b"}}

	c.Get(ctx, "articles", loader.Load)
	assert.True(t, c.Invalidate("articles"))
	assert.False(t, c.Invalidate("articles"))

	r := c.Get(ctx, "articles", loader.Load)
	assert.Equal(t, "b", r.Value)
	assert.Equal(t, cache.SourceNetwork, r.Source)
}

func TestInvalidateDuringLoadDoesNotRepopulate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	release := make(chan struct{})
	done := make(chan cache.Result)
	go func() {
		done <- c.Get(ctx, "orders", func(context.Context) (any, error) {
			<-release
			return "before-mutation", nil
		})
	}()

	require.Eventually(t, func() bool { return c.InFlight("orders") == 1 }, time.Second, time.Millisecond)
	c.Invalidate("orders")
	close(release)

	r := <-done
	assert.Equal(t, "before-mutation", r.Value)
	_, _, ok := c.Peek("orders")
	assert.False(t, ok)
}

func TestInvalidateClearsCooldown(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, engine.Policy{Family: "users", TTL: time.Minute, Cooldown: time.Hour})
	loader := &countingLoader{values: []any{"u"}, errs: []error{errors.New("down")}}

	c.Get(ctx, "users", loader.Load)
	c.InvalidateFamily("users")

	r := c.Get(ctx, "users", loader.Load)
	require.NoError(t, r.Err)
	assert.Equal(t, "u", r.Value)
}

//
// ================= ORDERING =================
//

func TestOutOfOrderWriteIsDiscarded(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	releaseG1 := make(chan struct{})
	g1Done := make(chan cache.Result)
	go func() {
		g1Done <- c.Get(ctx, "stats", func(context.Context) (any, error) {
			<-releaseG1
			return "g1", nil
		})
	}()
	require.Eventually(t, func() bool { return c.InFlight("stats") == 1 }, time.Second, time.Millisecond)

	r := c.Get(ctx, "stats", func(context.Context) (any, error) { return "g2", nil }, cache.ForceRefresh())
	require.NoError(t, r.Err)
	assert.Equal(t, "g2", r.Value)

	close(releaseG1)
	assert.Equal(t, "g1", (<-g1Done).Value)
	c.Wait()

	v, _, ok := c.Peek("stats")
	require.True(t, ok)
	assert.Equal(t, "g2", v)
}

func TestFailureOfReplacedLoadIsNotSurfaced(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, engine.Policy{Family: "stats", TTL: time.Minute, Cooldown: time.Hour})

	r := c.Get(ctx, "stats", func(context.Context) (any, error) { return "v0", nil })
	require.NoError(t, r.Err)
	clock.Advance(2 * time.Minute)

	var failed atomic.Int32
	cancel := c.Subscribe("stats", func(ev refresh.Event) {
		if ev.Kind == refresh.Failed {
			failed.Add(1)
		}
	})
	defer cancel()

	releaseG1 := make(chan struct{})
	r = c.Get(ctx, "stats", func(context.Context) (any, error) {
		<-releaseG1
		return nil, errors.New("g1 timeout")
	})
	assert.True(t, r.IsStale)
	require.Eventually(t, func() bool { return c.InFlight("stats") == 1 }, time.Second, time.Millisecond)

	r = c.Get(ctx, "stats", func(context.Context) (any, error) { return "v2", nil }, cache.ForceRefresh())
	assert.Equal(t, "v0", r.Value)
	require.Eventually(t, func() bool {
		v, _, _ := c.Peek("stats")
		return v == "v2"
	}, time.Second, time.Millisecond)

	close(releaseG1)
	c.Wait()

	r = c.Get(ctx, "stats", func(context.Context) (any, error) { return "unused", nil })
	require.NoError(t, r.Err)
	assert.Equal(t, "v2", r.Value)
	assert.False(t, r.IsStale)
	assert.Zero(t, failed.Load())
}

func TestFailureAfterInvalidateDoesNotStartCooldown(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, engine.Policy{Family: "users", TTL: time.Minute, Cooldown: time.Hour})

	release := make(chan struct{})
	done := make(chan cache.Result)
	go func() {
		done <- c.Get(ctx, "users", func(context.Context) (any, error) {
			<-release
			return nil, errors.New("down")
		})
	}()
	require.Eventually(t, func() bool { return c.InFlight("users") == 1 }, time.Second, time.Millisecond)

	c.InvalidateFamily("users")
	close(release)
	assert.Error(t, (<-done).Err)
	c.Wait()

	r := c.Get(ctx, "users", func(context.Context) (any, error) { return "u", nil })
	require.NoError(t, r.Err)
	assert.Equal(t, "u", r.Value)
	assert.Equal(t, cache.SourceNetwork, r.Source)
}

//
// ================= DEDUP-ONLY FAMILY =================
//

func TestRequestFamilyOnlyDeduplicates(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	k := key.Request("GET", "/doctors", nil)

	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return []byte(`[]`), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Get(ctx, k, load)
		}()
	}
	require.Eventually(t, func() bool { return c.InFlight(k) == 3 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	r := c.Get(ctx, k, load)
	require.NoError(t, r.Err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Len())
}

//
// ================= FAILURE MODES =================
//

func TestCallerCancellationDoesNotCancelSharedLoad(t *testing.T) {
	c, _ := newTestCache(t)

	release := make(chan struct{})
	var loadErr error
	load := func(ctx context.Context) (any, error) {
		<-release
		loadErr = ctx.Err()
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { return c.InFlight("reviews") == 1 }, time.Second, time.Millisecond)
		cancel()
	}()

	r := c.Get(ctx, "reviews", load)
	assert.ErrorIs(t, r.Err, context.Canceled)

	close(release)
	c.Wait()
	assert.NoError(t, loadErr)

	v, _, ok := c.Peek("reviews")
	require.True(t, ok)
	assert.Equal(t, "done", v)
}

func TestLoadTimeout(t *testing.T) {
	c, _ := newTestCache(t, engine.Policy{Family: "orders", TTL: time.Minute, LoadTimeout: 10 * time.Millisecond})

	r := c.Get(context.Background(), "orders", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
}

func TestLoaderPanicSurfacesAsError(t *testing.T) {
	c, _ := newTestCache(t)

	r := c.Get(context.Background(), "articles", func(context.Context) (any, error) {
		panic("unexpected payload")
	})
	require.Error(t, r.Err)
	assert.Contains(t, r.Err.Error(), "panicked")
	assert.Equal(t, 0, c.InFlight("articles"))
}

//
// ================= NOTIFICATIONS & TYPED ACCESS =================
//

func TestSubscribersSeeBackgroundRevalidation(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, engine.Policy{Family: "stats", TTL: time.Minute})
	loader := &countingLoader{values: []any{1, 2}}

	var mu sync.Mutex
	var events []refresh.Event
	cancel := c.Subscribe("stats", func(e refresh.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	defer cancel()

	c.Get(ctx, "stats", loader.Load)
	clock.Advance(time.Minute)
	c.Get(ctx, "stats", loader.Load)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.False(t, events[0].Background)
	assert.True(t, events[1].Background)
	assert.Equal(t, refresh.Revalidated, events[1].Kind)
	assert.Equal(t, 2, events[1].Value)
	assert.Greater(t, events[1].Generation, events[0].Generation)
}

func TestGetAs(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	r := cache.GetAs(ctx, c, "doctors", func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	require.NoError(t, r.Err)
	assert.Equal(t, []string{"a", "b"}, r.Value)

	mismatch := cache.GetAs(ctx, c, "doctors", func(context.Context) (int, error) { return 1, nil })
	assert.Error(t, mismatch.Err)
	assert.False(t, mismatch.OK())
}

func TestBoundedCacheEvicts(t *testing.T) {
	ctx := context.Background()
	c := cache.NewSWRCache(1, 2, eviction.FIFO, nil)
	defer c.Close()
	load := func(context.Context) (any, error) { return 1, nil }

	c.Get(ctx, "a", load)
	c.Get(ctx, "b", load)
	c.Get(ctx, "c", load)

	assert.Equal(t, 2, c.Len())
	_, _, ok := c.Peek("a")
	assert.False(t, ok)
}
