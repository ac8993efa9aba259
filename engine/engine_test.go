package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/clinic-swr-cache/key"
	"github.com/krisalay/clinic-swr-cache/refresh"
	"github.com/krisalay/clinic-swr-cache/types"
)

type recordingMetrics struct {
	types.NoopMetrics
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: map[string]int{}}
}

func (m *recordingMetrics) inc(name, family string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name+"/"+family]++
}

func (m *recordingMetrics) count(name, family string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name+"/"+family]
}

func (m *recordingMetrics) LoadFailure(f string)    { m.inc("failure", f) }
func (m *recordingMetrics) CooldownReject(f string) { m.inc("reject", f) }
func (m *recordingMetrics) DiscardedWrite(f string) { m.inc("discard", f) }

func newTestEngine(now *time.Time) (*CacheEngine, *recordingMetrics) {
	m := newRecordingMetrics()
	e := NewCacheEngine(nil, nil, m, nil)
	e.Now = func() time.Time { return *now }
	return e, m
}

func TestPolicyForResolvesFamily(t *testing.T) {
	now := time.Unix(0, 0)
	e, _ := newTestEngine(&now)
	e.SetDefault(Policy{TTL: time.Minute})
	e.SetPolicy(Policy{Family: "stats", TTL: 5 * time.Minute})
	e.SetPolicy(Policy{Family: "doctors", TTL: time.Minute, Cooldown: 10 * time.Second})

	p := e.PolicyFor("stats", Overrides{})
	assert.Equal(t, 5*time.Minute, p.TTL)
	assert.Equal(t, "stats", p.Family)

	p = e.PolicyFor(key.New("doctors", map[string]string{"page": "3"}), Overrides{})
	assert.Equal(t, "doctors", p.Family)
	assert.Equal(t, 10*time.Second, p.Cooldown)

	p = e.PolicyFor("unknown:x=1", Overrides{})
	assert.Equal(t, "unknown", p.Family)
	assert.Equal(t, time.Minute, p.TTL)

	p = e.PolicyFor(key.Request("GET", "/stats", nil), Overrides{})
	assert.False(t, p.Retain())
	assert.Zero(t, p.Cooldown)
}

func TestPolicyOverrides(t *testing.T) {
	now := time.Unix(0, 0)
	e, _ := newTestEngine(&now)
	ttl, cd := 2*time.Second, time.Duration(0)

	p := e.PolicyFor("orders", Overrides{TTL: &ttl, Cooldown: &cd})
	assert.Equal(t, 2*time.Second, p.TTL)
	assert.Zero(t, p.Cooldown)
}

func TestDecide(t *testing.T) {
	now := time.Unix(1000, 0)
	e, m := newTestEngine(&now)
	p := Policy{Family: "stats", TTL: time.Minute, Cooldown: 10 * time.Second}

	fresh := &types.CacheEntry{Key: "stats", FetchedAt: now.Add(-30 * time.Second)}
	stale := &types.CacheEntry{Key: "stats", FetchedAt: now.Add(-time.Minute)}

	a, err := e.Decide("stats", fresh, p, false)
	assert.Equal(t, ServeFresh, a)
	assert.NoError(t, err)

	a, _ = e.Decide("stats", fresh, p, true)
	assert.Equal(t, ServeStale, a)

	a, _ = e.Decide("stats", stale, p, false)
	assert.Equal(t, ServeStale, a)

	a, _ = e.Decide("stats", nil, p, false)
	assert.Equal(t, Fetch, a)

	boom := errors.New("502")
	e.OnLoaded(Settled{Key: "stats", Policy: p, Err: boom})

	a, err = e.Decide("stats", nil, p, false)
	assert.Equal(t, Reject, a)
	assert.ErrorIs(t, err, types.ErrUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 1, m.count("reject", "stats"))

	a, _ = e.Decide("stats", nil, p, true)
	assert.Equal(t, Fetch, a)

	a, _ = e.Decide("stats", stale, p, false)
	assert.Equal(t, ServeStale, a, "cooldown never blocks serving cached data")

	now = now.Add(10 * time.Second)
	a, _ = e.Decide("stats", nil, p, false)
	assert.Equal(t, Fetch, a)
}

func TestOnLoadedSuccessClearsCooldownAndPublishes(t *testing.T) {
	now := time.Unix(0, 0)
	e, _ := newTestEngine(&now)
	p := Policy{Family: "doctors", TTL: time.Minute, Cooldown: time.Minute}

	var events []refresh.Event
	e.Refresh.Subscribe("", refresh.HookFunc(func(ev refresh.Event) { events = append(events, ev) }))

	e.OnLoaded(Settled{Key: "doctors", Policy: p, Err: errors.New("x"), Generation: 1})
	require.Error(t, e.LastError("doctors"))

	e.OnLoaded(Settled{Key: "doctors", Policy: p, Value: "list", Stored: true, Generation: 2, Background: true})
	assert.NoError(t, e.LastError("doctors"))

	require.Len(t, events, 2)
	assert.Equal(t, refresh.Failed, events[0].Kind)
	assert.Equal(t, refresh.Revalidated, events[1].Kind)
	assert.True(t, events[1].Background)
}

func TestOnLoadedCountsDiscardedWrites(t *testing.T) {
	now := time.Unix(0, 0)
	e, m := newTestEngine(&now)
	p := Policy{Family: "stats", TTL: time.Minute}

	e.OnLoaded(Settled{Key: "stats", Policy: p, Value: 1, Stored: false})
	assert.Equal(t, 1, m.count("discard", "stats"))

	e.OnLoaded(Settled{Key: "http:GET /x", Policy: DedupOnly("http"), Value: 1})
	assert.Equal(t, 0, m.count("discard", "http"))
}

func TestOnLoadedIgnoresOutdatedFailure(t *testing.T) {
	now := time.Unix(0, 0)
	e, _ := newTestEngine(&now)
	p := Policy{Family: "stats", TTL: time.Minute, Cooldown: time.Minute}

	var events []refresh.Event
	e.Refresh.Subscribe("", refresh.HookFunc(func(ev refresh.Event) { events = append(events, ev) }))

	e.OnLoaded(Settled{Key: "stats", Policy: p, Err: errors.New("late"), Generation: 1, Outdated: true})

	assert.NoError(t, e.LastError("stats"))
	a, _ := e.Decide("stats", nil, p, false)
	assert.Equal(t, Fetch, a)
	assert.Empty(t, events)
}

func TestOnInvalidated(t *testing.T) {
	now := time.Unix(0, 0)
	e, _ := newTestEngine(&now)
	p := Policy{Family: "orders", TTL: time.Minute, Cooldown: time.Hour}
	e.OnLoaded(Settled{Key: "orders:page=1", Policy: p, Err: errors.New("x")})

	var kinds []refresh.Kind
	e.Refresh.Subscribe("orders", refresh.HookFunc(func(ev refresh.Event) { kinds = append(kinds, ev.Kind) }))

	e.OnInvalidated(func(k string) bool { return key.InFamily(k, "orders") }, []string{"orders:page=2"})

	active, _ := e.Cooldowns.Active("orders:page=1", now)
	assert.False(t, active)
	assert.Equal(t, []refresh.Kind{refresh.Invalidated}, kinds)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "stale", ServeStale.String())
	assert.Equal(t, "action(9)", Action(9).String())
}
