package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krisalay/clinic-swr-cache/backoff"
	"github.com/krisalay/clinic-swr-cache/expiration"
	"github.com/krisalay/clinic-swr-cache/key"
	"github.com/krisalay/clinic-swr-cache/refresh"
	"github.com/krisalay/clinic-swr-cache/types"
)

/*
CacheEngine is the policy layer of the cache.

It decides:
  - Which TTL, cooldown and timeout apply to a key
  - Whether a lookup is served fresh, served stale with a background
    revalidation, fetched in the foreground, or rejected by a cooldown
  - What bookkeeping follows a settled load (cooldowns, metrics, logs,
    subscriber notifications)

It does NOT:
- Store data
- Track in-flight loads
- Handle sharding or locking of entries
*/
type CacheEngine struct {

	// Expiration decides when an entry is stale.
	Expiration expiration.Strategy

	// Refresh fans out settled loads to subscribers.
	Refresh *refresh.Notifier

	// Cooldowns remembers recent failures per key.
	Cooldowns *backoff.Cooldowns

	Metrics types.Metrics
	Logger  *zap.Logger

	// Now is the clock. Tests replace it.
	Now func() time.Time

	mu       sync.RWMutex
	fallback Policy
	policies map[string]Policy
}

/*
NewCacheEngine creates a CacheEngine. Any nil collaborator gets a working
default so the rest of the code can call it unconditionally.
*/
func NewCacheEngine(
	exp expiration.Strategy,
	notifier *refresh.Notifier,
	metrics types.Metrics,
	logger *zap.Logger,
) *CacheEngine {
	if exp == nil {
		exp = expiration.AfterWrite{}
	}
	if notifier == nil {
		notifier = refresh.NewNotifier()
	}
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CacheEngine{
		Expiration: exp,
		Refresh:    notifier,
		Cooldowns:  backoff.NewCooldowns(),
		Metrics:    metrics,
		Logger:     logger,
		Now:        time.Now,
		fallback:   Policy{TTL: time.Minute},
		policies: map[string]Policy{
			key.HTTPFamily: DedupOnly(key.HTTPFamily),
		},
	}
}

// SetDefault sets the policy for families without their own.
func (e *CacheEngine) SetDefault(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = p
}

// SetPolicy configures one family. p.Family must be set.
func (e *CacheEngine) SetPolicy(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Family] = p
}

// PolicyFor resolves the policy for k with per-call overrides applied.
func (e *CacheEngine) PolicyFor(k string, ov Overrides) Policy {
	family := key.Family(k)

	e.mu.RLock()
	p, ok := e.policies[family]
	if !ok {
		p = e.fallback
	}
	e.mu.RUnlock()

	p.Family = family
	return ov.apply(p)
}

// Action is the outcome of Decide.
type Action int

const (
	// Fetch: nothing usable is cached, the caller waits for a load.
	Fetch Action = iota
	// ServeFresh: return the cached value, no load.
	ServeFresh
	// ServeStale: return the cached value and revalidate in the background.
	ServeStale
	// Reject: nothing cached and the key is cooling down; do not load.
	Reject
)

func (a Action) String() string {
	switch a {
	case Fetch:
		return "fetch"
	case ServeFresh:
		return "fresh"
	case ServeStale:
		return "stale"
	case Reject:
		return "reject"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

/*
Decide applies the revalidation rules to one lookup.

 1. Cached and fresh → ServeFresh (unless forced).
 2. Cached and stale, or forced → ServeStale. Cooldowns never block this.
 3. Not cached, cooling down, not forced → Reject with the error that
    tripped the cooldown.
 4. Otherwise → Fetch.

ent is nil when nothing is cached.
*/
func (e *CacheEngine) Decide(k string, ent *types.CacheEntry, p Policy, force bool) (Action, error) {
	now := e.Now()

	if ent != nil {
		if force || e.IsStale(ent, p, now) {
			return ServeStale, nil
		}
		return ServeFresh, nil
	}

	if !force {
		if active, cause := e.Cooldowns.Active(k, now); active {
			e.Metrics.CooldownReject(p.Family)
			e.Logger.Debug("load suppressed by cooldown",
				zap.String("key", k), zap.NamedError("cause", cause))
			if cause == nil {
				return Reject, types.ErrUnavailable
			}
			return Reject, fmt.Errorf("%w: %w", types.ErrUnavailable, cause)
		}
	}
	return Fetch, nil
}

// IsStale reports whether ent is past the policy's TTL at now.
func (e *CacheEngine) IsStale(ent *types.CacheEntry, p Policy, now time.Time) bool {
	return e.Expiration.IsStale(ent, p.TTL, now)
}

// LastError returns the failure recorded for k, if any.
func (e *CacheEngine) LastError(k string) error {
	return e.Cooldowns.LastError(k)
}

// Settled describes a finished load.
type Settled struct {
	Key        string
	Policy     Policy
	Generation uint64
	Value      any
	Err        error
	Background bool
	Stored     bool
	// Outdated marks a load that was detached or replaced by a newer
	// generation before it settled. Its failure is not recorded.
	Outdated bool
	Took     time.Duration
}

// OnLoaded runs the bookkeeping for a settled load.
func (e *CacheEngine) OnLoaded(s Settled) {
	family := s.Policy.Family
	e.Metrics.LoadDuration(family, s.Took)

	ev := refresh.Event{
		Key:        s.Key,
		Family:     family,
		Generation: s.Generation,
		Background: s.Background,
		At:         e.Now(),
	}

	if s.Err != nil {
		e.Metrics.LoadFailure(family)
		if s.Outdated {
			e.Logger.Debug("ignored failure of outdated load",
				zap.String("key", s.Key), zap.Uint64("generation", s.Generation), zap.Error(s.Err))
			return
		}
		if s.Policy.Cooldown > 0 {
			e.Cooldowns.Trip(s.Key, ev.At.Add(s.Policy.Cooldown), s.Err)
		}

		fields := []zap.Field{
			zap.String("key", s.Key),
			zap.Uint64("generation", s.Generation),
			zap.Duration("cooldown", s.Policy.Cooldown),
			zap.Error(s.Err),
		}
		if s.Background {
			e.Logger.Warn("background revalidation failed, keeping stale value", fields...)
		} else {
			e.Logger.Debug("load failed", fields...)
		}

		ev.Kind, ev.Err = refresh.Failed, s.Err
		e.Refresh.Publish(ev)
		return
	}

	e.Cooldowns.Clear(s.Key)

	if !s.Policy.Retain() {
		return
	}
	if !s.Stored {
		e.Metrics.DiscardedWrite(family)
		e.Logger.Debug("discarded outdated load result",
			zap.String("key", s.Key), zap.Uint64("generation", s.Generation))
		return
	}

	ev.Kind, ev.Value = refresh.Revalidated, s.Value
	e.Refresh.Publish(ev)
}

// OnInvalidated clears cooldowns for matching keys and notifies subscribers
// about the removed entries.
func (e *CacheEngine) OnInvalidated(match func(string) bool, removed []string) {
	e.Cooldowns.ClearFunc(match)

	now := e.Now()
	for _, k := range removed {
		e.Refresh.Publish(refresh.Event{
			Kind:   refresh.Invalidated,
			Key:    k,
			Family: key.Family(k),
			At:     now,
		})
	}
	if len(removed) > 0 {
		e.Logger.Debug("invalidated entries", zap.Strings("keys", removed))
	}
}

// IsUnavailable reports whether err came from a cooldown rejection.
func IsUnavailable(err error) bool {
	return errors.Is(err, types.ErrUnavailable)
}
