// Package inflight deduplicates concurrent loads of the same key.
//
// It plays the role singleflight.Group plays for a read-through cache, with
// two extra guarantees the cache relies on: every load carries a generation
// number assigned when it starts, and a running load can be detached from
// its key (by a forced refresh or an invalidation) so that its result is
// still delivered to its waiters but recognised as outdated by the store.
package inflight

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Func is the work performed for one generation of a key.
type Func func(c *Call) (any, error)

// Call is one in-flight load. All callers that joined it observe the same
// value and the same error.
type Call struct {
	key        string
	gen        uint64
	done       chan struct{}
	waiters    atomic.Int32
	detached   atomic.Bool
	superseded atomic.Bool

	val any
	err error
}

// Key returns the key being loaded.
func (c *Call) Key() string { return c.key }

// Generation returns the monotonically increasing number assigned at start.
func (c *Call) Generation() uint64 { return c.gen }

// Detached reports whether the call was dropped by Detach before it settled.
// Its result must not be stored.
func (c *Call) Detached() bool { return c.detached.Load() }

// Superseded reports whether a restart replaced the call with a newer
// generation. Its result may still be stored if nothing newer was.
func (c *Call) Superseded() bool { return c.superseded.Load() }

// Done is closed once the call has settled.
func (c *Call) Done() <-chan struct{} { return c.done }

// Result must only be called after Done is closed.
func (c *Call) Result() (any, error) { return c.val, c.err }

// Wait blocks until the call settles.
func (c *Call) Wait() (any, error) {
	<-c.done
	return c.val, c.err
}

// Registry maps keys to their in-flight call.
type Registry struct {
	mu    sync.Mutex
	next  uint64
	calls map[string]*Call
	wg    sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[string]*Call)}
}

/*
Start returns the in-flight call for key, or starts fn as a new generation.

  - If a call for key is in flight and restart is false, it is returned as is
    and started is false.
  - Otherwise a new call is registered and fn runs on its own goroutine. With
    restart a running call is marked superseded and the new generation
    replaces it in the registry.

Registration happens before Start returns, so a second Start for the same key
can never launch a duplicate load.
*/
func (r *Registry) Start(key string, fn Func, restart bool) (c *Call, started bool) {
	return r.StartUnless(key, fn, restart, nil)
}

// StartUnless is Start with a check run under the registry lock before a
// new generation is launched. If settled returns true no call is started and
// StartUnless returns (nil, false). A load that finished just before the
// check has already left its result in the store, so settled sees it.
func (r *Registry) StartUnless(key string, fn Func, restart bool, settled func() bool) (c *Call, started bool) {
	r.mu.Lock()
	existing, ok := r.calls[key]
	if ok && !restart {
		existing.waiters.Add(1)
		r.mu.Unlock()
		return existing, false
	}
	if settled != nil && settled() {
		r.mu.Unlock()
		return nil, false
	}
	if ok {
		existing.superseded.Store(true)
	}

	r.next++
	c = &Call{key: key, gen: r.next, done: make(chan struct{})}
	c.waiters.Store(1)
	r.calls[key] = c
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(c, fn)
	return c, true
}

func (r *Registry) run(c *Call, fn Func) {
	defer r.wg.Done()
	defer close(c.done)
	defer func() {
		r.mu.Lock()
		if r.calls[c.key] == c {
			delete(r.calls, c.key)
		}
		r.mu.Unlock()
	}()
	defer func() {
		if p := recover(); p != nil {
			c.val, c.err = nil, fmt.Errorf("load %q panicked: %v", c.key, p)
		}
	}()

	c.val, c.err = fn(c)
}

// Detach drops every in-flight call whose key matches. Detached calls keep
// running for the callers already waiting on them; the next Start for the
// key begins a new generation. It returns the detached keys.
func (r *Registry) Detach(match func(string) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for k, c := range r.calls {
		if match(k) {
			c.detached.Store(true)
			delete(r.calls, k)
			keys = append(keys, k)
		}
	}
	return keys
}

// Waiters returns how many callers share the in-flight call for key.
func (r *Registry) Waiters(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.calls[key]; ok {
		return int(c.waiters.Load())
	}
	return 0
}

// Len returns the number of keys with a load in flight.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Wait blocks until every started call, detached or not, has settled.
func (r *Registry) Wait() {
	r.wg.Wait()
}
