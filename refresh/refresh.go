// This file defines the refresh notification hook.
// Subscribers learn about settled loads so they can re-render with the new
// value instead of polling the cache.

package refresh

import (
	"strings"
	"sync"
	"time"
)

// Kind says what happened to a key.
type Kind string

const (
	// Revalidated: a load succeeded and its value was stored.
	Revalidated Kind = "revalidated"
	// Failed: a load returned an error. Any cached value is left in place.
	Failed Kind = "failed"
	// Invalidated: the key was removed by an explicit invalidation.
	Invalidated Kind = "invalidated"
)

// Event describes one settled load or invalidation.
type Event struct {
	Kind       Kind
	Key        string
	Family     string
	Value      any
	Err        error
	Generation uint64
	Background bool
	At         time.Time
}

/*
Hook is called for every event. OnEvent runs on the goroutine that settled the
load, so it MUST be fast and non-blocking.
*/
type Hook interface {
	OnEvent(Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(Event)

func (f HookFunc) OnEvent(e Event) { f(e) }

type subscription struct {
	id     uint64
	prefix string
	hook   Hook
}

// Notifier fans events out to subscribers whose prefix matches the key.
// The empty prefix receives everything.
type Notifier struct {
	mu   sync.RWMutex
	next uint64
	subs []subscription
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers hook for keys starting with prefix. The returned
// function removes the subscription; calling it twice is harmless.
func (n *Notifier) Subscribe(prefix string, hook Hook) (cancel func()) {
	n.mu.Lock()
	n.next++
	id := n.next
	n.subs = append(n.subs, subscription{id: id, prefix: prefix, hook: hook})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every matching subscriber.
func (n *Notifier) Publish(e Event) {
	n.mu.RLock()
	matched := make([]Hook, 0, len(n.subs))
	for _, s := range n.subs {
		if strings.HasPrefix(e.Key, s.prefix) {
			matched = append(matched, s.hook)
		}
	}
	n.mu.RUnlock()

	for _, h := range matched {
		h.OnEvent(e)
	}
}

// Len returns the number of subscriptions.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
