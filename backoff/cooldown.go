// Package backoff tracks per-key cooldown windows after failed loads.
//
// A cooldown only suppresses starting a new load for a key that has nothing
// cached. Entries expire by comparing timestamps; no timers run.
package backoff

import (
	"sync"
	"time"
)

type window struct {
	until time.Time
	err   error
}

// Cooldowns is safe for concurrent use.
type Cooldowns struct {
	mu      sync.Mutex
	windows map[string]window
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{windows: make(map[string]window)}
}

// Trip records a failure for key. The key cools down until the given time;
// the error is kept so it can be surfaced passively next to stale data.
func (c *Cooldowns) Trip(key string, until time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[key] = window{until: until, err: err}
}

// Active reports whether key is cooling down at now, and the failure that
// caused it.
func (c *Cooldowns) Active(key string, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || !now.Before(w.until) {
		return false, nil
	}
	return true, w.err
}

// LastError returns the most recent failure for key, whether or not the
// cooldown window is still open. Cleared by a successful load.
func (c *Cooldowns) LastError(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windows[key].err
}

// Clear forgets key after a successful load.
func (c *Cooldowns) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
}

// ClearFunc forgets every key that matches.
func (c *Cooldowns) ClearFunc(match func(string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.windows {
		if match(k) {
			delete(c.windows, k)
		}
	}
}
