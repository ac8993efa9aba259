package cache

import (
	"time"

	"github.com/krisalay/clinic-swr-cache/engine"
)

// Option adjusts a single Get.
type Option func(*engine.Overrides)

// WithTTL overrides the family's TTL for this call.
func WithTTL(d time.Duration) Option {
	return func(o *engine.Overrides) { o.TTL = &d }
}

// WithCooldown overrides the family's cooldown recorded if this call's load fails.
func WithCooldown(d time.Duration) Option {
	return func(o *engine.Overrides) { o.Cooldown = &d }
}

// ForceRefresh always starts a new load: it bypasses the TTL check and any
// cooldown. Used for explicit user-initiated refreshes.
func ForceRefresh() Option {
	return func(o *engine.Overrides) { o.Force = true }
}

// ForceRefreshIf is ForceRefresh when force is true and a no-op otherwise.
func ForceRefreshIf(force bool) Option {
	return func(o *engine.Overrides) {
		if force {
			o.Force = true
		}
	}
}

func collect(opts []Option) engine.Overrides {
	var o engine.Overrides
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
