package writepolicy

import (
	"context"
	"sort"
)

/*
This file defines what the cache does when the backend is written.

A successful mutation (a doctor created, an order status changed) makes every
cached view of the affected resources outdated. The write policy maps the
mutated resource to the families it affects and invalidates them, either
immediately or after coalescing a burst of mutations.
*/

// Invalidator is the part of the cache a write policy needs.
type Invalidator interface {
	InvalidateFamily(family string) int
}

/*
WritePolicy is the contract that all write policies must follow.
*/
type WritePolicy interface {

	// OnWrite is called after a mutation of resource succeeded.
	OnWrite(ctx context.Context, resource string)

	// Close flushes pending invalidations.
	Close()
}

// Dependencies maps a mutated resource to the families whose cached data it
// changes. A resource always affects its own family.
type Dependencies map[string][]string

// DefaultDependencies reflects how the clinic admin resources relate:
// dashboard stats aggregate nearly everything, compensation is computed from
// doctors and orders, review ratings show up on doctor profiles.
func DefaultDependencies() Dependencies {
	return Dependencies{
		"doctors":      {"stats", "compensation"},
		"users":        {"stats"},
		"labBookings":  {"stats", "labReports"},
		"labReports":   {"labBookings"},
		"medicines":    {"stats"},
		"orders":       {"stats", "compensation"},
		"articles":     {},
		"compensation": {"doctors"},
		"reviews":      {"doctors"},
	}
}

// Affected returns the sorted, de-duplicated families touched by a mutation
// of resource, including resource itself.
func (d Dependencies) Affected(resource string) []string {
	seen := map[string]struct{}{resource: {}}
	for _, f := range d[resource] {
		seen[f] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
