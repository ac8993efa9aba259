package types

import "time"

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle and receives the
family of the key (the resource name, e.g. "doctors" or "stats").
*/
type Metrics interface {

	// Hit is called when a fresh cached value is returned.
	Hit(family string)

	// Miss is called when nothing is cached and the caller has to wait for a load.
	Miss(family string)

	// StaleServe is called when a stale value is returned while a revalidation runs.
	StaleServe(family string)

	// Revalidate is called when a background revalidation is started.
	Revalidate(family string)

	// LoadFailure is called when a loader returns an error.
	LoadFailure(family string)

	// CooldownReject is called when a load is suppressed because the key is cooling down.
	CooldownReject(family string)

	// DiscardedWrite is called when a load result is dropped because a newer
	// generation was already stored or the key was invalidated meanwhile.
	DiscardedWrite(family string)

	// LoadDuration records how long one loader call took.
	LoadDuration(family string, d time.Duration)
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.
It lets the engine call metrics unconditionally without nil checks.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit(string)                         {}
func (NoopMetrics) Miss(string)                        {}
func (NoopMetrics) StaleServe(string)                  {}
func (NoopMetrics) Revalidate(string)                  {}
func (NoopMetrics) LoadFailure(string)                 {}
func (NoopMetrics) CooldownReject(string)              {}
func (NoopMetrics) DiscardedWrite(string)              {}
func (NoopMetrics) LoadDuration(string, time.Duration) {}
