package cache

import "time"

// Source says where a Result's value came from.
type Source string

const (
	// SourceCache: served from the store, possibly stale.
	SourceCache Source = "cache"
	// SourceNetwork: the caller waited for a load.
	SourceNetwork Source = "network"
	// SourceNone: no value; see Err.
	SourceNone Source = "none"
)

/*
Result is what Get returns. The cache never panics or throws past its own
boundary: failures are reported through Err.

  - Value from cache with Err set: the last background revalidation failed.
    The value is still the last known-good one and should be displayed.
  - No value with Err set: the first load for the key failed, or the key is
    cooling down (errors.Is(Err, types.ErrUnavailable)).
*/
type Result struct {
	Value     any
	IsStale   bool
	Err       error
	FetchedAt time.Time
	Source    Source
}

// OK reports whether Result carries a value.
func (r Result) OK() bool { return r.Source != SourceNone }

// TypedResult is Result with a concrete value type.
type TypedResult[T any] struct {
	Value     T
	IsStale   bool
	Err       error
	FetchedAt time.Time
	Source    Source
}

func (r TypedResult[T]) OK() bool { return r.Source != SourceNone }

// Untyped converts back to a Result, for callers that handle every family
// the same way.
func (r TypedResult[T]) Untyped() Result {
	return Result{Value: r.Value, IsStale: r.IsStale, Err: r.Err, FetchedAt: r.FetchedAt, Source: r.Source}
}
