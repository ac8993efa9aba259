package types

import "context"

// LoadFunc fetches the value for a single key, usually with one HTTP GET.
// It must be idempotent: the cache may call it again for the same key at any time.
type LoadFunc func(ctx context.Context) (any, error)

// Loader is the contract between the cache and whatever sits behind it.
type Loader interface {

	/*
		Load is called when the cache has no usable value for key, or when a cached
		value went stale and is being revalidated in the background.
		1. Cache checks memory → key missing or stale
		2. Cache calls Load(key) at most once per in-flight generation
		3. Loader fetches from the REST backend
		4. Cache stores the result and notifies subscribers
	*/
	Load(ctx context.Context, key string) (any, error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(ctx context.Context, key string) (any, error)

func (f LoaderFunc) Load(ctx context.Context, key string) (any, error) {
	return f(ctx, key)
}

// Bind turns a Loader into the LoadFunc for one key.
func Bind(l Loader, key string) LoadFunc {
	return func(ctx context.Context) (any, error) {
		return l.Load(ctx, key)
	}
}
