package writepolicy

import (
	"context"

	"go.uber.org/zap"
)

/*
InvalidateThrough invalidates every affected family synchronously, before the
mutation call returns. The next read of any affected view goes to the
backend.
*/
type InvalidateThrough struct {
	cache  Invalidator
	deps   Dependencies
	logger *zap.Logger
}

// NewInvalidateThrough creates the policy. A nil logger is replaced by a no-op one.
func NewInvalidateThrough(cache Invalidator, deps Dependencies, logger *zap.Logger) *InvalidateThrough {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidateThrough{cache: cache, deps: deps, logger: logger}
}

func (w *InvalidateThrough) OnWrite(_ context.Context, resource string) {
	invalidate(w.cache, w.deps.Affected(resource), w.logger)
}

// Close is a no-op: nothing is ever pending.
func (w *InvalidateThrough) Close() {}

func invalidate(cache Invalidator, families []string, logger *zap.Logger) {
	removed := 0
	for _, f := range families {
		removed += cache.InvalidateFamily(f)
	}
	logger.Debug("invalidated after write",
		zap.Strings("families", families), zap.Int("entries", removed))
}
