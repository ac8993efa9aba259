package writepolicy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// This file implements the deferred ("write-back") invalidation policy.

/*
InvalidateBack coalesces invalidations. Bulk edits in the admin UI (deleting
twenty orders one by one) would otherwise invalidate and refetch the same
families twenty times. Mutations are queued; the worker waits until no new
mutation arrived for delay and then invalidates the union of affected
families once.

Invalidations are never dropped: if the queue is full the mutation is
invalidated synchronously instead.
*/
type InvalidateBack struct {
	cache  Invalidator
	deps   Dependencies
	delay  time.Duration
	logger *zap.Logger

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once
}

// NewInvalidateBack starts the worker. buffer bounds the number of queued
// mutations.
func NewInvalidateBack(cache Invalidator, deps Dependencies, delay time.Duration, buffer int, logger *zap.Logger) *InvalidateBack {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}

	w := &InvalidateBack{
		cache:  cache,
		deps:   deps,
		delay:  delay,
		logger: logger,
		ch:     make(chan string, buffer),
	}

	w.wg.Add(1)
	go w.worker()
	return w
}

func (w *InvalidateBack) OnWrite(_ context.Context, resource string) {
	select {
	case w.ch <- resource:
	default:
		w.logger.Warn("invalidation queue full, invalidating synchronously",
			zap.String("resource", resource))
		invalidate(w.cache, w.deps.Affected(resource), w.logger)
	}
}

func (w *InvalidateBack) worker() {
	defer w.wg.Done()

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.delay)
	timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		families := map[string]struct{}{}
		for r := range pending {
			for _, f := range w.deps.Affected(r) {
				families[f] = struct{}{}
			}
		}
		list := make([]string, 0, len(families))
		for f := range families {
			list = append(list, f)
		}
		invalidate(w.cache, list, w.logger)
		pending = map[string]struct{}{}
	}

	for {
		select {
		case r, ok := <-w.ch:
			if !ok {
				timer.Stop()
				flush()
				return
			}
			pending[r] = struct{}{}
			timer.Reset(w.delay)
		case <-timer.C:
			flush()
		}
	}
}

/*
Close stops accepting mutations and flushes whatever is pending.
Mutations after Close must not be reported.
*/
func (w *InvalidateBack) Close() {
	w.once.Do(func() {
		close(w.ch)
		w.wg.Wait()
	})
}
