package async

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/academy/pkg/observability"
)

// SafeGo executes fn in a goroutine with:
// - a context detached from parentCtx cancellation but carrying its values
// - panic recovery
// - timeout enforcement
// - error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	spawn(parentCtx, timeout, taskName, fn, nil)
}

// spawn starts the task goroutine. done runs after recovery and logging have finished.
func spawn(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error, done func()) {
	go func() {
		if done != nil {
			defer done()
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		logger := observability.FromContext(ctx).WithField("task", taskName)
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// Group tracks SafeGo tasks so callers such as shutdown hooks can wait for them
type Group struct {
	wg sync.WaitGroup
}

// Go runs fn like SafeGo and tracks it in the group
func (g *Group) Go(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	g.wg.Add(1)
	spawn(parentCtx, timeout, taskName, fn, g.wg.Done)
}

// Wait blocks until every tracked task has finished or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
