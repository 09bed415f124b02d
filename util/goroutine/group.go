// Package goroutine runs bounded upstream fan-out with panic isolation.
package goroutine

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Group is a bounded set of fetch tasks. Tasks never fail the group: a task
// reports its own degradation and a panicking task is recovered and logged,
// so siblings always run to completion.
type Group struct {
	g      *errgroup.Group
	ctx    context.Context
	logger *zap.SugaredLogger
	panics atomic.Int32
}

// NewGroup creates a group that runs at most limit tasks at once.
// limit <= 0 means no limit.
func NewGroup(ctx context.Context, limit int, logger *zap.SugaredLogger) *Group {
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Group{g: g, ctx: ctx, logger: logger}
}

// Go schedules fn. It blocks while the group is at its limit.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.g.Go(func() error {
		defer Recover(name, g.logger, func(*PanicError) { g.panics.Add(1) })
		if g.ctx.Err() != nil {
			return nil
		}
		fn(g.ctx)
		return nil
	})
}

// Panics returns the number of tasks that panicked so far.
func (g *Group) Panics() int {
	return int(g.panics.Load())
}

// Wait blocks until every scheduled task returned and reports the context error, if any.
func (g *Group) Wait() error {
	_ = g.g.Wait()
	return g.ctx.Err()
}
