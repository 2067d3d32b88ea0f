package app

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"am/internal/domain"
)

// Task is a named unit of work run by Coordinate.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Coordinate runs tasks concurrently until all of them return. The first
// task error cancels the others and is returned as a *domain.TaskError.
//
// The outcome of a failure is decided when the failure is handled: if ctx
// is already done at that point the run counts as an operator interrupt and
// the error is dropped. An interrupt arriving later, while the remaining
// tasks shut down, does not clear a failure that was already recorded.
func Coordinate(ctx context.Context, logger domain.Logger, tasks ...Task) error {
	var (
		once  sync.Once
		fatal error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			err := t.Run(gctx)
			switch {
			case err != nil && ctx.Err() != nil:
				logger.Debug("task ended after interrupt", "task", t.Name, "err", err)
				return err
			case err != nil:
				taskErr := &domain.TaskError{Task: t.Name, Err: err}
				once.Do(func() {
					fatal = taskErr
					logger.Error("task failed, stopping", "task", t.Name, "err", err)
				})
				return taskErr
			case gctx.Err() == nil:
				logger.Warn("task exited unexpectedly", "task", t.Name)
			}
			return nil
		})
	}
	_ = g.Wait()

	if fatal != nil {
		return fatal
	}
	if ctx.Err() != nil {
		logger.Info("interrupted, shut down cleanly")
	}
	return nil
}
