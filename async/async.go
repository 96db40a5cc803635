// Package async runs fire-and-forget background tasks.
//
// Best-effort side effects of a request (hash upgrades, email delivery)
// run here, detached from the request/response lifecycle: the task gets
// its own context so it survives the response being written, a panic in
// a task never crashes the process, and a failed task is logged and
// dropped rather than surfaced to the caller.
package async

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultTimeout bounds a single background task.
const DefaultTimeout = 30 * time.Second

// Runner executes named background tasks.
type Runner struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// Option configures the Runner.
type Option func(*Runner)

// WithTimeout sets the per-task deadline. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRunner creates a Runner logging task failures to logger.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{logger: logger, timeout: DefaultTimeout}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Go runs fn in a goroutine with its own deadline. Errors and panics
// are logged under the task name and otherwise swallowed.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked",
					"task", name, "panic", rec, "stack", string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			r.logger.Warn("background task failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until all started tasks have finished. Used on shutdown
// and in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}
