// Package pool bounds concurrent upstream requests and tracks per-unit
// failures across a run.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrTooManyErrors is returned once a run has recorded more failures than its budget allows.
var ErrTooManyErrors = errors.New("too many errors")

// Limiter caps the number of in-flight requests against one provider.
type Limiter struct {
	name string
	size int
	sem  *semaphore.Weighted
}

// NewLimiter returns a limiter admitting at most n concurrent holders.
func NewLimiter(name string, n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{name: name, size: n, sem: semaphore.NewWeighted(int64(n))}
}

// Name returns the provider name the limiter guards.
func (l *Limiter) Name() string { return l.name }

// Size returns the limiter capacity.
func (l *Limiter) Size() int { return l.size }

// Do runs fn while holding one slot.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s limiter: %w", l.name, err)
	}
	defer l.sem.Release(1)
	return fn(ctx)
}

// ErrorBudget accumulates per-unit failures. It is safe for concurrent use.
type ErrorBudget struct {
	mu    sync.Mutex
	limit int
	errs  *multierror.Error
}

// NewErrorBudget returns a budget that is exceeded after more than limit failures.
func NewErrorBudget(limit int) *ErrorBudget {
	return &ErrorBudget{limit: limit}
}

// Record adds a failure for unit. It returns ErrTooManyErrors once the budget is exceeded.
func (b *ErrorBudget) Record(unit string, err error) error {
	if err == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errs = multierror.Append(b.errs, fmt.Errorf("%s: %w", unit, err))
	if b.exceededLocked() {
		return fmt.Errorf("%w: %d failures (limit %d)", ErrTooManyErrors, len(b.errs.Errors), b.limit)
	}
	return nil
}

// Count returns the number of recorded failures.
func (b *ErrorBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.errs == nil {
		return 0
	}
	return len(b.errs.Errors)
}

// Exceeded reports whether more than limit failures have been recorded.
func (b *ErrorBudget) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceededLocked()
}

func (b *ErrorBudget) exceededLocked() bool {
	return b.errs != nil && len(b.errs.Errors) > b.limit
}

// Err returns every recorded failure, or nil.
func (b *ErrorBudget) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs.ErrorOrNil()
}

// Map runs fn for every item concurrently and returns the outputs in input
// order. A failed item leaves a zero output and is recorded in budget; its
// siblings keep running. The only error returned is ErrTooManyErrors, after
// every item has finished.
func Map[In, Out any](ctx context.Context, items []In, budget *ErrorBudget, unit func(In) string, fn func(ctx context.Context, item In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			v, err := fn(ctx, item)
			if err != nil {
				return budget.Record(unit(item), err)
			}
			out[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
