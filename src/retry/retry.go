// Package retry re-runs network operations that fail transiently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"ci-tracker/src/logger"
)

// DefaultAttempts is the number of times an operation is tried before giving up.
const DefaultAttempts = 3

// Policy describes how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Sleep is the pause between attempts. Zero retries immediately.
	Sleep  time.Duration
	Logger logger.Logger
}

// Default returns the policy used around every upstream call: three attempts, no pause.
func Default(log logger.Logger) Policy {
	return Policy{Attempts: DefaultAttempts, Logger: log}
}

// Do runs action until it succeeds, returns a Fatal error, the context ends,
// or the attempts run out. In the last case the returned error is a
// MaxAttemptsExceeded carrying every attempt's error.
func (p Policy) Do(ctx context.Context, description string, action func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var errs *multierror.Error
	for i := 1; i <= attempts; i++ {
		err := action(ctx)
		if err == nil {
			return nil
		}

		var fatal FatalError
		if errors.As(err, &fatal) {
			return fatal.Underlying
		}

		errs = multierror.Append(errs, err)

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", description, ctx.Err())
		}

		if p.Logger != nil {
			p.Logger.Debug("%s returned an error: %v. Attempt %d of %d.", description, err, i, attempts)
		}

		if i < attempts && p.Sleep > 0 {
			select {
			case <-time.After(p.Sleep):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", description, ctx.Err())
			}
		}
	}

	return MaxAttemptsExceeded{Description: description, Attempts: attempts, Errors: errs}
}

// DoValue is Do for actions that produce a value.
func DoValue[T any](ctx context.Context, p Policy, description string, action func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, description, func(ctx context.Context) error {
		v, err := action(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// MaxAttemptsExceeded is returned when every attempt failed.
type MaxAttemptsExceeded struct {
	Description string
	Attempts    int
	Errors      *multierror.Error
}

func (err MaxAttemptsExceeded) Error() string {
	return fmt.Sprintf("'%s' unsuccessful after %d attempts: %v", err.Description, err.Attempts, err.Last())
}

// Last returns the error of the final attempt.
func (err MaxAttemptsExceeded) Last() error {
	if err.Errors == nil || len(err.Errors.Errors) == 0 {
		return nil
	}
	return err.Errors.Errors[len(err.Errors.Errors)-1]
}

func (err MaxAttemptsExceeded) Unwrap() error {
	return err.Last()
}

// FatalError marks an error that must not be retried.
type FatalError struct {
	Underlying error
}

func (err FatalError) Error() string {
	return err.Underlying.Error()
}

func (err FatalError) Unwrap() error {
	return err.Underlying
}

// Fatal wraps err so that Do returns it immediately.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return FatalError{Underlying: err}
}
