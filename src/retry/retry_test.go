package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ci-tracker/src/logger"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Default(logger.NewSilentLogger()).Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("502 bad gateway")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorAfterExhaustion(t *testing.T) {
	calls := 0
	first := errors.New("first")
	last := errors.New("last")

	err := Policy{Attempts: 3}.Do(context.Background(), "fetch commits", func(ctx context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return first
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exceeded MaxAttemptsExceeded
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "fetch commits", exceeded.Description)
	assert.Len(t, exceeded.Errors.Errors, 3)
	assert.True(t, errors.Is(err, last))
}

func TestDoStopsOnFatal(t *testing.T) {
	calls := 0
	denied := errors.New("401 unauthorized")

	err := Policy{Attempts: 5}.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return Fatal(denied)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, denied, err)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Policy{Attempts: 5}.Do(ctx, "fetch", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), Policy{Attempts: 2}, "count", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFatalNil(t *testing.T) {
	assert.NoError(t, Fatal(nil))
}
