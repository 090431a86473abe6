package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterCapsConcurrency(t *testing.T) {
	l := NewLimiter("github", 3)
	var inFlight, peak int32

	items := make([]int, 20)
	_, err := Map(context.Background(), items, NewErrorBudget(100), func(int) string { return "x" },
		func(ctx context.Context, _ int) (struct{}, error) {
			return struct{}{}, l.Do(ctx, func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Equal(t, 3, l.Size())
	assert.Equal(t, "github", l.Name())
}

func TestLimiterRespectsContext(t *testing.T) {
	l := NewLimiter("s3", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Do(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapKeepsOrderAndToleratesFailures(t *testing.T) {
	budget := NewErrorBudget(10)
	items := []int{1, 2, 3, 4}

	out, err := Map(context.Background(), items, budget, func(i int) string { return fmt.Sprintf("item %d", i) },
		func(ctx context.Context, i int) (int, error) {
			if i == 3 {
				return 0, errors.New("503")
			}
			return i * 10, nil
		})

	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 0, 40}, out)
	assert.Equal(t, 1, budget.Count())
	assert.Contains(t, budget.Err().Error(), "item 3")
	assert.False(t, budget.Exceeded())
}

func TestMapFailsWhenBudgetExceeded(t *testing.T) {
	budget := NewErrorBudget(2)
	items := []int{1, 2, 3, 4, 5}
	var ran int32

	_, err := Map(context.Background(), items, budget, func(i int) string { return "unit" },
		func(ctx context.Context, i int) (int, error) {
			atomic.AddInt32(&ran, 1)
			return 0, errors.New("boom")
		})

	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	assert.True(t, budget.Exceeded())
}

func TestErrorBudgetIgnoresNil(t *testing.T) {
	b := NewErrorBudget(0)
	assert.NoError(t, b.Record("x", nil))
	assert.Equal(t, 0, b.Count())
	assert.NoError(t, b.Err())
}
