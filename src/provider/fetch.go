package provider

import (
	"context"

	"ci-tracker/src/fetchcache"
	"ci-tracker/src/logger"
	"ci-tracker/src/pool"
	"ci-tracker/src/retry"
)

// Deps are the collaborators every source needs.
type Deps struct {
	Cache fetchcache.Store
	// UseCache replays complete cache entries instead of calling upstream.
	UseCache bool
	Limiter  *pool.Limiter
	Retry    retry.Policy
	Logger   logger.Logger
}

// Fetch replays key from the cache or runs produce under the limiter and the
// retry policy, then persists the result according to its completeness.
func Fetch[T any](ctx context.Context, d Deps, key, description string, produce fetchcache.Producer[T]) (T, bool, error) {
	return fetchcache.GetOrFetch(ctx, d.Cache, key, d.UseCache, func(ctx context.Context) (T, fetchcache.Completeness, error) {
		var (
			v     T
			state fetchcache.Completeness
		)
		err := d.Retry.Do(ctx, description, func(ctx context.Context) error {
			return d.Limiter.Do(ctx, func(ctx context.Context) error {
				var err error
				v, state, err = produce(ctx)
				return err
			})
		})
		return v, state, err
	})
}
