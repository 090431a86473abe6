package s3logs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"ci-tracker/src/logger"
	"ci-tracker/src/pool"
)

// Test states recorded by the flaky test tracker.
const (
	StatePassing = "passing"
	StateFlaky   = "flaky"
)

// FlakyStates looks up the state the flaky test tracker keeps for each test
// under ray_tests/<name>.json. Lookups are memoized for the life of the value.
type FlakyStates struct {
	api     API
	bucket  string
	limiter *pool.Limiter
	log     logger.Logger
	states  *xsync.MapOf[string, string]
}

// NewFlakyStates creates a lookup against bucket.
func NewFlakyStates(api API, bucket string, limiter *pool.Limiter, log logger.Logger) *FlakyStates {
	return &FlakyStates{
		api:     api,
		bucket:  bucket,
		limiter: limiter,
		log:     log,
		states:  xsync.NewMapOf[string, string](),
	}
}

// StateKey returns the object key holding the state of testName.
func StateKey(testName string) string {
	return "ray_tests/" + strings.ReplaceAll(testName, "/", "_") + ".json"
}

// State returns the tracked state of testName. Any failure to read it is
// logged and reported as passing. A lookup cut short by ctx is not memoized.
func (f *FlakyStates) State(ctx context.Context, testName string) string {
	if state, ok := f.states.Load(testName); ok {
		return state
	}

	state, err := f.fetch(ctx, testName)
	if err != nil {
		f.log.Debug("failed to get test state for %s: %v", testName, err)
		if ctx.Err() != nil {
			return StatePassing
		}
		state = StatePassing
	}
	f.states.Store(testName, state)
	return state
}

// IsFlaky reports whether the tracker marked testName flaky.
func (f *FlakyStates) IsFlaky(ctx context.Context, testName string) bool {
	return f.State(ctx, testName) == StateFlaky
}

// Prefetch resolves the state of every name concurrently so that later
// lookups are served from memory.
func (f *FlakyStates) Prefetch(ctx context.Context, names []string) {
	var g errgroup.Group
	for _, name := range names {
		if _, ok := f.states.Load(name); ok {
			continue
		}
		g.Go(func() error {
			return f.limiter.Do(ctx, func(ctx context.Context) error {
				f.State(ctx, name)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		f.log.Warn("flaky state prefetch stopped early: %v", err)
	}
}

func (f *FlakyStates) fetch(ctx context.Context, testName string) (string, error) {
	out, err := f.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(StateKey(testName)),
	})
	if err != nil {
		return "", err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", err
	}

	var doc struct {
		State *string `json:"state"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("malformed state document: %w", err)
	}
	if doc.State == nil {
		return StatePassing, nil
	}
	return *doc.State, nil
}
