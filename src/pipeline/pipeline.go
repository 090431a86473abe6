// Package pipeline sequences a tracker run: download the CI signal of the
// commit window from every source, load it into a staged ledger, score the
// ledger and emit the snapshot.
//
// Every fetch finishes before the first ledger write, and the staged ledger is
// only published once analysis has succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"ci-tracker/src/config"
	"ci-tracker/src/contracts"
	"ci-tracker/src/logger"
	"ci-tracker/src/pool"
	"ci-tracker/src/provider"
	"ci-tracker/src/retry"
	"ci-tracker/src/store"
)

// CommitLister returns the newest n commits, newest first.
type CommitLister interface {
	ListCommits(ctx context.Context, n int) ([]contracts.Commit, error)
}

// PRTimeSource returns recent PR build timings.
type PRTimeSource interface {
	Fetch(ctx context.Context) ([]contracts.PRBuildTime, error)
}

// FlakyStates resolves the externally tracked flaky state of tests.
type FlakyStates interface {
	store.FlakyLookup
	Prefetch(ctx context.Context, names []string)
}

// WeeklyGreenFunc returns the weekly green metric series, newest first.
type WeeklyGreenFunc func(ctx context.Context) ([]contracts.WeeklyGreenMetric, error)

// Options wires a Pipeline. Only Commits is required.
type Options struct {
	Commits     CommitLister
	CommitDepth int
	Sources     []provider.Source
	PRTimes     PRTimeSource
	Flaky       FlakyStates
	WeeklyGreen WeeklyGreenFunc
	// Retry wraps the commit listing, the one upstream call with no cache.
	Retry retry.Policy
	// Budget defaults to config.DefaultErrorBudget failures.
	Budget *pool.ErrorBudget
	Logger logger.Logger
}

// Pipeline runs the phases of a tracker run.
type Pipeline struct {
	opts Options
	log  logger.Logger
}

// New validates opts and returns a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Commits == nil {
		return nil, errors.New("pipeline: a commit source is required")
	}
	if opts.CommitDepth <= 0 {
		return nil, fmt.Errorf("pipeline: commit depth must be positive, got %d", opts.CommitDepth)
	}
	if opts.Budget == nil {
		opts.Budget = pool.NewErrorBudget(config.DefaultErrorBudget)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewSilentLogger()
	}
	return &Pipeline{opts: opts, log: opts.Logger}, nil
}

// Download is everything fetched for one run.
type Download struct {
	Commits []contracts.Commit
	// Batch merges every source's batches, in source then commit order.
	Batch        provider.Batch
	PRBuildTimes []contracts.PRBuildTime
	WeeklyGreen  []contracts.WeeklyGreenMetric
}

// Download lists the commit window and fetches every source for every
// commit. Per-commit failures are charged to the error budget and the
// commit's partial data is kept; only the commit listing and an exhausted
// budget are fatal.
func (p *Pipeline) Download(ctx context.Context) (*Download, error) {
	commits, err := retry.DoValue(ctx, p.opts.Retry, "list commits", func(ctx context.Context) ([]contracts.Commit, error) {
		return p.opts.Commits.ListCommits(ctx, p.opts.CommitDepth)
	})
	if err != nil {
		return nil, fmt.Errorf("commit source: %w", err)
	}
	p.log.Info("[Pipeline] %d commits in window", len(commits))

	d := &Download{Commits: commits}
	perSource := make([]provider.Batch, len(p.opts.Sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range p.opts.Sources {
		g.Go(func() error {
			b, err := p.downloadSource(gctx, src, commits)
			perSource[i] = b
			return err
		})
	}
	if p.opts.PRTimes != nil {
		g.Go(func() error {
			times, err := p.opts.PRTimes.Fetch(gctx)
			if err != nil {
				return p.opts.Budget.Record("pr build times", err)
			}
			d.PRBuildTimes = times
			return nil
		})
	}
	if p.opts.WeeklyGreen != nil {
		g.Go(func() error {
			weekly, err := p.opts.WeeklyGreen(gctx)
			if err != nil {
				return p.opts.Budget.Record("weekly green metric", err)
			}
			d.WeeklyGreen = weekly
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range perSource {
		d.Batch.Merge(&perSource[i])
	}
	p.log.Info("[Pipeline] downloaded %d builds, %d job statuses, %d retried jobs, %d PR builds (%d errors)",
		len(d.Batch.Builds), len(d.Batch.Jobs), len(d.Batch.RetriedJobIDs), len(d.PRBuildTimes), p.opts.Budget.Count())
	return d, nil
}

func (p *Pipeline) downloadSource(ctx context.Context, src provider.Source, commits []contracts.Commit) (provider.Batch, error) {
	var (
		mu       sync.Mutex
		partials = make(map[string]*provider.Batch)
	)
	unit := func(c contracts.Commit) string { return src.Name() + " " + shortSHA(c.SHA) }

	batches, err := pool.Map(ctx, commits, p.opts.Budget, unit, func(ctx context.Context, c contracts.Commit) (*provider.Batch, error) {
		b, err := src.Fetch(ctx, c)
		if err != nil {
			if !b.Empty() {
				mu.Lock()
				partials[c.SHA] = b
				mu.Unlock()
			}
			return nil, err
		}
		return b, nil
	})

	var out provider.Batch
	for i, c := range commits {
		if b := batches[i]; b != nil {
			out.Merge(b)
		} else if b := partials[c.SHA]; b != nil {
			out.Merge(b)
		}
	}
	p.log.Debug("[Pipeline] %s: %d builds, %d jobs", src.Name(), len(out.Builds), len(out.Jobs))
	return out, err
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// ETL loads a download into w. Flaky states are resolved before the build
// results are written so the lookups run concurrently.
func (p *Pipeline) ETL(ctx context.Context, w *store.Writer, d *Download) error {
	if err := w.WriteCommits(ctx, d.Commits); err != nil {
		return err
	}

	var flaky store.FlakyLookup
	if p.opts.Flaky != nil {
		p.opts.Flaky.Prefetch(ctx, testNames(d.Batch.Builds))
		flaky = p.opts.Flaky
	}
	if err := w.WriteBuildResults(ctx, d.Batch.Builds, flaky); err != nil {
		return err
	}

	discarded, err := w.DiscardJobs(ctx, d.Batch.RetriedJobIDs)
	if err != nil {
		return err
	}
	if discarded > 0 {
		p.log.Info("[Pipeline] discarded %d rows of retried jobs", discarded)
	}

	if err := w.WriteJobStatuses(ctx, d.Batch.Jobs); err != nil {
		return err
	}
	if err := w.WritePRBuildTimes(ctx, d.PRBuildTimes); err != nil {
		return err
	}

	updated, err := w.BackfillOwners(ctx)
	if err != nil {
		return err
	}
	p.log.Info("[Pipeline] ledger loaded, owners backfilled for %d tests", updated)
	return nil
}

// testNames returns the distinct ledger names of every granular result.
func testNames(builds []contracts.BuildResult) []string {
	seen := map[string]bool{}
	var names []string
	for _, b := range builds {
		for _, r := range b.Results {
			name := store.TestName(b.OS, r.TestName)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}
