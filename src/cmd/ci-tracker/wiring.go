package main

import (
	"context"
	"fmt"

	"ci-tracker/src/bazel"
	"ci-tracker/src/broker"
	"ci-tracker/src/buildkite"
	"ci-tracker/src/config"
	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/github"
	"ci-tracker/src/pipeline"
	"ci-tracker/src/pool"
	"ci-tracker/src/provider"
	"ci-tracker/src/retry"
	"ci-tracker/src/s3logs"
	"ci-tracker/src/travis"
)

// newPipeline wires every configured source into a pipeline. Commands that
// fetch from CI providers check credentials first; analysis only reads the
// results bucket.
func newPipeline(ctx context.Context, cfg *config.Config, flags cacheFlags, fetches bool) (*pipeline.Pipeline, error) {
	if fetches {
		if err := cfg.RequireCredentials(); err != nil {
			return nil, err
		}
	}

	cache := fetchcache.NewDirStore(cfg.CacheDir)
	policy := retry.Default(log)
	policy.Attempts = cfg.RetryAttempts
	deps := func(limiter *pool.Limiter, useCache bool) provider.Deps {
		return provider.Deps{Cache: cache, UseCache: useCache, Limiter: limiter, Retry: policy, Logger: log}
	}

	var (
		githubLimiter    = pool.NewLimiter("github", cfg.Concurrency.GitHub)
		buildkiteLimiter = pool.NewLimiter("buildkite", cfg.Concurrency.Buildkite)
		artifactLimiter  = pool.NewLimiter("buildkite-artifacts", cfg.Concurrency.BuildkiteArtifacts)
		s3Limiter        = pool.NewLimiter("s3", cfg.Concurrency.S3)
		travisLimiter    = pool.NewLimiter("travis", cfg.Concurrency.Travis)
	)
	parser := bazel.NewParser(log)

	gh := github.NewClient(cfg.GitHubToken, cfg.Repo, cfg.HTTPTimeout).WithBaseURL(cfg.GitHub.APIURL)
	// The pipeline retries the listing itself.
	commitDeps := deps(githubLimiter, flags.github)
	commitDeps.Retry = retry.Policy{Attempts: 1, Logger: log}

	bk := buildkite.NewClient(cfg.BuildkiteToken, cfg.HTTPTimeout).WithURL(cfg.Buildkite.GraphQLURL)
	branchOpts := buildkite.BranchOptions{
		Org:       cfg.Buildkite.Org,
		Pipeline:  cfg.Buildkite.BranchPipeline,
		Branch:    cfg.Buildkite.Branch,
		CacheRoot: cfg.CacheDir,
	}
	releaseOpts := branchOpts
	releaseOpts.Pipeline = cfg.Buildkite.ReleasePipeline

	logsAPI, err := s3logs.NewClient(ctx, cfg.S3, "")
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	resultsAPI, err := s3logs.NewClient(ctx, cfg.S3, cfg.S3.ResultsRoleARN)
	if err != nil {
		return nil, fmt.Errorf("s3 results client: %w", err)
	}

	sources := []provider.Source{
		s3logs.NewArchiveSource(logsAPI, s3logs.ArchiveOptions{
			Bucket:        cfg.S3.LogBucket,
			Branch:        cfg.Buildkite.Branch,
			CacheRoot:     cfg.CacheDir,
			MaxObjectSize: cfg.S3.MaxObjectSize,
			SyncTimeout:   cfg.S3.SyncTimeout,
		}, deps(s3Limiter, flags.s3), parser),
		buildkite.NewBranchSource(bk, branchOpts,
			deps(buildkiteLimiter, flags.buildkite), deps(artifactLimiter, flags.buildkite), parser),
		buildkite.NewReleaseSource(bk, releaseOpts,
			deps(buildkiteLimiter, flags.buildkiteRelease), deps(artifactLimiter, flags.buildkiteRelease)),
		github.NewActionsSource(gh, deps(githubLimiter, flags.gha), cfg.GitHub.ActionsOS, cfg.GitHub.ActionsEnv),
	}
	if cfg.Travis.Enabled {
		sources = append(sources, travis.NewSource(gh, cfg.Travis.APIURL, cfg.Travis.WebURL, cfg.HTTPTimeout,
			deps(travisLimiter, flags.gha)))
	}

	return pipeline.New(pipeline.Options{
		Commits:     github.NewCommitSource(gh, commitDeps),
		CommitDepth: cfg.CommitDepth,
		Sources:     sources,
		PRTimes: buildkite.NewPRTimeSource(bk, cfg.Buildkite.Org, cfg.Buildkite.PRPipeline,
			deps(buildkiteLimiter, false)),
		Flaky: s3logs.NewFlakyStates(resultsAPI, cfg.S3.ResultsBucket, s3Limiter, log),
		WeeklyGreen: func(ctx context.Context) ([]contracts.WeeklyGreenMetric, error) {
			return s3logs.WeeklyGreen(ctx, resultsAPI, cfg.S3.ResultsBucket)
		},
		Retry:  policy,
		Budget: pool.NewErrorBudget(cfg.ErrorBudget),
		Logger: log,
	})
}

// outputs returns the snapshot destinations. The returned close func
// releases the broker.
func outputs(cfg *config.Config) (pipeline.Outputs, func(), error) {
	out := pipeline.Outputs{JSONPath: cfg.OutputPath, MetricsPath: cfg.MetricsPath}
	if len(cfg.RedpandaBrokers) == 0 {
		return out, func() {}, nil
	}
	b, err := broker.New(cfg.RedpandaBrokers, log)
	if err != nil {
		return out, nil, fmt.Errorf("broker: %w", err)
	}
	out.Broker = b
	return out, func() { b.Close() }, nil
}
