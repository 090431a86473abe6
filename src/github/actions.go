package github

import (
	"context"
	"fmt"
	"strconv"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/provider"
)

const (
	// ActionsAppSlug is the app that owns GitHub Actions check suites.
	ActionsAppSlug = "github-actions"

	suiteCompleted = "completed"
)

// ActionsSource reports the GitHub Actions verdict of a commit as one
// coarse job row.
type ActionsSource struct {
	client *Client
	deps   provider.Deps
	os     string
	env    string
}

// NewActionsSource creates a source that records jobs with the given os and env.
func NewActionsSource(client *Client, deps provider.Deps, os, env string) *ActionsSource {
	return &ActionsSource{client: client, deps: deps, os: os, env: env}
}

// Name returns the provider name.
func (s *ActionsSource) Name() string {
	return contracts.ProviderGitHubActions
}

// Fetch implements provider.Source.
func (s *ActionsSource) Fetch(ctx context.Context, commit contracts.Commit) (*provider.Batch, error) {
	key := fetchcache.Key("gha_cached", commit.SHA, "job.json")
	batch, ok, err := provider.Fetch(ctx, s.deps, key, "github actions status of "+commit.SHA, func(ctx context.Context) (*provider.Batch, fetchcache.Completeness, error) {
		return s.fetch(ctx, commit.SHA)
	})
	if err != nil || !ok {
		return nil, err
	}
	return batch, nil
}

func (s *ActionsSource) fetch(ctx context.Context, sha string) (*provider.Batch, fetchcache.Completeness, error) {
	suites, err := s.client.CheckSuites(ctx, sha)
	if err != nil {
		return nil, fetchcache.Absent, err
	}

	var suite *CheckSuite
	for i := range suites {
		if suites[i].App.Slug == ActionsAppSlug && suites[i].Status == suiteCompleted {
			suite = &suites[i]
			break
		}
	}
	if suite == nil {
		return nil, fetchcache.Absent, nil
	}

	status, known := provider.Normalize(provider.GitHubConclusion, suite.Conclusion)
	if !known {
		s.deps.Logger.Warn("unknown check suite conclusion %q for %s", suite.Conclusion, sha)
	}
	if !status.Known() {
		return nil, fetchcache.Absent, nil
	}

	runs, err := s.client.CheckRuns(ctx, suite.ID)
	if err != nil {
		return nil, fetchcache.Absent, err
	}
	if len(runs) == 0 {
		return nil, fetchcache.Absent, fmt.Errorf("%w: check suite %d has no runs", provider.ErrMalformedResponse, suite.ID)
	}
	run := runs[0]

	job := contracts.JobStatus{
		Provider:        contracts.ProviderGitHubActions,
		JobID:           strconv.FormatInt(run.ID, 10),
		Label:           run.Name,
		SHA:             sha,
		URL:             run.HTMLURL,
		OS:              s.os,
		BuildEnv:        s.env,
		State:           suite.Status,
		Status:          status,
		DurationSeconds: contracts.Duration(run.StartedAt, run.CompletedAt).Seconds(),
	}
	return &provider.Batch{Jobs: []contracts.JobStatus{job}}, fetchcache.Complete, nil
}
