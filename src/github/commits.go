package github

import (
	"context"
	"fmt"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/provider"
)

// CommitSource lists the commit window through the fetch cache, so a rerun
// with the cache enabled sees the same window as the download that filled it.
type CommitSource struct {
	client *Client
	deps   provider.Deps
}

// NewCommitSource wraps client's commit listing with deps' cache.
func NewCommitSource(client *Client, deps provider.Deps) *CommitSource {
	return &CommitSource{client: client, deps: deps}
}

// ListCommits returns the newest n commits, newest first. An empty listing
// is not cached.
func (s *CommitSource) ListCommits(ctx context.Context, n int) ([]contracts.Commit, error) {
	key := fetchcache.Key("github_cached", fmt.Sprintf("commits_%d.json", n))
	commits, _, err := provider.Fetch(ctx, s.deps, key, "commit listing of "+s.client.Repo(),
		fetchcache.Found(func(ctx context.Context) ([]contracts.Commit, bool, error) {
			commits, err := s.client.ListCommits(ctx, n)
			return commits, len(commits) > 0, err
		}))
	return commits, err
}
