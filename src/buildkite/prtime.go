package buildkite

import (
	"context"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/provider"
)

// PRTimeSource reads the wall time of the newest pull request builds.
type PRTimeSource struct {
	client *Client
	slug   string
	deps   provider.Deps
}

// NewPRTimeSource creates a source for the PR pipeline org/pipeline.
func NewPRTimeSource(client *Client, org, pipeline string, deps provider.Deps) *PRTimeSource {
	return &PRTimeSource{client: client, slug: PipelineSlug(org, pipeline), deps: deps}
}

// Fetch returns the builds that belong to a pull request.
func (s *PRTimeSource) Fetch(ctx context.Context) ([]contracts.PRBuildTime, error) {
	key := fetchcache.Key("bk_pr_time", "result.json")
	times, _, err := provider.Fetch(ctx, s.deps, key, "buildkite PR build times", func(ctx context.Context) ([]contracts.PRBuildTime, fetchcache.Completeness, error) {
		builds, err := s.client.PRBuilds(ctx, s.slug)
		if err != nil {
			return nil, fetchcache.Absent, err
		}
		return prBuildTimes(builds), fetchcache.Complete, nil
	})
	return times, err
}

func prBuildTimes(builds []PRBuildNode) []contracts.PRBuildTime {
	out := []contracts.PRBuildTime{}
	for _, b := range builds {
		if b.PullRequest == nil {
			continue
		}
		createdBy := contracts.OwnerUnknown
		if b.CreatedBy != nil && b.CreatedBy.Name != "" {
			createdBy = b.CreatedBy.Name
		}
		out = append(out, contracts.PRBuildTime{
			SHA:        b.Commit,
			CreatedBy:  createdBy,
			State:      b.State,
			URL:        b.URL,
			CreatedAt:  b.CreatedAt,
			StartedAt:  b.StartedAt,
			FinishedAt: b.FinishedAt,
			PullID:     b.PullRequest.ID,
		})
	}
	return out
}
