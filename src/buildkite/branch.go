package buildkite

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"ci-tracker/src/bazel"
	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/provider"
	"ci-tracker/src/sanitize"
)

// Buildkite job states that will not change any more.
var finalStates = map[string]bool{
	"FINISHED":         true,
	"CANCELED":         true,
	"SKIPPED":          true,
	"BROKEN":           true,
	"EXPIRED":          true,
	"TIMED_OUT":        true,
	"WAITING_FAILED":   true,
	"BLOCKED_FAILED":   true,
	"UNBLOCKED_FAILED": true,
	"PLATFORM_LIMITED": true,
}

func isFinal(state string) bool {
	return finalStates[strings.ToUpper(state)]
}

// Final reports whether the job has reached a state that will not change.
func (j *Job) Final() bool {
	return isFinal(j.State)
}

// ArtifactJobOS is recorded for artifact results whose job directory has no metadata.json.
const ArtifactJobOS = "darwin"

// BranchOptions selects the pipeline a BranchSource reads.
type BranchOptions struct {
	Org      string
	Pipeline string
	Branch   string
	// CacheRoot is the directory artifacts are mirrored into.
	CacheRoot string
}

// BranchSource reports the jobs of the branch pipeline for a commit and the
// per-test results found in their bazel event log artifacts.
type BranchSource struct {
	client    *Client
	opts      BranchOptions
	deps      provider.Deps
	artifacts provider.Deps
	parser    *bazel.Parser
}

// NewBranchSource creates a branch source. artifactDeps carries the limiter
// used for artifact downloads.
func NewBranchSource(client *Client, opts BranchOptions, deps, artifactDeps provider.Deps, parser *bazel.Parser) *BranchSource {
	return &BranchSource{client: client, opts: opts, deps: deps, artifacts: artifactDeps, parser: parser}
}

// Name returns the provider name.
func (s *BranchSource) Name() string {
	return contracts.ProviderBuildkite
}

// Fetch implements provider.Source.
func (s *BranchSource) Fetch(ctx context.Context, commit contracts.Commit) (*provider.Batch, error) {
	key := fetchcache.Key("bk_jobs", commit.SHA, "parsed.json")
	batch, ok, err := provider.Fetch(ctx, s.deps, key, "buildkite jobs of "+commit.SHA, func(ctx context.Context) (*provider.Batch, fetchcache.Completeness, error) {
		return s.jobs(ctx, commit.SHA)
	})
	if err != nil || !ok {
		return nil, err
	}

	var errs *multierror.Error
	for _, job := range batch.Jobs {
		if len(job.Artifacts) == 0 || !isFinal(job.State) {
			continue
		}
		br, err := s.artifactResult(ctx, job)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("artifacts of job %s: %w", job.JobID, err))
			continue
		}
		if br != nil {
			batch.Builds = append(batch.Builds, *br)
		}
	}
	return batch, errs.ErrorOrNil()
}

func (s *BranchSource) jobs(ctx context.Context, sha string) (*provider.Batch, fetchcache.Completeness, error) {
	jobs, err := s.client.BuildJobs(ctx, PipelineSlug(s.opts.Org, s.opts.Pipeline), s.opts.Branch, sha)
	if err != nil {
		return nil, fetchcache.Absent, err
	}
	if len(jobs) == 0 {
		return nil, fetchcache.Absent, nil
	}

	batch := &provider.Batch{}
	state := fetchcache.Complete
	for i := range jobs {
		job := &jobs[i]
		if job.Retried() {
			batch.RetriedJobIDs = append(batch.RetriedJobIDs, job.UUID)
			continue
		}
		if !job.Final() {
			state = fetchcache.InProgress
		}
		label := sanitize.Label(job.Label)
		batch.Jobs = append(batch.Jobs, contracts.JobStatus{
			Provider:        contracts.ProviderBuildkite,
			JobID:           job.UUID,
			Label:           label,
			SHA:             job.Build.Commit,
			URL:             job.URL,
			OS:              "linux",
			BuildEnv:        label,
			State:           job.State,
			Status:          provider.BuildkiteJob(job.State, job.Passed),
			DurationSeconds: contracts.Duration(job.StartedAt, job.FinishedAt).Seconds(),
			Artifacts:       artifactsOf(job, BazelEventsDir, s.opts.Branch, isBazelEventLog),
		})
	}
	return batch, state, nil
}

func (s *BranchSource) artifactResult(ctx context.Context, job contracts.JobStatus) (*contracts.BuildResult, error) {
	key := fetchcache.Key("bazel_cached", job.SHA, fmt.Sprintf("mac_result_%s.json", job.JobID))
	deps := s.artifacts
	br, ok, err := fetchcache.GetOrFetch(ctx, deps.Cache, key, deps.UseCache, func(ctx context.Context) (*contracts.BuildResult, fetchcache.Completeness, error) {
		var (
			br    *contracts.BuildResult
			state fetchcache.Completeness
		)
		err := deps.Retry.Do(ctx, "buildkite artifacts of job "+job.JobID, func(ctx context.Context) error {
			var err error
			br, state, err = s.downloadAndParse(ctx, job)
			return err
		})
		return br, state, err
	})
	if err != nil || !ok {
		return nil, err
	}
	return br, nil
}

func (s *BranchSource) downloadAndParse(ctx context.Context, job contracts.JobStatus) (*contracts.BuildResult, fetchcache.Completeness, error) {
	n, err := mirror(ctx, s.client.HTTPClient(), s.artifacts.Limiter, s.artifacts.Logger, s.opts.CacheRoot, job.Artifacts)
	if err != nil {
		return nil, fetchcache.Absent, err
	}
	if n == 0 {
		return nil, fetchcache.Absent, nil
	}

	dir := filepath.Join(s.opts.CacheRoot, BazelEventsDir, s.opts.Branch, job.SHA, job.JobID)
	br, err := s.parser.ProcessJobDir(dir, &bazel.JobInfo{
		SHA:      job.SHA,
		JobURL:   job.URL,
		OS:       ArtifactJobOS,
		BuildEnv: job.BuildEnv,
	})
	if err != nil {
		return nil, fetchcache.Absent, err
	}
	if br == nil || len(br.Results) == 0 {
		return nil, fetchcache.Absent, nil
	}
	return br, fetchcache.Complete, nil
}
