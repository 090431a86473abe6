package buildkite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/provider"
)

// ReleaseTestPrefix namespaces release test names in the ledger.
const ReleaseTestPrefix = "release://"

// releaseResult is result.json as uploaded by a release test job.
type releaseResult struct {
	Status       string  `json:"status"`
	Runtime      float64 `json:"runtime"`
	BuildkiteURL string  `json:"buildkite_url"`
	Stable       *bool   `json:"stable"`
}

// releaseConfig is test_config.json as uploaded by a release test job.
type releaseConfig struct {
	Name string `json:"name"`
	Team string `json:"team"`
}

// ReleaseSource reports release test results from the JSON artifacts of the
// release pipeline.
type ReleaseSource struct {
	client    *Client
	opts      BranchOptions
	deps      provider.Deps
	artifacts provider.Deps
}

// NewReleaseSource creates a release source reading opts.Pipeline.
func NewReleaseSource(client *Client, opts BranchOptions, deps, artifactDeps provider.Deps) *ReleaseSource {
	return &ReleaseSource{client: client, opts: opts, deps: deps, artifacts: artifactDeps}
}

// Name returns the provider name.
func (s *ReleaseSource) Name() string {
	return "buildkite-release"
}

// Fetch implements provider.Source. Release jobs only contribute per-test rows.
func (s *ReleaseSource) Fetch(ctx context.Context, commit contracts.Commit) (*provider.Batch, error) {
	key := fetchcache.Key("bk_release_jobs", commit.SHA, "parsed.json")
	jobs, ok, err := provider.Fetch(ctx, s.deps, key, "buildkite release jobs of "+commit.SHA, func(ctx context.Context) ([]contracts.JobStatus, fetchcache.Completeness, error) {
		return s.jobs(ctx, commit.SHA)
	})
	if err != nil || !ok {
		return nil, err
	}

	batch := &provider.Batch{}
	var errs *multierror.Error
	for _, job := range jobs {
		if len(job.Artifacts) == 0 || !isFinal(job.State) {
			continue
		}
		br, err := s.result(ctx, job)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("release artifacts of job %s: %w", job.JobID, err))
			continue
		}
		if br != nil {
			batch.Builds = append(batch.Builds, *br)
		}
	}
	if batch.Empty() {
		return nil, errs.ErrorOrNil()
	}
	return batch, errs.ErrorOrNil()
}

func (s *ReleaseSource) jobs(ctx context.Context, sha string) ([]contracts.JobStatus, fetchcache.Completeness, error) {
	jobs, err := s.client.BuildJobs(ctx, PipelineSlug(s.opts.Org, s.opts.Pipeline), s.opts.Branch, sha)
	if err != nil {
		return nil, fetchcache.Absent, err
	}
	if len(jobs) == 0 {
		return nil, fetchcache.Absent, nil
	}

	state := fetchcache.Complete
	var out []contracts.JobStatus
	for i := range jobs {
		job := &jobs[i]
		if job.Retried() {
			continue
		}
		if !job.Final() {
			state = fetchcache.InProgress
		}
		out = append(out, contracts.JobStatus{
			Provider:  contracts.ProviderBuildkite,
			JobID:     job.UUID,
			Label:     job.Label,
			SHA:       job.Build.Commit,
			URL:       job.URL,
			State:     job.State,
			Status:    provider.BuildkiteJob(job.State, job.Passed),
			Artifacts: artifactsOf(job, ReleaseJSONDir, s.opts.Branch, isJSON),
		})
	}
	return out, state, nil
}

func (s *ReleaseSource) result(ctx context.Context, job contracts.JobStatus) (*contracts.BuildResult, error) {
	key := fetchcache.Key("bk_release_jobs", job.SHA, fmt.Sprintf("release_result_%s.json", job.JobID))
	br, ok, err := fetchcache.GetOrFetch(ctx, s.artifacts.Cache, key, s.artifacts.UseCache, func(ctx context.Context) (*contracts.BuildResult, fetchcache.Completeness, error) {
		var (
			br    *contracts.BuildResult
			state fetchcache.Completeness
		)
		err := s.artifacts.Retry.Do(ctx, "release artifacts of job "+job.JobID, func(ctx context.Context) error {
			n, err := mirror(ctx, s.client.HTTPClient(), s.artifacts.Limiter, s.artifacts.Logger, s.opts.CacheRoot, job.Artifacts)
			if err != nil {
				return err
			}
			if n == 0 {
				br, state = nil, fetchcache.Absent
				return nil
			}
			dir := filepath.Join(s.opts.CacheRoot, ReleaseJSONDir, s.opts.Branch, job.SHA, job.JobID)
			br, state, err = s.readResult(dir, job)
			return err
		})
		return br, state, err
	})
	if err != nil || !ok {
		return nil, err
	}
	return br, nil
}

// readResult builds the single release test result of a job directory.
// Directories without result.json, or with a status that has no verdict, are absent.
func (s *ReleaseSource) readResult(dir string, job contracts.JobStatus) (*contracts.BuildResult, fetchcache.Completeness, error) {
	var (
		result releaseResult
		cfg    releaseConfig
	)
	for name, out := range map[string]any{"result.json": &result, "test_config.json": &cfg} {
		ok, err := readJSON(filepath.Join(dir, name), out)
		if err != nil {
			s.artifacts.Logger.Warn("skipping release job %s: %v", job.JobID, err)
			return nil, fetchcache.Absent, nil
		}
		if !ok {
			return nil, fetchcache.Absent, nil
		}
	}

	status, known := provider.Normalize(provider.ReleaseStatus, result.Status)
	if !known {
		s.artifacts.Logger.Warn("unknown release test status %q for %s", result.Status, cfg.Name)
	}
	if !status.Known() {
		return nil, fetchcache.Absent, nil
	}

	owner := cfg.Team
	if owner == "" {
		owner = contracts.OwnerUnknown
	}
	// Unstable release tests do not block, like staging bazel tests.
	staging := result.Stable != nil && !*result.Stable

	return &contracts.BuildResult{
		SHA:    job.SHA,
		JobID:  job.JobID,
		JobURL: result.BuildkiteURL,
		Results: []contracts.TestResult{{
			TestName:        ReleaseTestPrefix + cfg.Name,
			Status:          status,
			DurationSeconds: result.Runtime,
			Owner:           owner,
			IsStaging:       staging,
		}},
	}, fetchcache.Complete, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}
