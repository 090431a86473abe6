// Package travis reads job verdicts of legacy Travis CI builds. Builds are
// located through the travis-ci check suite that Travis attaches to each commit.
package travis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/github"
	"ci-tracker/src/provider"
)

const (
	// AppSlug is the GitHub app that owns Travis check suites.
	AppSlug = "travis-ci"

	providerName = "Travis"
	apiVersion   = "3"
	buildInclude = "job.config,job.state,job.started_at,job.finished_at"
)

// Build is the subset of a Travis API v3 build the tracker reads.
type Build struct {
	ID     int64 `json:"id"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
	Jobs []Job `json:"jobs"`
}

// Job is one job of a Travis build.
type Job struct {
	ID         int64      `json:"id"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Config     struct {
		OS  string          `json:"os"`
		Env json.RawMessage `json:"env"`
	} `json:"config"`
}

// Running reports whether the job has not reached a final state.
func (j Job) Running() bool {
	switch j.State {
	case "created", "queued", "received", "started":
		return true
	}
	return false
}

// Source implements provider.Source for Travis CI.
type Source struct {
	github     *github.Client
	httpClient *http.Client
	apiURL     string
	webURL     string
	deps       provider.Deps
}

// NewSource creates a Travis source. apiURL is the v3 API root and webURL the
// prefix of job pages, e.g. https://travis-ci.com/github.
func NewSource(gh *github.Client, apiURL, webURL string, timeout time.Duration, deps provider.Deps) *Source {
	return &Source{
		github:     gh,
		httpClient: provider.NewHTTPClient(timeout),
		apiURL:     strings.TrimRight(apiURL, "/"),
		webURL:     strings.TrimRight(webURL, "/"),
		deps:       deps,
	}
}

// Name returns the provider name.
func (s *Source) Name() string {
	return contracts.ProviderTravis
}

// Fetch implements provider.Source.
func (s *Source) Fetch(ctx context.Context, commit contracts.Commit) (*provider.Batch, error) {
	key := fetchcache.Key("travis_cached", commit.SHA, "build.json")
	batch, ok, err := provider.Fetch(ctx, s.deps, key, "travis status of "+commit.SHA, func(ctx context.Context) (*provider.Batch, fetchcache.Completeness, error) {
		return s.fetch(ctx, commit.SHA)
	})
	if err != nil || !ok {
		return nil, err
	}
	return batch, nil
}

func (s *Source) fetch(ctx context.Context, sha string) (*provider.Batch, fetchcache.Completeness, error) {
	buildID, err := s.buildID(ctx, sha)
	if err != nil || buildID == "" {
		return nil, fetchcache.Absent, err
	}

	build, err := s.GetBuild(ctx, buildID)
	if err != nil {
		return nil, fetchcache.Absent, err
	}

	batch := &provider.Batch{}
	state := fetchcache.Complete
	for _, job := range build.Jobs {
		if job.Running() {
			state = fetchcache.InProgress
		}
		status, known := provider.Normalize(provider.TravisState, job.State)
		if !known {
			s.deps.Logger.Warn("unknown travis job state %q for job %d", job.State, job.ID)
		}
		id := strconv.FormatInt(job.ID, 10)
		batch.Jobs = append(batch.Jobs, contracts.JobStatus{
			Provider:        contracts.ProviderTravis,
			JobID:           id,
			SHA:             build.Commit.SHA,
			URL:             fmt.Sprintf("%s/%s/jobs/%s", s.webURL, s.github.Repo(), id),
			OS:              job.Config.OS,
			BuildEnv:        envString(job.Config.Env),
			State:           job.State,
			Status:          status,
			DurationSeconds: contracts.Duration(job.StartedAt, job.FinishedAt).Seconds(),
		})
	}

	if len(batch.Jobs) == 0 {
		return nil, fetchcache.Absent, nil
	}
	return batch, state, nil
}

// buildID returns the Travis build id recorded as the external id of the
// first run of the travis-ci check suite, or "" when there is none.
func (s *Source) buildID(ctx context.Context, sha string) (string, error) {
	suites, err := s.github.CheckSuites(ctx, sha)
	if err != nil {
		return "", err
	}
	suite, ok := github.FindSuite(suites, AppSlug)
	if !ok {
		return "", nil
	}
	runs, err := s.github.CheckRuns(ctx, suite.ID)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", nil
	}
	return runs[0].ExternalID, nil
}

// GetBuild fetches a build with its jobs.
func (s *Source) GetBuild(ctx context.Context, buildID string) (*Build, error) {
	url := fmt.Sprintf("%s/build/%s?include=%s", s.apiURL, buildID, buildInclude)
	header := http.Header{}
	header.Set("Travis-API-Version", apiVersion)

	var build Build
	if err := provider.GetJSON(ctx, s.httpClient, providerName, url, header, &build); err != nil {
		return nil, fmt.Errorf("failed to get travis build %s: %w", buildID, err)
	}
	return &build, nil
}

// envString flattens a job env, which is a string or a list of strings.
func envString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, " ")
	}
	return ""
}
