// Package contracts defines the records exchanged between the CI sources, the
// results ledger and the scoring engine.
package contracts

import "time"

// Status is a normalized test or job verdict.
type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
	// StatusFlaky is reported by bazel when a test passed only after a retry.
	StatusFlaky Status = "FLAKY"
	// StatusNone means the upstream has no verdict yet (queued, running, neutral).
	// Rows with this status are never written to the ledger.
	StatusNone Status = ""
)

// Known reports whether the status carries a verdict.
func (s Status) Known() bool {
	return s != StatusNone
}

// Commit is one entry of the newest-first commit history. Index is the
// position from the newest commit, which has index 0.
type Commit struct {
	SHA             string `json:"sha"`
	UnixTime        int64  `json:"unix_time_s"`
	Index           int    `json:"idx"`
	Message         string `json:"message"`
	URL             string `json:"html_url"`
	AuthorLogin     string `json:"author_login"`
	AuthorAvatarURL string `json:"author_avatar_url"`
}

// TestResult is the outcome of one test inside one CI job.
type TestResult struct {
	TestName        string  `json:"test_name"`
	Status          Status  `json:"status"`
	DurationSeconds float64 `json:"total_duration_s"`
	IsLabeledFlaky  bool    `json:"is_labeled_flaky"`
	Owner           string  `json:"owner"`
	IsStaging       bool    `json:"is_labeled_staging"`
}

// BuildResult groups the test results produced by one CI job execution.
type BuildResult struct {
	SHA      string       `json:"sha"`
	JobID    string       `json:"job_id"`
	JobURL   string       `json:"job_url"`
	OS       string       `json:"os"`
	BuildEnv string       `json:"build_env"`
	Results  []TestResult `json:"results"`
}

// Artifact is an uploaded file that should be mirrored to the local cache tree.
type Artifact struct {
	URL string `json:"url"`
	// Path is relative to the cache root: <kind>/master/<sha>/<job_id>/<file>.
	Path  string `json:"path"`
	JobID string `json:"job_id"`
	SHA   string `json:"sha"`
}

// Providers that report coarse job verdicts.
const (
	ProviderBuildkite     = "buildkite"
	ProviderGitHubActions = "github-actions"
	ProviderTravis        = "travis"
)

// JobStatus is the coarse verdict of a whole CI job, as reported by a provider
// that does not necessarily upload per-test results.
type JobStatus struct {
	Provider string `json:"provider"`
	JobID    string `json:"job_id"`
	Label    string `json:"label"`
	SHA      string `json:"commit"`
	URL      string `json:"url"`
	OS       string `json:"os"`
	BuildEnv string `json:"env"`
	// State is the raw provider state, kept for provider specific filters.
	State           string     `json:"state"`
	Status          Status     `json:"status"`
	DurationSeconds float64    `json:"duration_s"`
	Artifacts       []Artifact `json:"artifacts,omitempty"`
}

// PRBuildTime describes one pull request build of the PR pipeline.
type PRBuildTime struct {
	SHA        string     `json:"commit"`
	CreatedBy  string     `json:"created_by"`
	State      string     `json:"state"`
	URL        string     `json:"url"`
	CreatedAt  *time.Time `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	PullID     string     `json:"pull_id"`
}

// DurationMinutes returns the wall time of the build, or 0 when it never ran to completion.
func (p PRBuildTime) DurationMinutes() float64 {
	return Duration(p.StartedAt, p.FinishedAt).Minutes()
}

// Duration returns finished-started, or 0 when either end is unknown.
func Duration(started, finished *time.Time) time.Duration {
	if started == nil || finished == nil {
		return 0
	}
	return finished.Sub(*started)
}

// LedgerRow is the flattened, persisted form of one (test, job) observation.
type LedgerRow struct {
	TestName        string
	Status          Status
	BuildEnv        string
	OS              string
	JobURL          string
	JobID           string
	SHA             string
	DurationSeconds float64
	IsLabeledFlaky  bool
	Owner           string
	IsStaging       bool
}

// OwnerUnknown is recorded when no team tag could be recovered for a test.
const OwnerUnknown = "unknown"

// OwnerInfra owns the synthetic whole-job rows.
const OwnerInfra = "infra"
