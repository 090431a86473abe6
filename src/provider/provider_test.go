package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ci-tracker/src/contracts"
	"ci-tracker/src/pool"
	"ci-tracker/src/retry"
)

func TestNormalizeGitHubConclusions(t *testing.T) {
	tests := []struct {
		raw  string
		want contracts.Status
	}{
		{"action_required", contracts.StatusNone},
		{"cancelled", contracts.StatusFailed},
		{"failure", contracts.StatusFailed},
		{"neutral", contracts.StatusNone},
		{"success", contracts.StatusPassed},
		{"skipped", contracts.StatusFailed},
		{"stale", contracts.StatusFailed},
		{"timed_out", contracts.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, known := Normalize(GitHubConclusion, tt.raw)
			assert.True(t, known)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTravisAndRelease(t *testing.T) {
	tests := []struct {
		vocab Vocabulary
		raw   string
		want  contracts.Status
	}{
		{TravisState, "created", contracts.StatusNone},
		{TravisState, "queued", contracts.StatusNone},
		{TravisState, "started", contracts.StatusNone},
		{TravisState, "received", contracts.StatusNone},
		{TravisState, "errored", contracts.StatusFailed},
		{TravisState, "failed", contracts.StatusFailed},
		{TravisState, "passed", contracts.StatusPassed},
		{ReleaseStatus, "finished", contracts.StatusPassed},
		{ReleaseStatus, "runtime_error", contracts.StatusFailed},
		{ReleaseStatus, "infra_timeout", contracts.StatusFailed},
		{ReleaseStatus, "unknown error", contracts.StatusFailed},
		{BazelStatus, "TIMEOUT", contracts.StatusFailed},
		{BazelStatus, "NO_STATUS", contracts.StatusFailed},
		{BazelStatus, "FLAKY", contracts.StatusFlaky},
	}

	for _, tt := range tests {
		t.Run(string(tt.vocab)+"/"+tt.raw, func(t *testing.T) {
			got, known := Normalize(tt.vocab, tt.raw)
			assert.True(t, known)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIsTotalAndIdempotent(t *testing.T) {
	for _, vocab := range []Vocabulary{GitHubConclusion, TravisState, BazelStatus, ReleaseStatus} {
		for _, raw := range Vocabularies(vocab) {
			first, known := Normalize(vocab, raw)
			require.True(t, known, "%s/%s", vocab, raw)
			assert.Contains(t, []contracts.Status{contracts.StatusPassed, contracts.StatusFailed, contracts.StatusFlaky, contracts.StatusNone}, first)

			if first.Known() {
				second, known := Normalize(vocab, string(first))
				assert.True(t, known)
				assert.Equal(t, first, second, "%s/%s", vocab, raw)
			}
		}
	}
}

func TestNormalizeUnknownHasNoVerdict(t *testing.T) {
	got, known := Normalize(GitHubConclusion, "exploded")
	assert.False(t, known)
	assert.Equal(t, contracts.StatusNone, got)
}

func TestBuildkiteJob(t *testing.T) {
	assert.Equal(t, contracts.StatusPassed, BuildkiteJob("FINISHED", true))
	assert.Equal(t, contracts.StatusFailed, BuildkiteJob("FINISHED", false))
	assert.Equal(t, contracts.StatusNone, BuildkiteJob("RUNNING", false))
	assert.Equal(t, contracts.StatusNone, BuildkiteJob("SCHEDULED", true))
}

func response(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}
}

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, CheckResponse("github", response(200, "")))

	err := CheckResponse("buildkite", response(404, "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "buildkite API error 404: missing")

	err = CheckResponse("github", response(401, "bad creds"))
	var fatal retry.FatalError
	assert.True(t, errors.As(err, &fatal))
	assert.ErrorIs(t, err, ErrAuthFailed)

	assert.ErrorIs(t, CheckResponse("github", response(429, "")), ErrRateLimited)

	err = CheckResponse("github", response(502, ""))
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 502, httpErr.StatusCode)
	assert.NoError(t, errors.Unwrap(httpErr))
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
		hint    string
	}{
		{"auth", fmt.Errorf("fetch: %w", ErrAuthFailed), "Authentication failed", "GITHUB_TOKEN"},
		{"rate limited", &HTTPError{Provider: "github", StatusCode: 429}, "Rate limited by an upstream API", "concurrency"},
		{"budget", fmt.Errorf("download: %w", pool.ErrTooManyErrors), "Too many upstream failures, the run was aborted", "left untouched"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapError(tt.err)
			var userErr *UserError
			require.True(t, errors.As(wrapped, &userErr))
			assert.Equal(t, tt.message, userErr.Message)
			assert.Contains(t, userErr.Hint, tt.hint)
			assert.Contains(t, wrapped.Error(), "Details:")
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestWrapErrorPassthrough(t *testing.T) {
	assert.NoError(t, WrapError(nil))
	plain := errors.New("disk full")
	assert.Equal(t, plain, WrapError(plain))
}

func TestBatchMerge(t *testing.T) {
	var b Batch
	assert.True(t, b.Empty())
	b.Merge(&Batch{Jobs: []contracts.JobStatus{{JobID: "1"}}, RetriedJobIDs: []string{"0"}})
	b.Merge(nil)
	assert.False(t, b.Empty())
	assert.Len(t, b.Jobs, 1)
	assert.Equal(t, []string{"0"}, b.RetriedJobIDs)
}
