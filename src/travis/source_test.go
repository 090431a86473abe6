package travis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/github"
	"ci-tracker/src/logger"
	"ci-tracker/src/pool"
	"ci-tracker/src/provider"
	"ci-tracker/src/retry"
)

type fakeUpstream struct {
	suites    string
	jobState  string
	buildHits int32
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/repos/ray-project/ray/commits/abc/check-suites":
		w.Write([]byte(f.suites))
	case "/repos/ray-project/ray/check-suites/3/check-runs":
		w.Write([]byte(`{"total_count":1,"check_runs":[{"id":1,"external_id":"9001"}]}`))
	case "/build/9001":
		atomic.AddInt32(&f.buildHits, 1)
		if r.Header.Get("Travis-API-Version") != "3" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("include") != buildInclude {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"id":9001,"commit":{"sha":"abc"},"jobs":[
			{"id":11,"state":"passed","started_at":"2024-01-01T00:00:00Z","finished_at":"2024-01-01T00:01:30Z",
			 "config":{"os":"linux","env":"PYTHONWARNINGS=ignore RAY_CI_SERVE=1"}},
			{"id":12,"state":%q,"config":{"os":"osx","env":["A=1","B=2"]}}]}`, f.jobState)
	default:
		http.NotFound(w, r)
	}
}

const travisSuites = `{"total_count":1,"check_suites":[{"id":3,"status":"completed","conclusion":"success","app":{"slug":"travis-ci"}}]}`

func newSource(t *testing.T, url string) (*Source, provider.Deps) {
	t.Helper()
	log := logger.NewSilentLogger()
	deps := provider.Deps{
		Cache:    fetchcache.NewDirStore(t.TempDir()),
		UseCache: true,
		Limiter:  pool.NewLimiter("travis", 1),
		Retry:    retry.Default(log),
		Logger:   log,
	}
	gh := github.NewClient("", "ray-project/ray", 5*time.Second).WithBaseURL(url)
	return NewSource(gh, url, "https://travis-ci.com/github", 5*time.Second, deps), deps
}

func TestSource_CompleteBuildIsCached(t *testing.T) {
	up := &fakeUpstream{suites: travisSuites, jobState: "failed"}
	server := httptest.NewServer(up)
	defer server.Close()

	src, _ := newSource(t, server.URL)
	batch, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc"})
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Jobs, 2)

	first := batch.Jobs[0]
	assert.Equal(t, "11", first.JobID)
	assert.Equal(t, contracts.StatusPassed, first.Status)
	assert.Equal(t, "https://travis-ci.com/github/ray-project/ray/jobs/11", first.URL)
	assert.Equal(t, "linux", first.OS)
	assert.InDelta(t, 90.0, first.DurationSeconds, 1e-9)

	second := batch.Jobs[1]
	assert.Equal(t, contracts.StatusFailed, second.Status)
	assert.Equal(t, "A=1 B=2", second.BuildEnv)
	assert.Zero(t, second.DurationSeconds)

	_, err = src.Fetch(context.Background(), contracts.Commit{SHA: "abc"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&up.buildHits))
}

func TestSource_RunningBuildIsNotReplayed(t *testing.T) {
	up := &fakeUpstream{suites: travisSuites, jobState: "started"}
	server := httptest.NewServer(up)
	defer server.Close()

	src, deps := newSource(t, server.URL)
	batch, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc"})
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, contracts.StatusNone, batch.Jobs[1].Status)

	key := fetchcache.Key("travis_cached", "abc", "build.json")
	_, hasPayload, err := deps.Cache.Get(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, hasPayload)
	_, hasMarker, err := deps.Cache.Get(context.Background(), key+fetchcache.MarkerSuffix)
	require.NoError(t, err)
	assert.False(t, hasMarker)

	_, err = src.Fetch(context.Background(), contracts.Commit{SHA: "abc"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&up.buildHits))
}

func TestSource_NoTravisSuite(t *testing.T) {
	up := &fakeUpstream{suites: `{"total_count":0,"check_suites":[]}`}
	server := httptest.NewServer(up)
	defer server.Close()

	src, _ := newSource(t, server.URL)
	batch, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc"})
	require.NoError(t, err)
	assert.Nil(t, batch)
	assert.Zero(t, atomic.LoadInt32(&up.buildHits))
}

func TestJob_Running(t *testing.T) {
	tests := []struct {
		state   string
		running bool
	}{
		{"created", true},
		{"started", true},
		{"queued", true},
		{"passed", false},
		{"errored", false},
		{"canceled", false},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.running, Job{State: tt.state}.Running())
		})
	}
}
