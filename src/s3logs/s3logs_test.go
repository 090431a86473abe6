package s3logs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ci-tracker/src/bazel"
	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/logger"
	"ci-tracker/src/pool"
	"ci-tracker/src/provider"
	"ci-tracker/src/retry"
)

type fakeObject struct {
	body     []byte
	size     int64
	modified time.Time
}

// fakeS3 serves a flat key space, two keys per listing page.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	gets    map[string]int
	// getErr, when set, is returned for every GetObject call.
	getErr error
	// block makes GetObject wait for its context to end.
	block bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}, gets: map[string]int{}}
}

func (f *fakeS3) put(key, body string, modified time.Time) {
	f.objects[key] = fakeObject{body: []byte(body), size: int64(len(body)), modified: modified}
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start = sort.SearchStrings(keys, tok)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(obj.size),
			LastModified: aws.Time(obj.modified),
		})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := aws.ToString(in.Key)
	f.gets[key]++
	if f.getErr != nil {
		return nil, f.getErr
	}
	obj, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

func (f *fakeS3) getCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[key]
}

const jobLog = `{"id":{"targetConfigured":{"label":"//python/ray/tests:test_basic"}},"configured":{"tag":["team:core"]}}
{"id":{"testSummary":{"label":"//python/ray/tests:test_basic"}},"testSummary":{"overallStatus":"FAILED","totalRunDurationMillis":"2000"}}
`

const jobMetadata = `{"build_env":{"TRAVIS_COMMIT":"abc123","TRAVIS_JOB_WEB_URL":"https://ci/job/1","TRAVIS_OS_NAME":"linux"},"build_config":{"config":{"env":"PYTHON=3.8"}}}`

func archiveDeps(t *testing.T, useCache bool) provider.Deps {
	t.Helper()
	log := logger.NewSilentLogger()
	return provider.Deps{
		Cache:    fetchcache.NewDirStore(t.TempDir()),
		UseCache: useCache,
		Limiter:  pool.NewLimiter("s3", 2),
		Retry:    retry.Default(log),
		Logger:   log,
	}
}

func archiveOptions(t *testing.T) ArchiveOptions {
	return ArchiveOptions{
		Bucket:        "logs",
		Branch:        "master",
		CacheRoot:     t.TempDir(),
		MaxObjectSize: 1000,
		SyncTimeout:   5 * time.Second,
	}
}

func TestArchiveSource_SyncAndParse(t *testing.T) {
	api := newFakeS3()
	now := time.Now()
	api.put("bazel_events/master/abc123/job1/metadata.json", jobMetadata, now)
	api.put("bazel_events/master/abc123/job1/bazel_log.1", jobLog, now)
	api.put("bazel_events/master/abc123/job1/bazel_log.huge", strings.Repeat("x", 2000), now)
	api.put("bazel_events/master/abc123/", "", now)
	api.put("bazel_events/master/other/job9/bazel_log.1", jobLog, now)

	deps := archiveDeps(t, true)
	opts := archiveOptions(t)
	src := NewArchiveSource(api, opts, deps, bazel.NewParser(deps.Logger))
	assert.Equal(t, "s3", src.Name())

	batch, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc123"})
	require.NoError(t, err)
	require.NotNil(t, batch)
	require.Len(t, batch.Builds, 1)

	build := batch.Builds[0]
	assert.Equal(t, "job1", build.JobID)
	assert.Equal(t, "linux", build.OS)
	assert.Equal(t, "PYTHON=3.8", build.BuildEnv)
	require.Len(t, build.Results, 1)
	assert.Equal(t, contracts.StatusFailed, build.Results[0].Status)
	assert.Equal(t, "core", build.Results[0].Owner)

	assert.Zero(t, api.getCount("bazel_events/master/abc123/job1/bazel_log.huge"), "oversized objects are never fetched")
	assert.Zero(t, api.getCount("bazel_events/master/other/job9/bazel_log.1"))
	_, err = os.Stat(filepath.Join(opts.CacheRoot, "bazel_events/master/abc123/job1/bazel_log.huge"))
	assert.True(t, os.IsNotExist(err))

	_, ok, err := deps.Cache.Get(context.Background(), "bazel_cached/abc123/cached_result.json.complete")
	require.NoError(t, err)
	assert.True(t, ok)

	// Replay comes from the cache without touching S3.
	again, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, batch.Builds, again.Builds)
	assert.Equal(t, 1, api.getCount("bazel_events/master/abc123/job1/bazel_log.1"))
}

func TestArchiveSource_SkipsFilesAlreadyOnDisk(t *testing.T) {
	api := newFakeS3()
	api.put("bazel_events/master/abc123/job1/metadata.json", jobMetadata, time.Now())
	api.put("bazel_events/master/abc123/job1/bazel_log.1", jobLog, time.Now())

	deps := archiveDeps(t, false)
	opts := archiveOptions(t)
	local := filepath.Join(opts.CacheRoot, "bazel_events/master/abc123/job1/bazel_log.1")
	require.NoError(t, fetchcache.WriteFileAtomic(local, []byte(jobLog)))

	src := NewArchiveSource(api, opts, deps, bazel.NewParser(deps.Logger))
	batch, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc123"})
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Zero(t, api.getCount("bazel_events/master/abc123/job1/bazel_log.1"))
	assert.Equal(t, 1, api.getCount("bazel_events/master/abc123/job1/metadata.json"))
}

func TestArchiveSource_NoObjectsIsAbsent(t *testing.T) {
	deps := archiveDeps(t, true)
	src := NewArchiveSource(newFakeS3(), archiveOptions(t), deps, bazel.NewParser(deps.Logger))

	batch, err := src.Fetch(context.Background(), contracts.Commit{SHA: "missing"})
	require.NoError(t, err)
	assert.Nil(t, batch)

	_, ok, err := deps.Cache.Get(context.Background(), "bazel_cached/missing/cached_result.json")
	require.NoError(t, err)
	assert.False(t, ok, "absent results are not cached")
}

func TestArchiveSource_TimeoutIsAbsent(t *testing.T) {
	api := newFakeS3()
	api.put("bazel_events/master/abc123/job1/bazel_log.1", jobLog, time.Now())
	api.block = true

	deps := archiveDeps(t, true)
	opts := archiveOptions(t)
	opts.SyncTimeout = 20 * time.Millisecond
	src := NewArchiveSource(api, opts, deps, bazel.NewParser(deps.Logger))

	batch, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc123"})
	require.NoError(t, err)
	assert.Nil(t, batch)

	_, ok, err := deps.Cache.Get(context.Background(), "bazel_cached/abc123/cached_result.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchiveSource_AccessDeniedIsNotRetried(t *testing.T) {
	api := newFakeS3()
	api.put("bazel_events/master/abc123/job1/bazel_log.1", jobLog, time.Now())
	api.getErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}

	deps := archiveDeps(t, true)
	src := NewArchiveSource(api, archiveOptions(t), deps, bazel.NewParser(deps.Logger))

	_, err := src.Fetch(context.Background(), contracts.Commit{SHA: "abc123"})
	require.ErrorIs(t, err, provider.ErrAuthFailed)
	assert.Equal(t, 1, api.getCount("bazel_events/master/abc123/job1/bazel_log.1"))
}

func TestFlakyStates(t *testing.T) {
	api := newFakeS3()
	api.put(StateKey("linux://python/ray/tests:test_actor"), `{"state":"flaky"}`, time.Now())
	api.put(StateKey("linux://python/ray/tests:test_basic"), `{"owner":"core"}`, time.Now())
	api.put(StateKey("linux://python/ray/tests:test_garbled"), `{"state":`, time.Now())

	states := NewFlakyStates(api, "results", pool.NewLimiter("s3", 2), logger.NewSilentLogger())

	assert.Equal(t, "ray_tests/linux:__python_ray_tests:test_actor.json", StateKey("linux://python/ray/tests:test_actor"))

	states.Prefetch(context.Background(), []string{
		"linux://python/ray/tests:test_actor",
		"linux://python/ray/tests:test_basic",
		"linux://python/ray/tests:test_garbled",
		"linux://python/ray/tests:test_missing",
	})

	ctx := context.Background()
	assert.True(t, states.IsFlaky(ctx, "linux://python/ray/tests:test_actor"))
	assert.Equal(t, StatePassing, states.State(ctx, "linux://python/ray/tests:test_basic"))
	assert.Equal(t, StatePassing, states.State(ctx, "linux://python/ray/tests:test_garbled"))
	assert.False(t, states.IsFlaky(ctx, "linux://python/ray/tests:test_missing"))

	// Every lookup after the prefetch is served from memory.
	assert.Equal(t, 1, api.getCount(StateKey("linux://python/ray/tests:test_actor")))
	assert.Equal(t, 1, api.getCount(StateKey("linux://python/ray/tests:test_missing")))
}

func TestFlakyStates_CancelledLookupIsRetried(t *testing.T) {
	api := newFakeS3()
	name := "linux://python/ray/tests:test_actor"
	api.put(StateKey(name), `{"state":"flaky"}`, time.Now())
	states := NewFlakyStates(api, "results", pool.NewLimiter("s3", 1), logger.NewSilentLogger())

	api.block = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, StatePassing, states.State(ctx, name))

	api.block = false
	assert.True(t, states.IsFlaky(context.Background(), name))
}

func TestWeeklyGreen(t *testing.T) {
	api := newFakeS3()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < WeeklyGreenLimit+5; i++ {
		key := WeeklyGreenPrefix + time.Duration(i).String() + ".json"
		api.put(key, `{"core":1,"serve":2}`, day.AddDate(0, 0, i))
	}
	api.put("unrelated/blocker.json", `{"core":100}`, day.AddDate(1, 0, 0))

	metrics, err := WeeklyGreen(context.Background(), api, "results")
	require.NoError(t, err)
	require.Len(t, metrics, WeeklyGreenLimit)

	assert.Equal(t, day.AddDate(0, 0, WeeklyGreenLimit+4).Format("2006-01-02"), metrics[0].Date)
	assert.Equal(t, 3, metrics[0].NumOfBlockers)
	assert.Equal(t, day.AddDate(0, 0, 5).Format("2006-01-02"), metrics[len(metrics)-1].Date)
}

func TestWeeklyGreen_MalformedReport(t *testing.T) {
	api := newFakeS3()
	api.put(WeeklyGreenPrefix+"1.json", `["not","a","map"]`, time.Now())

	_, err := WeeklyGreen(context.Background(), api, "results")
	require.Error(t, err)
}
