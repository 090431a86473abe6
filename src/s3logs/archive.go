package s3logs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ci-tracker/src/bazel"
	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
	"ci-tracker/src/provider"
	"ci-tracker/src/retry"
)

// ArchiveOptions locates the archived logs of a branch.
type ArchiveOptions struct {
	Bucket string
	Branch string
	// CacheRoot is the directory objects are mirrored into, keeping their keys.
	CacheRoot string
	// MaxObjectSize is the largest object, in bytes, that is downloaded.
	MaxObjectSize int64
	// SyncTimeout bounds the sync of one commit. A commit that does not finish
	// in time is treated as having no data.
	SyncTimeout time.Duration
}

// ArchiveSource reports the per-test results of every job whose bazel event
// logs were archived to S3 under bazel_events/<branch>/<sha>/<job_id>/.
type ArchiveSource struct {
	api    API
	opts   ArchiveOptions
	deps   provider.Deps
	parser *bazel.Parser
}

// NewArchiveSource creates an archive source.
func NewArchiveSource(api API, opts ArchiveOptions, deps provider.Deps, parser *bazel.Parser) *ArchiveSource {
	return &ArchiveSource{api: api, opts: opts, deps: deps, parser: parser}
}

// Name returns the provider name.
func (s *ArchiveSource) Name() string {
	return "s3"
}

// Fetch implements provider.Source.
func (s *ArchiveSource) Fetch(ctx context.Context, commit contracts.Commit) (*provider.Batch, error) {
	key := fetchcache.Key("bazel_cached", commit.SHA, "cached_result.json")
	batch, ok, err := provider.Fetch(ctx, s.deps, key, "archived logs of "+commit.SHA, func(ctx context.Context) (*provider.Batch, fetchcache.Completeness, error) {
		return s.fetch(ctx, commit.SHA)
	})
	if err != nil || !ok {
		return nil, err
	}
	return batch, nil
}

func (s *ArchiveSource) prefix(sha string) string {
	return path.Join("bazel_events", s.opts.Branch, sha) + "/"
}

func (s *ArchiveSource) fetch(ctx context.Context, sha string) (*provider.Batch, fetchcache.Completeness, error) {
	syncCtx, cancel := context.WithTimeout(ctx, s.opts.SyncTimeout)
	defer cancel()

	n, err := s.sync(syncCtx, s.prefix(sha))
	if err != nil && ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || syncCtx.Err() != nil) {
		s.deps.Logger.Warn("sync of archived logs for %s timed out after %s", sha, s.opts.SyncTimeout)
		return nil, fetchcache.Absent, nil
	}
	if err != nil {
		return nil, fetchcache.Absent, err
	}
	if n == 0 {
		return nil, fetchcache.Absent, nil
	}

	dir := filepath.Join(s.opts.CacheRoot, filepath.FromSlash(s.prefix(sha)))
	builds, err := s.parser.ProcessCommitDir(dir)
	if err != nil {
		return nil, fetchcache.Absent, err
	}
	if len(builds) == 0 {
		return nil, fetchcache.Absent, nil
	}
	return &provider.Batch{Builds: builds}, fetchcache.Complete, nil
}

// sync mirrors every object below prefix into the cache root and returns the
// number of objects available locally. Objects above MaxObjectSize are skipped.
func (s *ArchiveSource) sync(ctx context.Context, prefix string) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(prefix),
	})

	available := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return available, s.classify(fmt.Errorf("failed to list s3://%s/%s: %w", s.opts.Bucket, prefix, err))
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			if size := aws.ToInt64(obj.Size); s.opts.MaxObjectSize > 0 && size > s.opts.MaxObjectSize {
				s.deps.Logger.Warn("skipping s3://%s/%s because it is too large: %d bytes", s.opts.Bucket, key, size)
				continue
			}

			dest := filepath.Join(s.opts.CacheRoot, filepath.FromSlash(key))
			if _, err := os.Stat(dest); err == nil {
				available++
				continue
			}

			ok, err := s.download(ctx, key, dest)
			if err != nil {
				return available, err
			}
			if ok {
				available++
			}
		}
	}
	return available, nil
}

// download copies one object to dest. A key deleted since it was listed is skipped.
func (s *ArchiveSource) download(ctx context.Context, key, dest string) (bool, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, s.classify(fmt.Errorf("failed to get s3://%s/%s: %w", s.opts.Bucket, key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read s3://%s/%s: %w", s.opts.Bucket, key, err)
	}
	if err := fetchcache.WriteFileAtomic(dest, data); err != nil {
		return false, err
	}
	return true, nil
}

// classify marks credential errors as fatal so they are not retried.
func (s *ArchiveSource) classify(err error) error {
	if isAccessDenied(err) {
		return retry.Fatal(fmt.Errorf("%w: %v", provider.ErrAuthFailed, err))
	}
	return err
}
