package buildkite

import (
	"context"
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"ci-tracker/src/contracts"
	"ci-tracker/src/logger"
	"ci-tracker/src/pool"
	"ci-tracker/src/provider"
)

// Cache tree prefixes of mirrored artifacts.
const (
	BazelEventsDir = "bazel_events"
	ReleaseJSONDir = "release_test_json"
)

// artifactsOf returns the artifacts of job whose path passes keep, placed at
// <prefix>/<branch>/<sha>/<job>/<file> below the cache root.
func artifactsOf(job *Job, prefix, branch string, keep func(path string) bool) []contracts.Artifact {
	var out []contracts.Artifact
	for _, e := range job.Artifacts.Edges {
		if !keep(e.Node.Path) {
			continue
		}
		out = append(out, contracts.Artifact{
			URL:   e.Node.DownloadURL,
			Path:  path.Join(prefix, branch, job.Build.Commit, job.UUID, path.Base(e.Node.Path)),
			JobID: job.UUID,
			SHA:   job.Build.Commit,
		})
	}
	return out
}

// mirror downloads artifacts below root, skipping files already present.
// Artifacts that no longer exist upstream are skipped; any other failure
// aborts. It returns the number of artifacts available on disk.
func mirror(ctx context.Context, hc *http.Client, limiter *pool.Limiter, log logger.Logger, root string, artifacts []contracts.Artifact) (int, error) {
	available := 0
	for _, a := range artifacts {
		dest := filepath.Join(root, filepath.FromSlash(a.Path))
		err := limiter.Do(ctx, func(ctx context.Context) error {
			_, err := provider.DownloadFile(ctx, hc, providerName, a.URL, nil, dest)
			return err
		})
		if errors.Is(err, provider.ErrNotFound) {
			log.Warn("artifact %s of job %s is gone (404), skipping", a.Path, a.JobID)
			continue
		}
		if err != nil {
			return available, err
		}
		available++
	}
	return available, nil
}

func isBazelEventLog(p string) bool {
	return strings.Contains(p, "bazel_event_logs")
}

func isJSON(p string) bool {
	return strings.Contains(p, ".json")
}
