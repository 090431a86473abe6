package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GITHUB_TOKEN", "BUILDKITE_TOKEN", "REDPANDA_BROKERS", "LEDGER_DSN", "AWS_REGION", "CI_TRACKER_LOG_LEVEL", "CI_TRACKER_CONFIG"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultRepo, cfg.Repo)
	assert.Equal(t, 100, cfg.CommitDepth)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 100, cfg.ErrorBudget)
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, int64(100_000_000), cfg.S3.MaxObjectSize)
	assert.Equal(t, 5, cfg.Concurrency.GitHub)
	assert.Equal(t, 20, cfg.Concurrency.Buildkite)
	assert.Empty(t, cfg.RedpandaBrokers)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("BUILDKITE_TOKEN", "bk-token")
	t.Setenv("REDPANDA_BROKERS", "localhost:19092, other:9092,")
	t.Setenv("LEDGER_DSN", "postgres://localhost/ci")

	path := filepath.Join(t.TempDir(), "ci-tracker.yaml")
	yamlDoc := `
repo: example/project
commit_depth: 50
http_timeout: 15s
buildkite:
  branch_pipeline: nightly
concurrency:
  s3: 3
s3:
  sync_timeout: 2m
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "example/project", cfg.Repo)
	assert.Equal(t, 50, cfg.CommitDepth)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "nightly", cfg.Buildkite.BranchPipeline)
	assert.Equal(t, DefaultReleasePipeline, cfg.Buildkite.ReleasePipeline)
	assert.Equal(t, 3, cfg.Concurrency.S3)
	assert.Equal(t, 2*time.Minute, cfg.S3.SyncTimeout)
	assert.Equal(t, "gh-token", cfg.GitHubToken)
	assert.Equal(t, "bk-token", cfg.BuildkiteToken)
	assert.Equal(t, []string{"localhost:19092", "other:9092"}, cfg.RedpandaBrokers)
	assert.Equal(t, "postgres://localhost/ci", cfg.LedgerDSN)

	owner, name := cfg.RepoOwnerName()
	assert.Equal(t, "example", owner)
	assert.Equal(t, "project", name)
}

func TestLoadFromEnvUsesConfigPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commit_depth: 7\n"), 0o644))
	t.Setenv("CI_TRACKER_CONFIG", path)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CommitDepth)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad repo", "repo: noslash\n"},
		{"zero depth", "commit_depth: 0\n"},
		{"zero retries", "retry_attempts: 0\n"},
		{"negative concurrency", "concurrency:\n  github: -1\n"},
		{"invalid yaml", "repo: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRequireCredentials(t *testing.T) {
	cfg := defaults()
	err := cfg.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	assert.Contains(t, err.Error(), "BUILDKITE_TOKEN")

	cfg.GitHubToken = "a"
	cfg.BuildkiteToken = "b"
	assert.NoError(t, cfg.RequireCredentials())
}

func TestMustLoadFromEnvPanicsOnInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repo: bad\n"), 0o644))
	t.Setenv("CI_TRACKER_CONFIG", path)

	assert.Panics(t, func() { MustLoadFromEnv() })
}
