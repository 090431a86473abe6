// Package config provides configuration management for ci-tracker.
//
// Settings come from an optional YAML file; credentials and deployment
// specific endpoints come from environment variables and always win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the tracker configuration.
const (
	DefaultRepo            = "ray-project/ray"
	DefaultCommitDepth     = 100
	DefaultCacheDir        = ".ci-cache"
	DefaultLedgerDSN       = "results.db"
	DefaultOutputPath      = "snapshot.json"
	DefaultLogLevel        = "info"
	DefaultHTTPTimeout     = 60 * time.Second
	DefaultRetryAttempts   = 3
	DefaultErrorBudget     = 100
	DefaultSyncTimeout     = 60 * time.Second
	DefaultMaxObjectSize   = 100_000_000
	DefaultActionsOS       = "windows"
	DefaultBuildkiteOrg    = "ray-project"
	DefaultBranchPipeline  = "oss-ci-build-branch"
	DefaultReleasePipeline = "release-tests-branch"
	DefaultPRPipeline      = "ray-builders-pr"
	DefaultBranch          = "master"
	DefaultLogBucket       = "ray-travis-logs"
	DefaultResultsBucket   = "ray-ci-results"
)

// Config holds the application configuration.
type Config struct {
	// GitHubToken authenticates commit and check-suite lookups. Env: GITHUB_TOKEN.
	GitHubToken string `yaml:"-"`
	// BuildkiteToken authenticates GraphQL queries and artifact downloads. Env: BUILDKITE_TOKEN.
	BuildkiteToken string `yaml:"-"`
	// RedpandaBrokers enables snapshot publishing when set. Env: REDPANDA_BROKERS (comma separated).
	RedpandaBrokers []string `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	// Repo is the GitHub repository in owner/name form.
	Repo string `yaml:"repo"`
	// CommitDepth is how many of the newest commits form the scoring window.
	CommitDepth int `yaml:"commit_depth"`

	CacheDir   string `yaml:"cache_dir"`
	LedgerDSN  string `yaml:"ledger_dsn"`
	OutputPath string `yaml:"output_path"`
	// MetricsPath, when set, receives a Prometheus textfile with the fleet stats.
	MetricsPath string `yaml:"metrics_path"`

	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	// ErrorBudget is how many per-unit failures a run tolerates before aborting.
	ErrorBudget int `yaml:"error_budget"`

	GitHub      GitHubConfig      `yaml:"github"`
	Buildkite   BuildkiteConfig   `yaml:"buildkite"`
	Travis      TravisConfig      `yaml:"travis"`
	S3          S3Config          `yaml:"s3"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// GitHubConfig holds GitHub API settings.
type GitHubConfig struct {
	APIURL string `yaml:"api_url"`
	// ActionsOS is recorded as the os of GitHub Actions job rows.
	ActionsOS string `yaml:"actions_os"`
	// ActionsEnv is recorded as the build env of GitHub Actions job rows.
	ActionsEnv string `yaml:"actions_env"`
}

// BuildkiteConfig holds Buildkite pipeline settings.
type BuildkiteConfig struct {
	GraphQLURL      string `yaml:"graphql_url"`
	Org             string `yaml:"org"`
	BranchPipeline  string `yaml:"branch_pipeline"`
	ReleasePipeline string `yaml:"release_pipeline"`
	PRPipeline      string `yaml:"pr_pipeline"`
	Branch          string `yaml:"branch"`
}

// TravisConfig holds legacy Travis CI settings.
type TravisConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIURL  string `yaml:"api_url"`
	WebURL  string `yaml:"web_url"`
}

// S3Config holds archived log and results bucket settings.
type S3Config struct {
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	UsePathStyle  bool   `yaml:"use_path_style"`
	LogBucket     string `yaml:"log_bucket"`
	ResultsBucket string `yaml:"results_bucket"`
	// ResultsRoleARN, when set, is assumed to read the results bucket.
	ResultsRoleARN string `yaml:"results_role_arn"`
	// MaxObjectSize is the largest archived object, in bytes, that will be downloaded.
	MaxObjectSize int64         `yaml:"max_object_size"`
	SyncTimeout   time.Duration `yaml:"sync_timeout"`
}

// ConcurrencyConfig sizes the per-provider request limiters.
type ConcurrencyConfig struct {
	GitHub             int `yaml:"github"`
	Buildkite          int `yaml:"buildkite"`
	BuildkiteArtifacts int `yaml:"buildkite_artifacts"`
	S3                 int `yaml:"s3"`
	Travis             int `yaml:"travis"`
}

// Load reads the YAML file at path (optional, "" skips it), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from the file named by CI_TRACKER_CONFIG
// (if any) plus environment variables.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("CI_TRACKER_CONFIG"))
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func defaults() *Config {
	return &Config{
		LogLevel:      DefaultLogLevel,
		Repo:          DefaultRepo,
		CommitDepth:   DefaultCommitDepth,
		CacheDir:      DefaultCacheDir,
		LedgerDSN:     DefaultLedgerDSN,
		OutputPath:    DefaultOutputPath,
		HTTPTimeout:   DefaultHTTPTimeout,
		RetryAttempts: DefaultRetryAttempts,
		ErrorBudget:   DefaultErrorBudget,
		GitHub: GitHubConfig{
			APIURL:     "https://api.github.com",
			ActionsOS:  DefaultActionsOS,
			ActionsEnv: "github action main job",
		},
		Buildkite: BuildkiteConfig{
			GraphQLURL:      "https://graphql.buildkite.com/v1",
			Org:             DefaultBuildkiteOrg,
			BranchPipeline:  DefaultBranchPipeline,
			ReleasePipeline: DefaultReleasePipeline,
			PRPipeline:      DefaultPRPipeline,
			Branch:          DefaultBranch,
		},
		Travis: TravisConfig{
			APIURL: "https://api.travis-ci.com",
			WebURL: "https://travis-ci.com/github",
		},
		S3: S3Config{
			LogBucket:     DefaultLogBucket,
			ResultsBucket: DefaultResultsBucket,
			MaxObjectSize: DefaultMaxObjectSize,
			SyncTimeout:   DefaultSyncTimeout,
		},
		Concurrency: ConcurrencyConfig{
			GitHub:             5,
			Buildkite:          20,
			BuildkiteArtifacts: 50,
			S3:                 10,
			Travis:             10,
		},
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv("BUILDKITE_TOKEN"); v != "" {
		c.BuildkiteToken = v
	}
	if v := os.Getenv("REDPANDA_BROKERS"); v != "" {
		c.RedpandaBrokers = splitList(v)
	}
	if v := os.Getenv("LEDGER_DSN"); v != "" {
		c.LedgerDSN = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && c.S3.Region == "" {
		c.S3.Region = v
	}
	if v := os.Getenv("CI_TRACKER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	if owner, name, ok := strings.Cut(c.Repo, "/"); !ok || owner == "" || name == "" {
		return fmt.Errorf("repo %q must be in owner/name form", c.Repo)
	}
	if c.CommitDepth <= 0 {
		return fmt.Errorf("commit_depth must be positive, got %d", c.CommitDepth)
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be positive, got %d", c.RetryAttempts)
	}
	if c.ErrorBudget <= 0 {
		return fmt.Errorf("error_budget must be positive, got %d", c.ErrorBudget)
	}
	if c.HTTPTimeout <= 0 || c.S3.SyncTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	cc := c.Concurrency
	for name, v := range map[string]int{
		"github":              cc.GitHub,
		"buildkite":           cc.Buildkite,
		"buildkite_artifacts": cc.BuildkiteArtifacts,
		"s3":                  cc.S3,
		"travis":              cc.Travis,
	} {
		if v <= 0 {
			return fmt.Errorf("concurrency.%s must be positive, got %d", name, v)
		}
	}
	return nil
}

// RequireCredentials reports the missing API tokens needed to download data.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.BuildkiteToken == "" {
		missing = append(missing, "BUILDKITE_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s environment variable(s) required", strings.Join(missing, ", "))
	}
	return nil
}

// RepoOwnerName splits Repo into its owner and name.
func (c *Config) RepoOwnerName() (string, string) {
	owner, name, _ := strings.Cut(c.Repo, "/")
	return owner, name
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
