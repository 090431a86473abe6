package bazel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ci-tracker/src/contracts"
	"ci-tracker/src/junit"
)

// MetadataFile describes the job that uploaded a directory of logs.
const MetadataFile = "metadata.json"

// LogGlob matches build event logs inside a job directory.
const LogGlob = "bazel_log.*"

type metadata struct {
	BuildEnv struct {
		Commit string `json:"TRAVIS_COMMIT"`
		JobURL string `json:"TRAVIS_JOB_WEB_URL"`
		OS     string `json:"TRAVIS_OS_NAME"`
	} `json:"build_env"`
	BuildConfig struct {
		Config struct {
			Env json.RawMessage `json:"env"`
		} `json:"config"`
	} `json:"build_config"`
}

// JobInfo identifies a job when its directory carries no metadata file.
type JobInfo struct {
	SHA      string
	JobURL   string
	OS       string
	BuildEnv string
}

// ProcessJobDir builds the BuildResult of one job directory named after the
// job id. Job details come from metadata.json, or from fallback when the file
// is missing. With neither, the directory is not a job and nil is returned.
// Every bazel_log.* file and every *.xml JUnit report contributes results.
func (p *Parser) ProcessJobDir(dir string, fallback *JobInfo) (*contracts.BuildResult, error) {
	info, err := readMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}
	if info == nil {
		if fallback == nil {
			return nil, nil
		}
		info = fallback
	}

	result := &contracts.BuildResult{
		SHA:      info.SHA,
		JobID:    filepath.Base(dir),
		JobURL:   info.JobURL,
		OS:       info.OS,
		BuildEnv: info.BuildEnv,
		Results:  []contracts.TestResult{},
	}

	logs, err := filepath.Glob(filepath.Join(dir, LogGlob))
	if err != nil {
		return nil, fmt.Errorf("failed to list bazel logs in %s: %w", dir, err)
	}
	sort.Strings(logs)
	for _, path := range logs {
		tests, err := p.ParseFile(path)
		if err != nil {
			return nil, err
		}
		result.Results = append(result.Results, tests...)
	}

	reports, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list junit reports in %s: %w", dir, err)
	}
	sort.Strings(reports)
	for _, path := range reports {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read junit report %s: %w", path, err)
		}
		tests, err := junit.Parse(data)
		if err != nil {
			p.log.Warn("skipping junit report %s: %v", path, err)
			continue
		}
		result.Results = append(result.Results, tests...)
	}

	return result, nil
}

// ProcessCommitDir processes every job directory below dir. A job that
// cannot be read is skipped with a warning.
func (p *Parser) ProcessCommitDir(dir string) ([]contracts.BuildResult, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var results []contracts.BuildResult
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		jobDir := filepath.Join(dir, e.Name())
		br, err := p.ProcessJobDir(jobDir, nil)
		if err != nil {
			p.log.Warn("skipping job dir %s: %v", jobDir, err)
			continue
		}
		if br != nil {
			results = append(results, *br)
		}
	}
	return results, nil
}

func readMetadata(path string) (*JobInfo, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var md metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &JobInfo{
		SHA:      md.BuildEnv.Commit,
		JobURL:   md.BuildEnv.JobURL,
		OS:       md.BuildEnv.OS,
		BuildEnv: envString(md.BuildConfig.Config.Env),
	}, nil
}

// envString flattens the env entry, which is either a string or a list of strings.
func envString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, " ")
	}
	return string(raw)
}
