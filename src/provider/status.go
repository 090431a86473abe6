package provider

import (
	"strings"

	"ci-tracker/src/contracts"
)

// Vocabulary names one upstream status language.
type Vocabulary string

const (
	// GitHubConclusion covers check suite and check run conclusions.
	GitHubConclusion Vocabulary = "github"
	// TravisState covers Travis CI job states.
	TravisState Vocabulary = "travis"
	// BazelStatus covers testSummary.overallStatus in build event logs.
	BazelStatus Vocabulary = "bazel"
	// ReleaseStatus covers result.json status of release tests.
	ReleaseStatus Vocabulary = "release"
)

// Keys are lower case. A StatusNone value means "no verdict yet".
var vocabularies = map[Vocabulary]map[string]contracts.Status{
	GitHubConclusion: {
		"action_required": contracts.StatusNone,
		"cancelled":       contracts.StatusFailed,
		"failure":         contracts.StatusFailed,
		"neutral":         contracts.StatusNone,
		"success":         contracts.StatusPassed,
		"skipped":         contracts.StatusFailed,
		"stale":           contracts.StatusFailed,
		"timed_out":       contracts.StatusFailed,
		"startup_failure": contracts.StatusFailed,
	},
	TravisState: {
		"created":  contracts.StatusNone,
		"queued":   contracts.StatusNone,
		"received": contracts.StatusNone,
		"started":  contracts.StatusNone,
		"errored":  contracts.StatusFailed,
		"failed":   contracts.StatusFailed,
		"canceled": contracts.StatusFailed,
		"passed":   contracts.StatusPassed,
	},
	BazelStatus: {
		"passed":                     contracts.StatusPassed,
		"flaky":                      contracts.StatusFlaky,
		"failed":                     contracts.StatusFailed,
		"timeout":                    contracts.StatusFailed,
		"no_status":                  contracts.StatusFailed,
		"incomplete":                 contracts.StatusFailed,
		"remote_failure":             contracts.StatusFailed,
		"failed_to_build":            contracts.StatusFailed,
		"tool_halted_before_testing": contracts.StatusFailed,
	},
	ReleaseStatus: {
		"finished":      contracts.StatusPassed,
		"success":       contracts.StatusPassed,
		"runtime_error": contracts.StatusFailed,
		"infra_error":   contracts.StatusFailed,
		"infra_timeout": contracts.StatusFailed,
		"timeout":       contracts.StatusFailed,
		"error":         contracts.StatusFailed,
		"unknown error": contracts.StatusFailed,
	},
}

// Normalize maps a raw upstream status to PASSED, FAILED, FLAKY or StatusNone.
// Already normalized values map to themselves. known is false when raw is not
// part of the vocabulary; such values are treated as having no verdict.
func Normalize(v Vocabulary, raw string) (status contracts.Status, known bool) {
	switch s := contracts.Status(raw); s {
	case contracts.StatusPassed, contracts.StatusFailed, contracts.StatusFlaky:
		return s, true
	}

	status, known = vocabularies[v][strings.ToLower(strings.TrimSpace(raw))]
	return status, known
}

// Vocabularies returns every raw status of v. Used by tests and the docs command.
func Vocabularies(v Vocabulary) []string {
	out := make([]string, 0, len(vocabularies[v]))
	for k := range vocabularies[v] {
		out = append(out, k)
	}
	return out
}

// BuildkiteJob maps a Buildkite job to a verdict. Only finished jobs have one.
func BuildkiteJob(state string, passed bool) contracts.Status {
	if !strings.EqualFold(state, "FINISHED") {
		return contracts.StatusNone
	}
	if passed {
		return contracts.StatusPassed
	}
	return contracts.StatusFailed
}
