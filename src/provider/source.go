// Package provider holds what every CI source adapter shares: the Source
// contract, status vocabularies and upstream error classification.
package provider

import (
	"context"

	"ci-tracker/src/contracts"
)

// Batch is everything one source learned about one commit.
type Batch struct {
	// Jobs are coarse whole-job verdicts.
	Jobs []contracts.JobStatus `json:"jobs,omitempty"`
	// Builds carry granular per-test results.
	Builds []contracts.BuildResult `json:"builds,omitempty"`
	// RetriedJobIDs were superseded by a retry and must not be counted.
	RetriedJobIDs []string `json:"retried_job_ids,omitempty"`
}

// Merge appends other into b.
func (b *Batch) Merge(other *Batch) {
	if other == nil {
		return
	}
	b.Jobs = append(b.Jobs, other.Jobs...)
	b.Builds = append(b.Builds, other.Builds...)
	b.RetriedJobIDs = append(b.RetriedJobIDs, other.RetriedJobIDs...)
}

// Empty reports whether the batch carries no data.
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Jobs) == 0 && len(b.Builds) == 0 && len(b.RetriedJobIDs) == 0)
}

// Source produces the CI signal of one provider for a commit. A nil batch
// with a nil error means the provider has nothing for the commit yet. A batch
// may come with an error when only part of the commit failed (for example
// one job's artifacts); callers keep the batch and account for the error.
// Implementations cache their own results and bound their own concurrency.
type Source interface {
	// Name returns the provider name (e.g., "buildkite", "github-actions")
	Name() string

	Fetch(ctx context.Context, commit contracts.Commit) (*Batch, error)
}
