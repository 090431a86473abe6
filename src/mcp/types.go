// Package mcp serves the latest snapshot to LLM clients over the Model
// Context Protocol. Responses are tiered and compacted so that a client can
// triage from the overview and drill into single tests on demand.
package mcp

import "time"

// TieredResponse is the list_ranked_tests response.
type TieredResponse struct {
	Snapshot SnapshotInfo `json:"snapshot"`
	// Tier1RecentFailures failed within the most recent commits.
	Tier1RecentFailures []TestSummary `json:"tier_1_recent_failures"`
	// Tier2Failures failed somewhere in the window, but not recently.
	Tier2Failures []TestSummary `json:"tier_2_failures"`
	// Tier3FlakyOrSlow never failed outright; they are flaky or slow.
	Tier3FlakyOrSlow []TestSummary `json:"tier_3_flaky_or_slow"`
	// Omitted counts the tests left out by the per-tier limits.
	Omitted int `json:"omitted,omitempty"`
}

// SnapshotInfo identifies the snapshot a response was computed from.
type SnapshotInfo struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	RankedTests int       `json:"ranked_tests"`
	Owners      []string  `json:"owners"`
}

// TestSummary is the compact form of a ranked test.
type TestSummary struct {
	Name           string  `json:"name"`
	Weight         float64 `json:"weight"`
	Owner          string  `json:"owner"`
	IsLabeledFlaky bool    `json:"is_labeled_flaky"`
	Failures       int     `json:"failures"`
	FlakyRuns      int     `json:"flaky_runs"`
	// History has one character per commit, newest first. See FailedTest.History.
	History string `json:"history"`
}

// TestDetail is the get_test_details response.
type TestDetail struct {
	TestSummary
	// DurationSeconds holds the p0, p50 and p90 run durations.
	DurationSeconds []float64  `json:"duration_seconds"`
	Links           []LinkInfo `json:"links"`
	OmittedLinks    int        `json:"omitted_links,omitempty"`
}

// LinkInfo points at one failing or flaky run.
type LinkInfo struct {
	SHA      string `json:"sha"`
	Commit   string `json:"commit"`
	Status   string `json:"status"`
	OS       string `json:"os,omitempty"`
	BuildEnv string `json:"build_env,omitempty"`
	URL      string `json:"url"`
}

// FleetStats is the get_fleet_stats response.
type FleetStats struct {
	Snapshot    SnapshotInfo                 `json:"snapshot"`
	Stats       []Stat                       `json:"stats"`
	WeeklyGreen []WeeklyGreen                `json:"weekly_green,omitempty"`
	OwnerTable  map[string]map[string]string `json:"owner_pass_rates"`
}

// Stat is one fleet health number and its target.
type Stat struct {
	Key     string  `json:"key"`
	Value   float64 `json:"value"`
	Desired float64 `json:"desired"`
	Unit    string  `json:"unit"`
}

// WeeklyGreen is one point of the weekly blocker series.
type WeeklyGreen struct {
	Date     string `json:"date"`
	Blockers int    `json:"blockers"`
}
