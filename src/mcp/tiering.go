package mcp

import (
	"strings"

	"ci-tracker/src/contracts"
	"ci-tracker/src/ranking"
)

// Default test limits per tier. Tier 1 gets the most since it is the
// highest signal.
const (
	DefaultTier1Limit = 15
	DefaultTier2Limit = 10
	DefaultTier3Limit = 5
)

// DefaultLinkLimit bounds the links of get_test_details.
const DefaultLinkLimit = 10

// classifyTest returns 1 for tests that failed in the last
// ranking.RecentWindow commits, 2 for other failing tests and 3 for tests
// that are only flaky or slow.
func classifyTest(t contracts.FailedTest, s TestSummary) int {
	switch {
	case t.Weight >= ranking.RecentWeight:
		return 1
	case s.Failures > 0:
		return 2
	default:
		return 3
	}
}

func summarize(t contracts.FailedTest) TestSummary {
	s := TestSummary{
		Name:           t.Name,
		Weight:         t.Weight,
		Owner:          t.Owner,
		IsLabeledFlaky: t.IsLabeledFlaky,
		History:        t.History(),
	}
	for _, l := range t.CILinks {
		switch l.Status {
		case contracts.StatusFailed:
			s.Failures++
		case contracts.StatusFlaky:
			s.FlakyRuns++
		}
	}
	return s
}

func snapshotInfo(snap *contracts.Snapshot) SnapshotInfo {
	return SnapshotInfo{
		ID:          snap.ID,
		GeneratedAt: snap.GeneratedAt,
		RankedTests: len(snap.FailedTests),
		Owners:      snap.TestOwners,
	}
}

// TierTests groups the ranked tests of snap, keeping ranking order within a
// tier. limit sets the tier 1 limit; tiers 2 and 3 scale down from it. An
// owner, when set, keeps only that owner's tests (case-insensitive).
func TierTests(snap *contracts.Snapshot, limit int, owner string) TieredResponse {
	tier1Limit := DefaultTier1Limit
	tier2Limit := DefaultTier2Limit
	tier3Limit := DefaultTier3Limit
	if limit > 0 && limit != DefaultTier1Limit {
		tier1Limit = limit
		tier2Limit = max(1, limit*2/3)
		tier3Limit = max(1, limit/3)
	}

	resp := TieredResponse{
		Snapshot:            snapshotInfo(snap),
		Tier1RecentFailures: []TestSummary{},
		Tier2Failures:       []TestSummary{},
		Tier3FlakyOrSlow:    []TestSummary{},
	}
	for _, t := range snap.FailedTests {
		if owner != "" && !strings.EqualFold(t.Owner, owner) {
			continue
		}
		s := summarize(t)
		switch classifyTest(t, s) {
		case 1:
			if len(resp.Tier1RecentFailures) < tier1Limit {
				resp.Tier1RecentFailures = append(resp.Tier1RecentFailures, s)
				continue
			}
		case 2:
			if len(resp.Tier2Failures) < tier2Limit {
				resp.Tier2Failures = append(resp.Tier2Failures, s)
				continue
			}
		default:
			if len(resp.Tier3FlakyOrSlow) < tier3Limit {
				resp.Tier3FlakyOrSlow = append(resp.Tier3FlakyOrSlow, s)
				continue
			}
		}
		resp.Omitted++
	}
	return resp
}

// DetailOf returns the detail of the named test, or false when it is not
// ranked in snap.
func DetailOf(snap *contracts.Snapshot, name string, linkLimit int) (TestDetail, bool) {
	t, ok := snap.FindTest(name)
	if !ok {
		return TestDetail{}, false
	}
	links, omitted := compressLinks(t.CILinks, linkLimit)
	return TestDetail{
		TestSummary:     summarize(t),
		DurationSeconds: t.BuildTimeStats,
		Links:           links,
		OmittedLinks:    omitted,
	}, true
}

// Fleet returns the fleet stats of snap.
func Fleet(snap *contracts.Snapshot) FleetStats {
	fs := FleetStats{
		Snapshot:   snapshotInfo(snap),
		OwnerTable: map[string]map[string]string{},
	}
	for _, s := range snap.Stats {
		fs.Stats = append(fs.Stats, Stat{Key: s.Key, Value: s.Value, Desired: s.DesiredValue, Unit: s.Unit})
	}
	for _, w := range snap.WeeklyGreenMetric {
		fs.WeeklyGreen = append(fs.WeeklyGreen, WeeklyGreen{Date: w.Date, Blockers: w.NumOfBlockers})
	}
	for _, row := range snap.TableStat.DataSource {
		variant := row["key"]
		rates := map[string]string{}
		for owner, rate := range row {
			if owner != "key" {
				rates[owner] = rate
			}
		}
		fs.OwnerTable[variant] = rates
	}
	return fs
}
