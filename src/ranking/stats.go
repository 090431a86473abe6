package ranking

import (
	"fmt"
	"sort"
	"strings"

	"ci-tracker/src/contracts"
)

// Fleet stat keys.
const (
	StatMasterGreen          = "Master Green (past 100 commits)"
	StatMasterGreenNoWindows = "Master Green (without windows)"
	StatMasterGreenNoFlaky   = "Master Green (without window + flaky tests)"
	StatPRBuildP50           = "P50 Buildkite PR Build Time (last 500 builds)"
	StatTestsBelowPassRate   = "Tests Below 95% Pass Rate"
)

const (
	DesiredPRBuildMinutes = 45
	PassRateThreshold     = 0.95
)

const (
	windowsOS     = "windows"
	canceledState = "CANCELED"

	tableStatKeyColumn        = "key"
	tableStatAll              = "Pass Rate"
	tableStatNoWindows        = "Pass Rate (No Windows)"
	tableStatNoWindowsNoFlaky = "Pass Rate (No Windows, Flaky)"
)

type rowFilter func(r windowRow) bool

func notStaging(r windowRow) bool { return !r.IsStaging }

func scored(r windowRow) bool { return r.commit.Index < ScoreWindow }

func notWindows(r windowRow) bool { return !strings.EqualFold(r.OS, windowsOS) }

func notFlaky(r windowRow) bool { return !r.IsLabeledFlaky }

func allOf(filters ...rowFilter) rowFilter {
	return func(r windowRow) bool {
		for _, f := range filters {
			if !f(r) {
				return false
			}
		}
		return true
	}
}

// greenRate returns the share of groups without a failed row. Rows are
// grouped by key; only rows that pass keep are considered, so a group with
// no such rows does not count. ok is false when no group remains.
func greenRate(rows []windowRow, keep rowFilter, key func(windowRow) string) (rate float64, ok bool) {
	green := map[string]bool{}
	for _, r := range rows {
		if !keep(r) {
			continue
		}
		k := key(r)
		if _, seen := green[k]; !seen {
			green[k] = true
		}
		if r.Status == contracts.StatusFailed {
			green[k] = false
		}
	}
	if len(green) == 0 {
		return 0, false
	}
	n := 0
	for _, g := range green {
		if g {
			n++
		}
	}
	return float64(n) / float64(len(green)), true
}

func bySHA(r windowRow) string { return r.SHA }

func (idx *index) windowRows() []windowRow {
	var out []windowRow
	for _, name := range idx.names {
		out = append(out, idx.byTest[name]...)
	}
	return out
}

// stats computes the fleet-wide health numbers.
func (idx *index) stats(prBuilds []contracts.PRBuildTime) []contracts.StatItem {
	rows := idx.windowRows()
	percent := func(keep rowFilter) float64 {
		rate, _ := greenRate(rows, allOf(scored, keep), bySHA)
		return rate * 100
	}

	return []contracts.StatItem{
		{Key: StatMasterGreen, Unit: "%", Value: percent(notStaging), DesiredValue: 100},
		{Key: StatMasterGreenNoWindows, Unit: "%", Value: percent(allOf(notStaging, notWindows)), DesiredValue: 100},
		{Key: StatMasterGreenNoFlaky, Unit: "%", Value: percent(allOf(notStaging, notWindows, notFlaky)), DesiredValue: 100},
		{Key: StatPRBuildP50, Unit: "min", Value: PRBuildP50(prBuilds), DesiredValue: DesiredPRBuildMinutes},
		{Key: StatTestsBelowPassRate, Unit: "tests", Value: float64(idx.testsBelowPassRate(PassRateThreshold)), DesiredValue: 0},
	}
}

// PRBuildP50 returns the median wall time, in minutes, of the PR builds that
// ran and were not canceled. The upper median is used for even counts.
func PRBuildP50(builds []contracts.PRBuildTime) float64 {
	var minutes []float64
	for _, b := range builds {
		d := b.DurationMinutes()
		if d <= 0 || strings.Contains(strings.ToUpper(b.State), canceledState) {
			continue
		}
		minutes = append(minutes, d)
	}
	if len(minutes) == 0 {
		return 0
	}
	sort.Float64s(minutes)
	return minutes[len(minutes)/2]
}

// testsBelowPassRate counts the tests whose share of green commits in the
// score window is below threshold.
func (idx *index) testsBelowPassRate(threshold float64) int {
	n := 0
	for _, name := range idx.names {
		if rate, ok := greenRate(idx.byTest[name], allOf(scored, notStaging), bySHA); ok && rate < threshold {
			n++
		}
	}
	return n
}

// tableStat computes the pass rate of every owner's tests, with and without
// windows and flaky tests.
func (idx *index) tableStat() contracts.TableStat {
	rows := idx.windowRows()
	inWindow := func(r windowRow) bool { return r.commit.Index <= ScoreWindow }

	perOwner := func(keep rowFilter) map[string]float64 {
		byOwner := map[string][]windowRow{}
		for _, r := range rows {
			if keep(r) {
				byOwner[r.Owner] = append(byOwner[r.Owner], r)
			}
		}
		out := map[string]float64{}
		for owner, ownerRows := range byOwner {
			if rate, ok := greenRate(ownerRows, inWindow, bySHA); ok {
				out[owner] = rate
			}
		}
		return out
	}

	everything := perOwner(inWindow)
	variants := []struct {
		key   string
		rates map[string]float64
	}{
		{tableStatAll, everything},
		{tableStatNoWindows, perOwner(allOf(inWindow, notWindows))},
		{tableStatNoWindowsNoFlaky, perOwner(allOf(inWindow, notWindows, notFlaky))},
	}

	owners := make([]string, 0, len(everything))
	for owner := range everything {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	stat := contracts.TableStat{
		DataSource: make([]map[string]string, 0, len(variants)),
		Columns:    []contracts.TableColumn{{Title: "", DataIndex: tableStatKeyColumn, Key: tableStatKeyColumn}},
	}
	for _, v := range variants {
		row := map[string]string{tableStatKeyColumn: v.key}
		for owner, rate := range v.rates {
			row[owner] = fmt.Sprintf("%d%%", int(rate*100))
		}
		stat.DataSource = append(stat.DataSource, row)
	}
	for _, owner := range owners {
		stat.Columns = append(stat.Columns, contracts.TableColumn{Title: owner, DataIndex: owner, Key: owner})
	}
	return stat
}
