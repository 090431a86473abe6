package ranking

import (
	"math"
	"sort"

	"ci-tracker/src/contracts"
)

// DurationWindow bounds the commits whose runs feed the duration percentiles.
const DurationWindow = 50

// DurationPercentiles are reported for every ranked test.
var DurationPercentiles = []float64{0, 50, 90}

// ciLinks lists the failed and flaky runs of a test, newest commit first.
func (idx *index) ciLinks(name string) []contracts.CILink {
	links := []contracts.CILink{}
	for _, r := range idx.byTest[name] {
		if r.Status != contracts.StatusFailed && r.Status != contracts.StatusFlaky {
			continue
		}
		short := r.commit.SHA
		if len(short) > 6 {
			short = short[:6]
		}
		links = append(links, contracts.CILink{
			SHAShort:      short,
			SHA:           r.commit.SHA,
			CommitTime:    r.commit.UnixTime,
			CommitMessage: r.commit.Message,
			BuildEnv:      r.BuildEnv,
			JobURL:        r.JobURL,
			OS:            r.OS,
			Status:        r.Status,
		})
	}
	return links
}

// tooltips summarizes a test at every commit of the window. Commits where
// the test did not run have nil counts.
func (idx *index) tooltips(name string) []contracts.CommitTooltip {
	type counts struct{ failed, flaky int }
	bySHA := map[string]*counts{}
	for _, r := range idx.byTest[name] {
		c := bySHA[r.SHA]
		if c == nil {
			c = &counts{}
			bySHA[r.SHA] = c
		}
		switch r.Status {
		case contracts.StatusFailed:
			c.failed++
		case contracts.StatusFlaky:
			c.flaky++
		}
	}

	out := make([]contracts.CommitTooltip, 0, len(idx.commits))
	for _, commit := range idx.commits {
		tip := contracts.CommitTooltip{
			SHA:          commit.SHA,
			Message:      commit.Message,
			AuthorAvatar: commit.AuthorAvatarURL,
			CommitURL:    commit.URL,
		}
		if c, ok := bySHA[commit.SHA]; ok {
			failed, flaky := c.failed, c.flaky
			tip.NumFailed, tip.NumFlaky = &failed, &flaky
		}
		out = append(out, tip)
	}
	return out
}

// buildTimeStats returns the duration percentiles of a test's runs over the
// newest DurationWindow commits, or zeros when it has none.
func (idx *index) buildTimeStats(name string) []float64 {
	var durations []float64
	for _, r := range idx.byTest[name] {
		if r.commit.Index <= DurationWindow {
			durations = append(durations, r.DurationSeconds)
		}
	}
	return Percentiles(durations, DurationPercentiles...)
}

// Percentiles computes each percentile of values with linear interpolation
// between the closest ranks. An empty input yields zeros.
func Percentiles(values []float64, ps ...float64) []float64 {
	out := make([]float64, len(ps))
	if len(values) == 0 {
		return out
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for i, p := range ps {
		pos := p / 100 * float64(len(sorted)-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		frac := pos - float64(lo)
		out[i] = sorted[lo] + (sorted[hi]-sorted[lo])*frac
	}
	return out
}

// everFlaky reports whether any run of the test was labeled flaky.
func (idx *index) everFlaky(name string) bool {
	for _, r := range idx.all[name] {
		if r.IsLabeledFlaky {
			return true
		}
	}
	return false
}

// owner returns the first owner of a test by name. After the owner backfill
// a test has a single owner unless none of its rows were tagged.
func (idx *index) owner(name string) string {
	owners := distinctOwners(idx.all[name])
	if len(owners) == 0 {
		return contracts.OwnerUnknown
	}
	return owners[0]
}

// owners lists every owner recorded in the ledger.
func (idx *index) owners() []string {
	var rows []contracts.LedgerRow
	for _, name := range idx.names {
		rows = append(rows, idx.all[name]...)
	}
	return distinctOwners(rows)
}

func distinctOwners(rows []contracts.LedgerRow) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range rows {
		if !seen[r.Owner] {
			seen[r.Owner] = true
			out = append(out, r.Owner)
		}
	}
	sort.Strings(out)
	return out
}

// detail builds the ranked entry of one test.
func (idx *index) detail(t RankedTest) contracts.FailedTest {
	return contracts.FailedTest{
		Name:             t.Name,
		Weight:           t.Weight,
		StatusSegmentBar: idx.tooltips(t.Name),
		CILinks:          idx.ciLinks(t.Name),
		BuildTimeStats:   idx.buildTimeStats(t.Name),
		IsLabeledFlaky:   idx.everFlaky(t.Name),
		Owner:            idx.owner(t.Name),
	}
}
