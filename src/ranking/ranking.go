// Package ranking scores the tests of a results ledger and builds the
// snapshot document consumed by the dashboard, the MCP server and the TUI.
//
// Everything here is a pure function of the ledger contents, so the same
// ledger always produces the same ranking.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ci-tracker/src/contracts"
)

// Weight coefficients. A failure in the last RecentWindow commits outweighs
// any amount of older history.
const (
	RecentWindow   = 10
	ScoreWindow    = 100
	RecentWeight   = 1_000_000
	ReleaseWeight  = 1_000
	FlakyWeight    = 0.1
	SlowPassWeight = 0.001
	// SlowPassSeconds is the duration above which a passing run still counts.
	SlowPassSeconds = 600
)

// ReleaseTestPrefix marks release tests, whose failures are boosted.
const ReleaseTestPrefix = "release://"

// Ledger is the scoring input: the commit window and every row recorded against it.
type Ledger struct {
	Commits  []contracts.Commit
	Rows     []contracts.LedgerRow
	PRBuilds []contracts.PRBuildTime
}

// Source reads a ledger.
type Source interface {
	Commits(ctx context.Context) ([]contracts.Commit, error)
	Rows(ctx context.Context) ([]contracts.LedgerRow, error)
	PRBuildTimes(ctx context.Context) ([]contracts.PRBuildTime, error)
}

// Load reads the whole ledger from src.
func Load(ctx context.Context, src Source) (Ledger, error) {
	var (
		l   Ledger
		err error
	)
	if l.Commits, err = src.Commits(ctx); err != nil {
		return Ledger{}, err
	}
	if l.Rows, err = src.Rows(ctx); err != nil {
		return Ledger{}, err
	}
	if l.PRBuilds, err = src.PRBuildTimes(ctx); err != nil {
		return Ledger{}, err
	}
	return l, nil
}

// RankedTest is one test and its score.
type RankedTest struct {
	Name   string
	Weight float64
}

// windowRow is a ledger row joined with the commit it ran on.
type windowRow struct {
	contracts.LedgerRow
	commit contracts.Commit
}

// index groups the rows of a ledger by test. Rows whose commit is not in the
// window are kept in all but left out of byTest.
type index struct {
	commits []contracts.Commit
	bySHA   map[string]contracts.Commit
	byTest  map[string][]windowRow
	all     map[string][]contracts.LedgerRow
	names   []string
}

func newIndex(l Ledger) *index {
	idx := &index{
		commits: make([]contracts.Commit, len(l.Commits)),
		bySHA:   make(map[string]contracts.Commit, len(l.Commits)),
		byTest:  map[string][]windowRow{},
		all:     map[string][]contracts.LedgerRow{},
	}
	copy(idx.commits, l.Commits)
	sort.SliceStable(idx.commits, func(i, j int) bool { return idx.commits[i].Index < idx.commits[j].Index })
	for _, c := range idx.commits {
		idx.bySHA[c.SHA] = c
	}

	for _, row := range l.Rows {
		if _, seen := idx.all[row.TestName]; !seen {
			idx.names = append(idx.names, row.TestName)
		}
		idx.all[row.TestName] = append(idx.all[row.TestName], row)
		if c, ok := idx.bySHA[row.SHA]; ok {
			idx.byTest[row.TestName] = append(idx.byTest[row.TestName], windowRow{LedgerRow: row, commit: c})
		}
	}
	sort.Strings(idx.names)
	for _, rows := range idx.byTest {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].commit.Index < rows[j].commit.Index })
	}
	return idx
}

// weight scores the rows of one test. Failures count by recency, flaky and
// slow passing runs add a small fraction, and release test failures are
// boosted.
func weight(name string, rows []windowRow) float64 {
	release := strings.HasPrefix(name, ReleaseTestPrefix)

	var recent, failed, releaseFailed, flaky, slow float64
	for _, r := range rows {
		i := r.commit.Index
		if i >= ScoreWindow {
			continue
		}
		age := float64(ScoreWindow - i)
		switch r.Status {
		case contracts.StatusFailed:
			if i < RecentWindow {
				recent += float64(RecentWindow - i)
			}
			failed += age
			if release {
				releaseFailed += age
			}
		case contracts.StatusFlaky:
			flaky += age
		case contracts.StatusPassed:
			if r.DurationSeconds > SlowPassSeconds {
				slow += age
			}
		}
	}
	return RecentWeight*recent + ReleaseWeight*releaseFailed + failed + FlakyWeight*flaky + SlowPassWeight*slow
}

// Rank returns every test with a positive weight, heaviest first. Equal
// weights are ordered by name.
func Rank(l Ledger) []RankedTest {
	return newIndex(l).rank()
}

func (idx *index) rank() []RankedTest {
	var out []RankedTest
	for _, name := range idx.names {
		if w := weight(name, idx.byTest[name]); w > 0 {
			out = append(out, RankedTest{Name: name, Weight: w})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r RankedTest) String() string {
	return fmt.Sprintf("%s (%.3f)", r.Name, r.Weight)
}
