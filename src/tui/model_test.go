package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"ci-tracker/src/contracts"
)

func intPtr(n int) *int { return &n }

func testSnapshot() *contracts.Snapshot {
	bar := []contracts.CommitTooltip{
		{SHA: "aaaaaaa1", NumFailed: intPtr(1), NumFlaky: intPtr(0)},
		{SHA: "aaaaaaa2", NumFailed: intPtr(0), NumFlaky: intPtr(1)},
		{SHA: "aaaaaaa3"},
	}
	return &contracts.Snapshot{
		ID:          "snap-1",
		GeneratedAt: time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC),
		TestOwners:  []string{"core", "serve"},
		FailedTests: []contracts.FailedTest{
			{
				Name:             "linux://python/ray/tests:test_basic",
				Weight:           10_000_100,
				Owner:            "core",
				StatusSegmentBar: bar,
				BuildTimeStats:   []float64{12, 30.4, 95},
				CILinks: []contracts.CILink{
					{SHAShort: "aaaaaa", SHA: "aaaaaaa1", CommitMessage: "Fix scheduler\n\nlong body", OS: "linux",
						Status: contracts.StatusFailed, JobURL: "https://buildkite.com/ray/builds/1#job"},
				},
			},
			{
				Name:           "windows://python/ray/serve/tests:test_" + strings.Repeat("very_long_name_", 12),
				Weight:         505,
				Owner:          "serve",
				IsLabeledFlaky: true,
				CILinks: []contracts.CILink{
					{SHAShort: "aaaaaa", SHA: "aaaaaaa2", CommitMessage: "Bump deps", OS: "windows",
						BuildEnv: "py38", Status: contracts.StatusFlaky},
				},
			},
			{Name: "bk://:lint:", Weight: 91, Owner: "core"},
		},
	}
}

// createTestModel builds a sized model over snap.
func createTestModel(t *testing.T, snap *contracts.Snapshot, width, height int) MainModel {
	t.Helper()
	model, _ := NewMainModel(snap, nil).Update(tea.WindowSizeMsg{Width: width, Height: height})
	return model.(MainModel)
}

func press(t *testing.T, m MainModel, keys ...tea.KeyMsg) MainModel {
	t.Helper()
	for _, k := range keys {
		updated, _ := m.Update(k)
		m = updated.(MainModel)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func selectedName(t *testing.T, m MainModel) string {
	t.Helper()
	item, ok := m.listView.GetSelectedItem()
	if !ok {
		t.Fatal("expected a selected item")
	}
	return item.Test.Name
}

func TestMainModel_ViewFitsTerminalWidth(t *testing.T) {
	for _, width := range []int{80, 100, 160} {
		m := createTestModel(t, testSnapshot(), width, 30)

		for i, line := range strings.Split(m.View(), "\n") {
			if w := ansi.StringWidth(line); w > width {
				t.Errorf("width %d: line %d exceeds terminal width (%d): %s", width, i, w, ansi.Strip(line))
			}
		}
	}
}

func TestMainModel_Navigation(t *testing.T) {
	snap := testSnapshot()
	m := createTestModel(t, snap, 120, 30)

	tests := []struct {
		keys []tea.KeyMsg
		want string
	}{
		{nil, snap.FailedTests[0].Name},
		{[]tea.KeyMsg{{Type: tea.KeyDown}}, snap.FailedTests[1].Name},
		// cursor stops at the last test
		{[]tea.KeyMsg{runes("j"), runes("j")}, snap.FailedTests[2].Name},
		{[]tea.KeyMsg{runes("k")}, snap.FailedTests[1].Name},
	}
	for i, tt := range tests {
		m = press(t, m, tt.keys...)
		if got := selectedName(t, m); got != tt.want {
			t.Errorf("step %d: selected %q, want %q", i, got, tt.want)
		}
	}
	if !strings.Contains(ansi.Strip(m.detailViewport.View()), "py38") {
		t.Error("detail of the selected test should show its build env")
	}
}

func TestMainModel_DetailFocus(t *testing.T) {
	m := createTestModel(t, testSnapshot(), 120, 30)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.detailFocused {
		t.Fatal("enter should focus the detail panel")
	}

	// j scrolls the detail instead of moving the list
	m = press(t, m, runes("j"))
	if got := selectedName(t, m); got != "linux://python/ray/tests:test_basic" {
		t.Errorf("selection moved to %q while the detail was focused", got)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.detailFocused {
		t.Error("esc should return focus to the list")
	}
}

func TestMainModel_OwnerFilter(t *testing.T) {
	m := createTestModel(t, testSnapshot(), 120, 30)
	if m.listView.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.listView.Len())
	}

	tests := []struct {
		filter string
		count  int
	}{
		{"core", 2},
		{"serve", 1},
		{filterAll, 3},
	}
	for _, tt := range tests {
		m = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
		if got := m.header.GetFilter(); got != tt.filter {
			t.Errorf("filter = %q, want %q", got, tt.filter)
		}
		if got := m.listView.Len(); got != tt.count {
			t.Errorf("filter %s: Len() = %d, want %d", tt.filter, got, tt.count)
		}
	}
}

func TestMainModel_Search(t *testing.T) {
	m := createTestModel(t, testSnapshot(), 120, 30)

	m = press(t, m, runes("/"), runes("scheduler"))
	if !m.searchMode {
		t.Fatal("/ should enter search mode")
	}
	if got := m.listView.Len(); got != 1 {
		t.Errorf("commit messages are searched: Len() = %d, want 1", got)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if m.searchQuery != "schedule" {
		t.Errorf("searchQuery = %q, want %q", m.searchQuery, "schedule")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.searchMode {
		t.Error("enter should leave search mode")
	}
	if got := m.listView.Len(); got != 1 {
		t.Errorf("enter keeps the query: Len() = %d, want 1", got)
	}

	m = press(t, m, runes("/"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.searchQuery != "" || m.listView.Len() != 3 {
		t.Errorf("esc should clear the search, got query %q and %d tests", m.searchQuery, m.listView.Len())
	}

	m = press(t, m, runes("/"), runes("nothing-matches"))
	if m.listView.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.listView.Len())
	}
	if !strings.Contains(ansi.Strip(m.View()), "No tests match") {
		t.Error("an empty result should be reported")
	}
}

func TestMainModel_WaitsForSnapshot(t *testing.T) {
	updates := make(chan *contracts.Snapshot, 1)
	model, _ := NewMainModel(nil, updates).Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m := model.(MainModel)
	if m.status != StatusWaiting {
		t.Fatalf("status = %v, want StatusWaiting", m.status)
	}
	if !strings.Contains(ansi.Strip(m.View()), "Waiting for snapshot") {
		t.Error("waiting screen not shown")
	}

	updates <- testSnapshot()
	msg := waitForSnapshot(updates)()
	model, cmd := m.Update(msg)
	m = model.(MainModel)
	if cmd == nil {
		t.Error("the model should keep listening for updates")
	}
	if m.status != StatusReady || m.listView.Len() != 3 {
		t.Errorf("status = %v with %d tests, want StatusReady with 3", m.status, m.listView.Len())
	}

	close(updates)
	if _, ok := waitForSnapshot(updates)().(updatesClosedMsg); !ok {
		t.Error("a closed channel should yield updatesClosedMsg")
	}
}

func TestMainModel_SnapshotKeepsSelection(t *testing.T) {
	m := createTestModel(t, testSnapshot(), 120, 30)
	m = press(t, m, runes("j"))
	selected := selectedName(t, m)

	next := testSnapshot()
	next.ID = "snap-2"
	next.FailedTests[0], next.FailedTests[1] = next.FailedTests[1], next.FailedTests[0]
	next.TestOwners = []string{"core"}

	model, _ := m.Update(SnapshotMsg{Snapshot: next})
	m = model.(MainModel)
	if got := selectedName(t, m); got != selected {
		t.Errorf("selection = %q, want %q", got, selected)
	}
	if m.snapshot.ID != "snap-2" {
		t.Errorf("snapshot ID = %q, want snap-2", m.snapshot.ID)
	}
	if !strings.Contains(ansi.Strip(m.header.Render(120)), "3 ranked tests") {
		t.Error("header status not refreshed")
	}
}

func TestDelegate_HistoryColumn(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ff_", "Ff_       "},
		{strings.Repeat("F", 12), "FFFFFFFFFF"},
	}
	for _, tt := range tests {
		if got := recentHistory(tt.in); got != tt.want {
			t.Errorf("recentHistory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
