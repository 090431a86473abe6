package tui

import (
	"strings"

	"ci-tracker/src/contracts"
)

// Item represents a ranked test in the list.
// It wraps the snapshot's FailedTest and implements bubbles/list.Item.
type Item struct {
	Test contracts.FailedTest
	Rank int
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Test.Name }

// Title returns the primary text for the item (required by list.Item).
func (i Item) Title() string { return i.Test.Name }

// Description returns the secondary text for the item (required by list.Item).
func (i Item) Description() string { return i.Test.Owner }

// Failures counts the failed runs of the test in the window.
func (i Item) Failures() int {
	n := 0
	for _, l := range i.Test.CILinks {
		if l.Status == contracts.StatusFailed {
			n++
		}
	}
	return n
}

// matches reports whether query (lower case) occurs in the test name, owner
// or one of its failing commits.
func (i Item) matches(query string) bool {
	if strings.Contains(strings.ToLower(i.Test.Name), query) ||
		strings.Contains(strings.ToLower(i.Test.Owner), query) {
		return true
	}
	for _, l := range i.Test.CILinks {
		if strings.Contains(strings.ToLower(l.CommitMessage), query) ||
			strings.HasPrefix(strings.ToLower(l.SHA), query) {
			return true
		}
	}
	return false
}

// ItemsFromSnapshot ranks the tests of snap from 1.
func ItemsFromSnapshot(snap *contracts.Snapshot) []Item {
	items := make([]Item, len(snap.FailedTests))
	for i, t := range snap.FailedTests {
		items[i] = Item{Test: t, Rank: i + 1}
	}
	return items
}
