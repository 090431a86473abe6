package contracts

import "testing"

func count(n int) *int { return &n }

func TestFailedTestHistory(t *testing.T) {
	test := FailedTest{StatusSegmentBar: []CommitTooltip{
		{NumFailed: count(2), NumFlaky: count(1)},
		{NumFailed: count(0), NumFlaky: count(1)},
		{},
		{NumFailed: count(0), NumFlaky: count(0)},
		{NumFailed: count(0)},
	}}
	if got := test.History(); got != "Ff_.." {
		t.Errorf("History() = %q, want %q", got, "Ff_..")
	}
	if got := (FailedTest{}).History(); got != "" {
		t.Errorf("empty History() = %q", got)
	}
}

func TestSnapshotFindTest(t *testing.T) {
	s := &Snapshot{FailedTests: []FailedTest{{Name: "a"}, {Name: "b", Weight: 2}}}
	got, ok := s.FindTest("b")
	if !ok || got.Weight != 2 {
		t.Errorf("FindTest(b) = %+v, %v", got, ok)
	}
	if _, ok := s.FindTest("c"); ok {
		t.Error("FindTest(c) should not be found")
	}
}
