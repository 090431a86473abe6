package junit

import (
	"testing"

	"ci-tracker/src/contracts"
)

func TestParse_SingleSuite(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="python.ray.tests" tests="3" failures="1" errors="0" skipped="1" time="1.234">
  <testcase name="test_success" classname="test_basic" time="0.123"/>
  <testcase name="test_failure" classname="test_basic" time="1.111">
    <failure message="assertion failed" type="AssertionError">
at test_basic.py:42
    </failure>
  </testcase>
  <testcase name="test_skipped" classname="test_basic" time="0">
    <skipped message="not on this platform"/>
  </testcase>
</testsuite>`

	results, err := Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	if results[0].TestName != "test_basic::test_success" || results[0].Status != contracts.StatusPassed {
		t.Errorf("Unexpected first result: %+v", results[0])
	}
	if results[1].Status != contracts.StatusFailed {
		t.Errorf("Expected FAILED, got %s", results[1].Status)
	}
	if results[1].DurationSeconds != 1.111 {
		t.Errorf("Expected duration 1.111, got %f", results[1].DurationSeconds)
	}
	if results[1].Owner != contracts.OwnerUnknown {
		t.Errorf("Expected owner unknown, got %s", results[1].Owner)
	}
}

func TestParse_MultipleSuitesWithErrorsAndOwners(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="Suite1" tests="1" errors="1">
    <properties><property name="owner" value="core"/></properties>
    <testcase name="test_error" time="0.5">
      <error message="NullPointerException"/>
    </testcase>
  </testsuite>
  <testsuite name="Suite2" tests="1">
    <testcase name="test_rerun" classname="pkg.Test2" time="0.3">
      <flakyFailure message="first attempt failed"/>
    </testcase>
  </testsuite>
</testsuites>`

	results, err := Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	tests := []struct {
		name   string
		status contracts.Status
		owner  string
	}{
		{"test_error", contracts.StatusFailed, "core"},
		{"pkg.Test2::test_rerun", contracts.StatusFlaky, contracts.OwnerUnknown},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := results[i]
			if got.TestName != tt.name {
				t.Errorf("TestName = %q, want %q", got.TestName, tt.name)
			}
			if got.Status != tt.status {
				t.Errorf("Status = %q, want %q", got.Status, tt.status)
			}
			if got.Owner != tt.owner {
				t.Errorf("Owner = %q, want %q", got.Owner, tt.owner)
			}
		})
	}
}

func TestParse_InvalidXML(t *testing.T) {
	if _, err := Parse([]byte("not xml at all <")); err == nil {
		t.Error("Expected error for invalid XML")
	}
}
