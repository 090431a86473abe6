// Package junit converts JUnit XML reports uploaded as CI artifacts into
// per-test results.
package junit

import (
	"encoding/xml"
	"fmt"

	"ci-tracker/src/contracts"
)

// TestSuites is the root element for multiple test suites.
type TestSuites struct {
	XMLName    xml.Name    `xml:"testsuites"`
	TestSuites []TestSuite `xml:"testsuite"`
}

// TestSuite represents a <testsuite> element.
type TestSuite struct {
	Name       string     `xml:"name,attr"`
	Tests      int        `xml:"tests,attr"`
	Failures   int        `xml:"failures,attr"`
	Errors     int        `xml:"errors,attr"`
	Skipped    int        `xml:"skipped,attr"`
	Time       float64    `xml:"time,attr"`
	Properties []Property `xml:"properties>property"`
	TestCases  []TestCase `xml:"testcase"`
}

// Property is a <property name="" value=""/> entry of a suite.
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// TestCase represents a <testcase> element.
type TestCase struct {
	Name      string    `xml:"name,attr"`
	ClassName string    `xml:"classname,attr"`
	Time      float64   `xml:"time,attr"`
	Failure   *struct{} `xml:"failure"`
	Error     *struct{} `xml:"error"`
	Skipped   *struct{} `xml:"skipped"`
	// FlakyFailure is emitted by pytest-rerunfailures and surefire for tests
	// that passed on a rerun.
	FlakyFailure *struct{} `xml:"flakyFailure"`
}

// ownerProperty, when present on a suite, names the owning team.
const ownerProperty = "owner"

// Parse converts a report into one TestResult per executed test case.
// Skipped cases carry no verdict and are left out.
func Parse(data []byte) ([]contracts.TestResult, error) {
	// Try parsing as <testsuites> (multiple suites) first
	var suites TestSuites
	if err := xml.Unmarshal(data, &suites); err == nil && len(suites.TestSuites) > 0 {
		return collect(suites.TestSuites), nil
	}

	// Try parsing as single <testsuite>
	var suite TestSuite
	if err := xml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse JUnit XML: %w", err)
	}

	return collect([]TestSuite{suite}), nil
}

func collect(suites []TestSuite) []contracts.TestResult {
	var results []contracts.TestResult

	for _, suite := range suites {
		owner := contracts.OwnerUnknown
		for _, p := range suite.Properties {
			if p.Name == ownerProperty && p.Value != "" {
				owner = p.Value
			}
		}

		for _, tc := range suite.TestCases {
			if tc.Skipped != nil {
				continue
			}

			status := contracts.StatusPassed
			switch {
			case tc.Failure != nil, tc.Error != nil:
				status = contracts.StatusFailed
			case tc.FlakyFailure != nil:
				status = contracts.StatusFlaky
			}

			results = append(results, contracts.TestResult{
				TestName:        tc.QualifiedName(),
				Status:          status,
				DurationSeconds: tc.Time,
				Owner:           owner,
			})
		}
	}

	return results
}

// QualifiedName returns classname::name, or the bare name without a class.
func (tc TestCase) QualifiedName() string {
	if tc.ClassName != "" {
		return fmt.Sprintf("%s::%s", tc.ClassName, tc.Name)
	}
	return tc.Name
}
