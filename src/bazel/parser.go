// Package bazel turns bazel build event protocol logs (one JSON event per
// line) into per-test results.
package bazel

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"ci-tracker/src/contracts"
	"ci-tracker/src/logger"
	"ci-tracker/src/provider"
)

const (
	flakyTag   = "flaky"
	teamPrefix = "team:"
	// StagingSuffix is appended to every test name of a staging log.
	StagingSuffix = " (staging)"
	stagingVar    = "RAY_STAGING_TESTS"
)

// event holds the subset of a build event this package reads.
type event struct {
	ID struct {
		TargetConfigured *label    `json:"targetConfigured"`
		TestSummary      *label    `json:"testSummary"`
		Configuration    *struct{} `json:"configuration"`
	} `json:"id"`
	Configured *struct {
		Tag []string `json:"tag"`
	} `json:"configured"`
	Configuration *struct {
		MakeVariable map[string]string `json:"makeVariable"`
	} `json:"configuration"`
	TestSummary *struct {
		OverallStatus          string `json:"overallStatus"`
		TotalRunDurationMillis millis `json:"totalRunDurationMillis"`
	} `json:"testSummary"`
}

type label struct {
	Label string `json:"label"`
}

// millis accepts both 1234 and "1234"; proto3 JSON encodes int64 as a string.
type millis float64

func (m *millis) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*m = millis(v)
	return nil
}

// Parser extracts test results from build event logs.
type Parser struct {
	log logger.Logger
}

// NewParser returns a parser that reports skipped lines to log.
func NewParser(log logger.Logger) *Parser {
	return &Parser{log: log}
}

// labels is what the first pass learns about configured targets.
type labels struct {
	flaky   map[string]bool
	owners  map[string]string
	staging bool
}

// Parse reads every event of one log. The first pass collects flaky tags,
// team owners and the staging flag; the second pass emits one TestResult
// per test summary. Lines that are not valid events are skipped.
func (p *Parser) Parse(data []byte) []contracts.TestResult {
	meta := labels{flaky: map[string]bool{}, owners: map[string]string{}}

	p.eachEvent(data, func(ev *event) {
		if ev.ID.TargetConfigured != nil {
			name := ev.ID.TargetConfigured.Label
			if ev.Configured == nil || ev.Configured.Tag == nil {
				p.log.Warn("could not fetch tags for test %s, cannot determine owner or flakiness", name)
			} else {
				for _, tag := range ev.Configured.Tag {
					if tag == flakyTag {
						meta.flaky[name] = true
					}
					if owner, ok := strings.CutPrefix(tag, teamPrefix); ok {
						meta.owners[name] = owner
					}
				}
			}
		}
		if ev.ID.Configuration != nil && ev.Configuration != nil {
			if ev.Configuration.MakeVariable[stagingVar] == "1" {
				meta.staging = true
			}
		}
	})

	var results []contracts.TestResult
	p.eachEvent(data, func(ev *event) {
		if ev.TestSummary == nil || ev.ID.TestSummary == nil {
			return
		}
		name := ev.ID.TestSummary.Label

		status, known := provider.Normalize(provider.BazelStatus, ev.TestSummary.OverallStatus)
		if !known {
			p.log.Warn("unknown bazel status %q for %s, recording as failed", ev.TestSummary.OverallStatus, name)
			status = contracts.StatusFailed
		}

		owner, ok := meta.owners[name]
		if !ok {
			owner = contracts.OwnerUnknown
		}

		testName := name
		if meta.staging {
			testName += StagingSuffix
		}

		results = append(results, contracts.TestResult{
			TestName:        testName,
			Status:          status,
			DurationSeconds: float64(ev.TestSummary.TotalRunDurationMillis) / 1000,
			IsLabeledFlaky:  meta.flaky[name],
			Owner:           owner,
			IsStaging:       meta.staging,
		})
	})

	return results
}

// ParseFile parses the log stored at path.
func (p *Parser) ParseFile(path string) ([]contracts.TestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bazel log %s: %w", path, err)
	}
	return p.Parse(data), nil
}

func (p *Parser) eachEvent(data []byte, fn func(*event)) {
	r := bufio.NewReader(bytes.NewReader(data))
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				var ev event
				if jerr := json.Unmarshal(line, &ev); jerr != nil {
					p.log.Debug("skipping malformed event on line %d: %v", lineNo, jerr)
				} else {
					fn(&ev)
				}
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			p.log.Warn("stopped reading bazel log at line %d: %v", lineNo, err)
			return
		}
	}
}
