// Package sanitize cleans provider supplied strings before they become part of
// ledger test names. It removes ANSI escape codes and CI-specific markers
// (like Buildkite timestamps) and normalizes whitespace so the same job maps
// to the same name across commits.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// ANSI escape codes: \x1b[...m (SGR sequences)
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

	// Buildkite timestamp markers: \x1b_bk;t=...\x07
	buildkiteTimestamp = regexp.MustCompile(`\x1b_bk;t=[0-9]+\x07`)
)

// TravisNoiseEnv is set on every Travis job and carries no information.
const TravisNoiseEnv = "PYTHONWARNINGS=ignore"

// StripANSI removes ANSI escape codes and Buildkite timestamp markers.
func StripANSI(s string) string {
	s = buildkiteTimestamp.ReplaceAllString(s, "")
	s = ansiPattern.ReplaceAllString(s, "")
	return s
}

// Label cleans a job label: escape codes are removed and runs of whitespace,
// including newlines, collapse to a single space.
func Label(s string) string {
	return strings.Join(strings.Fields(StripANSI(s)), " ")
}

// TravisEnv cleans a Travis job env string for use in a test name.
func TravisEnv(env string) string {
	return Label(strings.ReplaceAll(env, TravisNoiseEnv, ""))
}
