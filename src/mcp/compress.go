package mcp

import (
	"strings"

	"ci-tracker/src/contracts"
	"ci-tracker/src/sanitize"
)

// maxSubjectLength bounds commit subjects in responses.
const maxSubjectLength = 80

// commitSubject returns the first line of a commit message without terminal
// escapes, shortened to maxSubjectLength.
func commitSubject(msg string) string {
	subject, _, _ := strings.Cut(sanitize.StripANSI(msg), "\n")
	subject = strings.TrimSpace(subject)
	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength-3] + "..."
	}
	return subject
}

// compressLinks keeps the newest limit links and reports how many were dropped.
func compressLinks(links []contracts.CILink, limit int) ([]LinkInfo, int) {
	omitted := 0
	if limit > 0 && len(links) > limit {
		omitted = len(links) - limit
		links = links[:limit]
	}
	out := make([]LinkInfo, 0, len(links))
	for _, l := range links {
		out = append(out, LinkInfo{
			SHA:      l.SHAShort,
			Commit:   commitSubject(l.CommitMessage),
			Status:   string(l.Status),
			OS:       l.OS,
			BuildEnv: l.BuildEnv,
			URL:      l.JobURL,
		})
	}
	return out, omitted
}
