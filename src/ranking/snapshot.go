package ranking

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ci-tracker/src/contracts"
)

// snapshotNamespace scopes the name-based snapshot ids.
var snapshotNamespace = uuid.MustParse("6f1c2d4e-8a3b-4c5d-9e7f-0a1b2c3d4e5f")

// BuildSnapshot scores the ledger and assembles the output document.
// weekly is passed through as is; it may be nil.
//
// The document depends on the ledger alone: GeneratedAt is the commit time
// of the newest commit in the window and the id is derived from the content,
// so the same ledger always yields the same document.
func BuildSnapshot(l Ledger, weekly []contracts.WeeklyGreenMetric) *contracts.Snapshot {
	idx := newIndex(l)

	ranked := idx.rank()
	failed := make([]contracts.FailedTest, 0, len(ranked))
	for _, t := range ranked {
		failed = append(failed, idx.detail(t))
	}

	if weekly == nil {
		weekly = []contracts.WeeklyGreenMetric{}
	}

	var generatedAt time.Time
	if len(idx.commits) > 0 {
		generatedAt = time.Unix(idx.commits[0].UnixTime, 0).UTC()
	}

	snap := &contracts.Snapshot{
		GeneratedAt:       generatedAt,
		FailedTests:       failed,
		Stats:             idx.stats(l.PRBuilds),
		WeeklyGreenMetric: weekly,
		TestOwners:        idx.owners(),
		TableStat:         idx.tableStat(),
	}
	snap.ID = contentID(snap)
	return snap
}

// contentID names a snapshot after its content. The id field is empty while
// the document is encoded.
func contentID(snap *contracts.Snapshot) string {
	data, err := json.Marshal(snap)
	if err != nil {
		return uuid.NewString()
	}
	return uuid.NewSHA1(snapshotNamespace, data).String()
}
