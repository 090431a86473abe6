package mcp

import (
	"context"
	"errors"
	"sync"

	"ci-tracker/src/broker"
	"ci-tracker/src/contracts"
	"ci-tracker/src/logger"
	"ci-tracker/src/report"
)

// ErrNoSnapshot is returned before any snapshot was loaded.
var ErrNoSnapshot = errors.New("no snapshot loaded yet")

// SnapshotStore holds the snapshot the tools answer from. It is safe for
// concurrent use.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap *contracts.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Set replaces the current snapshot. Older snapshots than the current one
// are ignored so that a replayed topic cannot roll the store back.
func (s *SnapshotStore) Set(snap *contracts.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap != nil && snap.GeneratedAt.Before(s.snap.GeneratedAt) {
		return false
	}
	s.snap = snap
	return true
}

// Get returns the current snapshot.
func (s *SnapshotStore) Get() (*contracts.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrNoSnapshot
	}
	return s.snap, nil
}

// LoadFile sets the snapshot written at path.
func (s *SnapshotStore) LoadFile(path string) error {
	snap, err := report.ReadJSON(path)
	if err != nil {
		return err
	}
	s.Set(snap)
	return nil
}

// Follow keeps the store current with the snapshots published on b until
// ctx is done.
func (s *SnapshotStore) Follow(ctx context.Context, b broker.Broker, groupID string, log logger.Logger) error {
	return broker.FollowSnapshots(ctx, b, groupID, func(snap *contracts.Snapshot) {
		if s.Set(snap) {
			log.Info("[MCP] snapshot %s loaded (%d ranked tests)", snap.ID, len(snap.FailedTests))
		}
	}, func(err error) {
		log.Warn("[MCP] skipping snapshot message: %v", err)
	})
}
