// Package report writes the snapshot document to disk: the JSON file read by
// the dashboard and a Prometheus textfile for the node exporter collector.
// Both are replaced atomically so readers never see a partial file.
package report

import (
	"encoding/json"
	"fmt"
	"os"

	"ci-tracker/src/contracts"
	"ci-tracker/src/fetchcache"
)

// WriteJSON replaces path with the encoded snapshot.
func WriteJSON(path string, snap *contracts.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data = append(data, '\n')
	if err := fetchcache.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// ReadJSON loads a snapshot written by WriteJSON.
func ReadJSON(path string) (*contracts.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap contracts.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}
