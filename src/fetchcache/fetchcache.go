// Package fetchcache replays upstream results from a blob store or computes
// and persists them.
//
// A result is stored as two blobs: the JSON payload under its key and an
// empty marker under key+MarkerSuffix. Only the marker makes a result
// replayable. Results that are absent are never written, and results whose
// upstream work is still running are written without a marker so the next
// run fetches them again.
package fetchcache

import (
	"context"
	"encoding/json"
	"fmt"
)

// MarkerSuffix names the blob that marks a payload as complete.
const MarkerSuffix = ".complete"

// Completeness classifies what a producer returned.
type Completeness int

const (
	// Absent means there is no data yet. Nothing is cached.
	Absent Completeness = iota
	// InProgress means the data is usable but upstream is still running.
	// The payload is written for inspection but not replayed.
	InProgress
	// Complete means the data is final and may be replayed.
	Complete
)

func (c Completeness) String() string {
	switch c {
	case Absent:
		return "absent"
	case InProgress:
		return "in-progress"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("completeness(%d)", int(c))
	}
}

// Producer computes a value. It must not retry internally; wrap it with the
// retry package instead.
type Producer[T any] func(ctx context.Context) (T, Completeness, error)

// Found adapts a plain fetch that returns (value, ok, err) into a Producer:
// ok=false is Absent, anything else is Complete.
func Found[T any](fetch func(ctx context.Context) (T, bool, error)) Producer[T] {
	return func(ctx context.Context) (T, Completeness, error) {
		v, ok, err := fetch(ctx)
		if err != nil || !ok {
			return v, Absent, err
		}
		return v, Complete, nil
	}
}

// GetOrFetch returns the cached value for key when useCache is set and a
// complete entry exists. Otherwise it calls produce and persists the result
// according to its Completeness. The boolean result is false when the value is absent.
func GetOrFetch[T any](ctx context.Context, store Store, key string, useCache bool, produce Producer[T]) (T, bool, error) {
	var zero T
	marker := key + MarkerSuffix

	if useCache {
		_, done, err := store.Get(ctx, marker)
		if err != nil {
			return zero, false, err
		}
		if done {
			data, ok, err := store.Get(ctx, key)
			if err != nil {
				return zero, false, err
			}
			if ok {
				var v T
				if err := json.Unmarshal(data, &v); err != nil {
					return zero, false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
				}
				return v, true, nil
			}
		}
	}

	v, state, err := produce(ctx)
	if err != nil {
		return zero, false, err
	}
	if state == Absent {
		return zero, false, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return zero, false, fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	// A stale marker would make an in-progress payload replayable.
	if err := store.Delete(ctx, marker); err != nil {
		return zero, false, err
	}
	if err := store.Put(ctx, key, data); err != nil {
		return zero, false, err
	}
	if state == Complete {
		if err := store.Put(ctx, marker, nil); err != nil {
			return zero, false, err
		}
	}

	return v, true, nil
}
