// Package broker publishes and consumes snapshot documents over a message bus.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"ci-tracker/src/contracts"
)

// Broker abstracts message publishing and consumption.
type Broker interface {
	// Publish sends a message to a topic. The key selects the partition
	// on Redpanda and is carried through unchanged in memory.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel for consuming messages from a topic.
	// groupID is used for consumer group coordination on Redpanda.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64
}

// PublishSnapshot encodes snap and sends it to TopicSnapshots keyed by its ID.
func PublishSnapshot(ctx context.Context, b Broker, snap *contracts.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	if err := b.Publish(ctx, contracts.TopicSnapshots, snap.ID, data); err != nil {
		return fmt.Errorf("publish snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// DecodeSnapshot parses a message received from TopicSnapshots.
func DecodeSnapshot(msg Message) (*contracts.Snapshot, error) {
	var snap contracts.Snapshot
	if err := json.Unmarshal(msg.Value, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot at offset %d: %w", msg.Offset, err)
	}
	return &snap, nil
}

// FollowSnapshots calls fn with every snapshot published after the call,
// until ctx is done or the subscription ends. Undecodable messages are
// passed to onErr and skipped.
func FollowSnapshots(ctx context.Context, b Broker, groupID string, fn func(*contracts.Snapshot), onErr func(error)) error {
	msgs, err := b.Subscribe(ctx, contracts.TopicSnapshots, groupID)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			snap, err := DecodeSnapshot(msg)
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				continue
			}
			fn(snap)
		}
	}
}
