package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ci-tracker/src/contracts"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before a message arrived")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestInMemoryBroker_PublishSubscribe(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	msgChan, err := broker.Subscribe(ctx, "test-topic", "test-group")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := broker.Publish(ctx, "test-topic", "k1", []byte("first")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := broker.Publish(ctx, "test-topic", "k2", []byte("second")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	first := receive(t, msgChan)
	if first.Topic != "test-topic" || first.Key != "k1" || string(first.Value) != "first" {
		t.Errorf("unexpected first message: %+v", first)
	}
	second := receive(t, msgChan)
	if second.Offset != first.Offset+1 {
		t.Errorf("offsets not sequential: %d then %d", first.Offset, second.Offset)
	}
}

func TestInMemoryBroker_MultipleSubscribers(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx := context.Background()
	sub1, _ := broker.Subscribe(ctx, "shared", "group1")
	sub2, _ := broker.Subscribe(ctx, "shared", "group2")
	other, _ := broker.Subscribe(ctx, "other", "group1")

	if err := broker.Publish(ctx, "shared", "key", []byte("broadcast")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, sub := range []<-chan Message{sub1, sub2} {
		if msg := receive(t, sub); string(msg.Value) != "broadcast" {
			t.Errorf("subscriber %d: got %q", i+1, msg.Value)
		}
	}
	select {
	case msg := <-other:
		t.Errorf("other topic received %q", msg.Value)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInMemoryBroker_ContextEndsSubscription(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := broker.Subscribe(ctx, "topic", "group")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	if err := broker.Publish(context.Background(), "topic", "k", []byte("v")); err != nil {
		t.Errorf("publish after unsubscribe: %v", err)
	}
}

func TestInMemoryBroker_ClosedBroker(t *testing.T) {
	broker := NewInMemoryBroker()
	ch, _ := broker.Subscribe(context.Background(), "test", "group")
	broker.Close()
	broker.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}

	ctx := context.Background()
	if err := broker.Publish(ctx, "test", "key", []byte("value")); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish on closed broker: got %v", err)
	}
	if _, err := broker.Subscribe(ctx, "test", "group"); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe on closed broker: got %v", err)
	}
}

func TestInMemoryBroker_ConcurrentPublishSubscribe(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				for j := 0; j < 10; j++ {
					_ = broker.Publish(ctx, "concurrent", "k", []byte("msg"))
				}
				return
			}
			ch, err := broker.Subscribe(ctx, "concurrent", "g")
			if err != nil {
				return
			}
			go func() {
				for range ch {
				}
			}()
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout: possible deadlock")
	}
}

func TestPublishAndFollowSnapshots(t *testing.T) {
	broker := NewInMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *contracts.Snapshot, 1)
	var decodeErrs []error
	var mu sync.Mutex
	followDone := make(chan error, 1)
	subscribed := make(chan struct{})

	go func() {
		msgs, err := broker.Subscribe(ctx, contracts.TopicSnapshots, "viewer")
		if err != nil {
			followDone <- err
			return
		}
		close(subscribed)
		for msg := range msgs {
			snap, err := DecodeSnapshot(msg)
			if err != nil {
				mu.Lock()
				decodeErrs = append(decodeErrs, err)
				mu.Unlock()
				continue
			}
			got <- snap
		}
		followDone <- nil
	}()
	<-subscribed

	if err := broker.Publish(ctx, contracts.TopicSnapshots, "junk", []byte("{not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	snap := &contracts.Snapshot{
		ID:          "snap-1",
		GeneratedAt: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		FailedTests: []contracts.FailedTest{{Name: "linux://a:test", Weight: 3, Owner: "core"}},
	}
	if err := PublishSnapshot(ctx, broker, snap); err != nil {
		t.Fatalf("PublishSnapshot failed: %v", err)
	}

	select {
	case s := <-got:
		if s.ID != "snap-1" || len(s.FailedTests) != 1 || s.FailedTests[0].Owner != "core" {
			t.Errorf("unexpected snapshot: %+v", s)
		}
		if !s.GeneratedAt.Equal(snap.GeneratedAt) {
			t.Errorf("GeneratedAt = %v", s.GeneratedAt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}

	mu.Lock()
	if len(decodeErrs) != 1 {
		t.Errorf("expected one decode error, got %d", len(decodeErrs))
	}
	mu.Unlock()
}

func TestFollowSnapshots(t *testing.T) {
	broker := NewInMemoryBroker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		ids  []string
		errs int
	)
	done := make(chan error, 1)
	go func() {
		done <- FollowSnapshots(ctx, broker, "viewer", func(s *contracts.Snapshot) {
			mu.Lock()
			ids = append(ids, s.ID)
			mu.Unlock()
		}, func(error) {
			mu.Lock()
			errs++
			mu.Unlock()
		})
	}()

	// Publish until the follower has subscribed and seen a snapshot.
	deadline := time.After(2 * time.Second)
	for {
		_ = PublishSnapshot(ctx, broker, &contracts.Snapshot{ID: "s"})
		mu.Lock()
		n := len(ids)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("follower never received a snapshot")
		case <-time.After(10 * time.Millisecond):
		}
	}

	broker.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("FollowSnapshots returned %v after close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("FollowSnapshots did not return after close")
	}
	if errs != 0 {
		t.Errorf("unexpected decode errors: %d", errs)
	}
}

func TestNew_DefaultsToInMemory(t *testing.T) {
	b, err := New(nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*InMemoryBroker); !ok {
		t.Errorf("expected *InMemoryBroker, got %T", b)
	}
}
